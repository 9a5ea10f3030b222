package hashsmith

import (
	"unsafe"

	"github.com/dolthub/maphash"
)

// Hasher produces a 64-bit hash for a key. Both engines mix the raw
// value returned here through mix32 before splitting it into H1/H2,
// so a Hasher only needs to scatter bits reasonably well; it does not
// need to be cryptographic or even particularly uniform on its own.
type Hasher[K comparable] interface {
	Hash(k K) uint64
}

// maphashHasher is the default Hasher, backed by dolthub/maphash's
// generic wrapper over hash/maphash. It reseeds on every rehash via
// maphash.NewSeed so that repeated resizes of an adversarially-constructed
// key set don't keep colliding on the same seed.
type maphashHasher[K comparable] struct {
	h maphash.Hasher[K]
}

// NewHasher returns the default Hasher used when a Map or
// ConcurrentMap is constructed without WithHasher.
func NewHasher[K comparable]() Hasher[K] {
	return maphashHasher[K]{h: maphash.NewHasher[K]()}
}

func (m maphashHasher[K]) Hash(k K) uint64 { return m.h.Hash(k) }

func (m maphashHasher[K]) reseeded() Hasher[K] {
	return maphashHasher[K]{h: maphash.NewSeed(m.h)}
}

// reseed returns a freshly-seeded copy of h when h supports it
// (currently only maphashHasher), otherwise returns h unchanged.
// Same-capacity tombstone rehashes and growth resizes both call this
// so that a hostile key sequence can't keep landing in the same
// groups across repeated rebuilds.
func reseed[K comparable](h Hasher[K]) Hasher[K] {
	if r, ok := h.(interface{ reseeded() Hasher[K] }); ok {
		return r.reseeded()
	}
	return h
}

// runtimeHasher is the teacher's original zero-dependency hashing
// trick: borrow the Go runtime's own hash function for comparable
// types via go:linkname, the same approach map.go used for its
// placeholder int64 Key before generics. It is offered as an escape
// hatch (WithRuntimeHasher) for callers who don't want the maphash
// dependency.
//
// It only hashes K's in-memory bits, so it is only correct for
// fixed-width scalar keys (integers, floats, fixed arrays of those).
// A K containing a pointer, slice, or string header hashes the
// header, not the pointee, same caveat the teacher's own hashUint64
// carried before it grew a separate hashString.
type runtimeHasher[K comparable] struct {
	seed uintptr
}

// NewRuntimeHasher returns a Hasher built on runtime.memhash instead
// of dolthub/maphash.
func NewRuntimeHasher[K comparable]() Hasher[K] {
	return runtimeHasher[K]{seed: uintptr(runtimeFastrand())}
}

func (r runtimeHasher[K]) Hash(k K) uint64 {
	return uint64(memhash(unsafe.Pointer(&k), r.seed, unsafe.Sizeof(k)))
}

func (r runtimeHasher[K]) reseeded() Hasher[K] {
	return runtimeHasher[K]{seed: uintptr(runtimeFastrand())}
}

//go:linkname memhash runtime.memhash
//go:noescape
func memhash(p unsafe.Pointer, seed, s uintptr) uintptr

//go:linkname runtimeFastrand runtime.fastrand
func runtimeFastrand() uint32

// mix32 is one Murmur3 key-mixing step: rotl(h*C1, 15) * C2.
// Spec constants: C1 = 0xCC9E2D51, C2 = 0x1B873593.
const (
	mixC1 = 0xCC9E2D51
	mixC2 = 0x1B873593
)

func mix32(h uint32) uint32 {
	h *= mixC1
	h = (h << 15) | (h >> (32 - 15))
	h *= mixC2
	return h
}

// fold64 xor-folds a 64-bit hasher output down to 32 bits before
// mixing, so hashers that only scatter entropy across the full word
// (like maphash) don't lose half their bits by truncation.
func fold64(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

// h1Mask clears the low 7 bits reserved for H2; h2Bits isolates them.
const (
	h2Bits uint32 = 0x7F
	h1Mask uint32 = 0xFFFFFF80
)

// splitHash mixes a raw key hash and derives the group selector (H1)
// and the 7-bit fingerprint (H2, always a legal FULL control byte
// because its high bit is clear).
func splitHash(raw uint64) (h1 uint32, h2 uint8) {
	m := mix32(fold64(raw))
	return (m & h1Mask) >> 7, uint8(m & h2Bits)
}
