package hashsmith

import "sync/atomic"

// atomicWord is one group's packed control word (spec section 3's
// "group control word"), mutated only via casByte: a single lane's
// EMPTY byte flips to FULL(H2) exactly once (spec 4.E lifecycle), so
// the whole-word CAS loop below never contends with itself past the
// first retry in practice.
type atomicWord struct{ v atomic.Uint64 }

func (w *atomicWord) load() uint64 { return w.v.Load() }
func (w *atomicWord) store(val uint64) { w.v.Store(val) }

// casByte attempts to publish h2 into lane, provided that lane
// currently holds from. Retries the whole-word CAS against concurrent
// writes to other lanes in the same group; fails permanently (returns
// false) only if this exact lane no longer holds from.
func (w *atomicWord) casByte(lane int, from, to byte) bool {
	for {
		old := w.v.Load()
		shift := lane * 8
		if byte(old>>shift) != from {
			return false
		}
		newWord := (old &^ (uint64(0xFF) << shift)) | (uint64(to) << shift)
		if w.v.CompareAndSwap(old, newWord) {
			return true
		}
	}
}

// atomicKeyPtr is a slot's key cell. nil means EMPTY; any other
// pointer is written exactly once and, during resize, CAS'd to the
// table's movedKey sentinel (spec 3: "never overwritten except with
// a distinguished MOVED sentinel").
type atomicKeyPtr[K comparable] struct{ v atomic.Pointer[K] }

func (k *atomicKeyPtr[K]) load() *K             { return k.v.Load() }
func (k *atomicKeyPtr[K]) cas(old, new *K) bool { return k.v.CompareAndSwap(old, new) }

// atomicValPtr is a slot's value cell, holding a tagged valueBox.
type atomicValPtr[V any] struct{ v atomic.Pointer[valueBox[V]] }

func (p *atomicValPtr[V]) load() *valueBox[V] { return p.v.Load() }
func (p *atomicValPtr[V]) cas(old, new *valueBox[V]) bool {
	return p.v.CompareAndSwap(old, new)
}

// atomicTablePtr is the root table reference and the per-table
// newTable forward pointer described in spec section 3.
type atomicTablePtr[K comparable, V any] struct {
	v atomic.Pointer[concurrentTable[K, V]]
}

func (t *atomicTablePtr[K, V]) load() *concurrentTable[K, V]  { return t.v.Load() }
func (t *atomicTablePtr[K, V]) store(val *concurrentTable[K, V]) { t.v.Store(val) }
func (t *atomicTablePtr[K, V]) cas(old, new *concurrentTable[K, V]) bool {
	return t.v.CompareAndSwap(old, new)
}

// atomicBool is the resizing-in-progress flag (the first stage of the
// two-stage newTable publication spec 4.E step 1 describes).
type atomicBool struct{ v atomic.Bool }

func (b *atomicBool) load() bool         { return b.v.Load() }
func (b *atomicBool) cas(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

// counterStripe methods, shared by the approximate striped live
// counter in concurrent.go.
func (c *counterStripe) add(delta int64) { atomic.AddInt64(&c.c, delta) }
func (c *counterStripe) load() int64     { return atomic.LoadInt64(&c.c) }
