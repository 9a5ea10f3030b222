package hashsmith

import (
	"runtime"
	"time"
)

// ConcurrentMap is the lock-free, cooperative-resize engine (spec
// component E). It shares the slot/control layout and SWAR scanner
// with Map, but replaces DELETED-in-control with a TOMBSTONE value
// sentinel, and resizes via a single-copier cooperative protocol
// instead of an exclusive rebuild.
//
// A ConcurrentMap must not be copied after first use. It is safe for
// concurrent use by multiple goroutines without external locking,
// modeled on Cliff Click's NonBlockingHashMap and grounded, for the
// striped-counter and atomic table-swap shape, on maypok86/otter's
// CLHT-style map.
type ConcurrentMap[K comparable, V any] struct {
	root   atomicTablePtr[K, V]
	hasher Hasher[K]
}

// ctrlSignal is putIfMatch's internal outcome, never surfaced to
// callers directly.
type ctrlSignal int

const (
	sigDone ctrlSignal = iota
	sigAbsent
	sigFailed
	sigRetry
	sigNeedResize
)

// matchMode encodes expectedOld's three sentinel meanings (spec 4.E):
// NO_MATCH_OLD, MATCH_ANY ("present"), null ("absent"), or a concrete
// value comparison.
type matchMode int

const (
	matchAny     matchMode = iota // NO_MATCH_OLD: unconditional put
	matchPresent                  // MATCH_ANY: update only if present
	matchAbsent                   // null: insert-if-absent
	matchValue                    // conditional on value equality
)

// valueTag distinguishes the tagged sentinel variants spec 4.E calls
// out: a live value, a logical deletion, and the two resize-transit
// states. Using a tagged struct instead of reference-identity
// sentinels is the Go-idiomatic rendition spec section 10's redesign
// notes explicitly suggest over pointer-identity tricks.
type valueTag uint8

const (
	valTag valueTag = iota
	tombstoneTag
	primeTag
	tombstonePrimeTag
)

type valueBox[V any] struct {
	tag valueTag
	val V
}

// concurrentTable is the immutable-shape table state spec section 3
// describes: one slot/control/key/value 4-tuple, swapped atomically
// as a whole on resize completion. newTable/resizing together form
// the two-stage publication: resizing flips true the instant a
// copier is elected (the "RESIZE_IN_PROGRESS" signal of spec 4.E
// step 1), and newTable is stored only once the successor table has
// actually been allocated (spec 4.E step 2) — mutators that observe
// resizing must retry without needing to know which sub-stage they
// caught.
type concurrentTable[K comparable, V any] struct {
	control []atomicWord
	keys    []atomicKeyPtr[K]
	values  []atomicValPtr[V]

	groupMask uint64
	movedKey  *K

	tombstone      *valueBox[V]
	tombstonePrime *valueBox[V]

	resizing atomicBool
	newTable atomicTablePtr[K, V]

	counters []counterStripe
}

// counterStripe is a cache-line-padded approximate counter slot,
// grounded on maypok86/otter's counterStripe (itself forked from
// xsync.MapOf).
type counterStripe struct {
	c int64
	// prevents false sharing between adjacent stripes.
	pad [56]byte
}

func newConcurrentTable[K comparable, V any](capacity int) *concurrentTable[K, V] {
	groups, cap := roundGroups(capacity)
	t := &concurrentTable[K, V]{
		control:        make([]atomicWord, groups),
		keys:           make([]atomicKeyPtr[K], cap),
		values:         make([]atomicValPtr[V], cap),
		groupMask:      uint64(groups - 1),
		movedKey:       new(K),
		tombstone:      &valueBox[V]{tag: tombstoneTag},
		tombstonePrime: &valueBox[V]{tag: tombstonePrimeTag},
		counters:       make([]counterStripe, counterStripes),
	}
	for i := range t.control {
		t.control[i].store(emptyWord)
	}
	return t
}

const counterStripes = 16

// emptyWord is a group control word with every lane EMPTY (0x80).
const emptyWord = hiBytes

// NewConcurrentMap constructs a ConcurrentMap. See Option for the
// same capacity/hasher knobs Map accepts; WithLoadFactor is accepted
// but has no effect here, since the concurrent engine grows purely on
// probe exhaustion (spec 4.E's sigNeedResize) rather than a load-factor
// threshold.
func NewConcurrentMap[K comparable, V any](opts ...Option) *ConcurrentMap[K, V] {
	c := resolveConfig(opts)
	m := &ConcurrentMap[K, V]{
		hasher: resolveHasher[K](c),
	}
	m.root.store(newConcurrentTable[K, V](c.capacity))
	return m
}

// Get returns k's current value (spec 4.E reader semantics: restarts
// on MOVED/Prime or an in-flight resize rather than blocking).
func (m *ConcurrentMap[K, V]) Get(k K) (v V, ok bool) {
restart:
	t := m.root.load()
	h1, h2 := splitHash(m.hasher.Hash(k))

	g := uint64(h1) & t.groupMask
	var step uint64
	for i := uint64(0); i <= t.groupMask; i++ {
		word := t.control[g].load()
		mask := eqMask(word, h2)
		for mask != 0 {
			var lane int
			lane, mask = nextMatch(mask)
			idx := g*groupSize + uint64(lane)

			kp := t.keys[idx].load()
			if kp == t.movedKey {
				goto restart
			}
			if kp == nil || *kp != k {
				continue
			}
			vp := t.values[idx].load()
			if vp == nil {
				return v, false
			}
			switch vp.tag {
			case primeTag:
				goto restart
			case tombstoneTag, tombstonePrimeTag:
				return v, false
			default:
				return vp.val, true
			}
		}
		if emptyMask(word) != 0 {
			return v, false
		}
		step++
		g = (g + step) & t.groupMask
	}
	return v, false
}

// ContainsKey reports whether k is present.
func (m *ConcurrentMap[K, V]) ContainsKey(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// ContainsValue scans a Snapshot for a matching value. A live slot's
// value is never the zero valueBox (values are boxed; a nil/tombstone
// box is filtered before comparison), so unlike Map.ContainsValue
// there is no zero-value ambiguity to resolve here.
func (m *ConcurrentMap[K, V]) ContainsValue(v V) bool {
	for _, e := range m.Snapshot() {
		if valueEqual(e.Value, v) {
			return true
		}
	}
	return false
}

// Put unconditionally associates k with v, returning the prior value
// if any. Panics with ErrNilValue if v is a nil pointer, interface,
// map, slice, chan, or func (spec section 3: values are non-null in
// the lock-free engine).
func (m *ConcurrentMap[K, V]) Put(k K, v V) (old V, hadOld bool) {
	if isNilValue(v) {
		panic(ErrNilValue)
	}
	prior, ok := m.apply(k, &valueBox[V]{tag: valTag, val: v}, matchAny, v)
	if ok && prior != nil {
		return prior.val, true
	}
	return old, false
}

// PutIfAbsent inserts v for k only if k is absent. Panics with
// ErrNilValue under the same condition as Put.
func (m *ConcurrentMap[K, V]) PutIfAbsent(k K, v V) (actual V, inserted bool) {
	if isNilValue(v) {
		panic(ErrNilValue)
	}
	prior, ok := m.apply(k, &valueBox[V]{tag: valTag, val: v}, matchAbsent, v)
	if !ok {
		if prior != nil {
			return prior.val, false
		}
		var zero V
		return zero, false
	}
	return v, true
}

// Remove deletes k unconditionally, returning its prior value.
func (m *ConcurrentMap[K, V]) Remove(k K) (old V, removed bool) {
	var zero V
	prior, ok := m.apply(k, nil, matchPresent, zero)
	if ok && prior != nil {
		return prior.val, true
	}
	return old, false
}

// RemoveValue deletes k only if its current value equals expected
// (spec section 6's remove(k,v)).
func (m *ConcurrentMap[K, V]) RemoveValue(k K, expected V) bool {
	_, ok := m.apply(k, nil, matchValue, expected)
	return ok
}

// Replace sets k's value only if k is already present. Panics with
// ErrNilValue under the same condition as Put.
func (m *ConcurrentMap[K, V]) Replace(k K, v V) (old V, replaced bool) {
	if isNilValue(v) {
		panic(ErrNilValue)
	}
	var zero V
	prior, ok := m.apply(k, &valueBox[V]{tag: valTag, val: v}, matchPresent, zero)
	if ok && prior != nil {
		return prior.val, true
	}
	return old, false
}

// ReplaceExpected sets k's value to newV only if its current value
// equals oldV (spec section 6's replace(k,old,new)). Panics with
// ErrNilValue if newV is nil, under the same condition as Put.
func (m *ConcurrentMap[K, V]) ReplaceExpected(k K, oldV, newV V) bool {
	if isNilValue(newV) {
		panic(ErrNilValue)
	}
	_, ok := m.apply(k, &valueBox[V]{tag: valTag, val: newV}, matchValue, oldV)
	return ok
}

// Compute sets k's value to the result of fn, called with the
// current value and presence flag. fn may run more than once under
// contention, the same caveat java.util.concurrent's
// ConcurrentHashMap.compute documents, since it is retried as part of
// the optimistic CAS loop rather than executed under a lock.
func (m *ConcurrentMap[K, V]) Compute(k K, fn func(cur V, present bool) (V, bool)) (V, bool) {
	for {
		cur, present := m.Get(k)
		newV, keep := fn(cur, present)
		if !keep {
			if present {
				m.Remove(k)
			}
			var zero V
			return zero, false
		}
		if present {
			if m.ReplaceExpected(k, cur, newV) {
				return newV, true
			}
		} else {
			if _, inserted := m.PutIfAbsent(k, newV); inserted {
				return newV, true
			}
		}
	}
}

// ComputeIfAbsent sets k's value to fn() only if k is absent.
func (m *ConcurrentMap[K, V]) ComputeIfAbsent(k K, fn func() V) (V, bool) {
	if v, ok := m.Get(k); ok {
		return v, false
	}
	v := fn()
	actual, inserted := m.PutIfAbsent(k, v)
	return actual, inserted
}

// ComputeIfPresent updates k's value via fn only if k is present; a
// false return from fn removes k.
func (m *ConcurrentMap[K, V]) ComputeIfPresent(k K, fn func(cur V) (V, bool)) (V, bool) {
	for {
		cur, ok := m.Get(k)
		if !ok {
			var zero V
			return zero, false
		}
		newV, keep := fn(cur)
		if !keep {
			m.Remove(k)
			var zero V
			return zero, false
		}
		if m.ReplaceExpected(k, cur, newV) {
			return newV, true
		}
	}
}

// Size returns the striped live-count, an approximation that may lag
// a concurrently-settling structural change (spec 4.E: "view sizes
// reflect it, not the snapshot length").
func (m *ConcurrentMap[K, V]) Size() int {
	t := m.root.load()
	var sum int64
	for i := range t.counters {
		sum += t.counters[i].load()
	}
	if sum < 0 {
		sum = 0
	}
	return int(sum)
}

// apply is the outer RETRY/NEED_RESIZE loop spec 4.E describes around
// putIfMatch.
func (m *ConcurrentMap[K, V]) apply(k K, newVal *valueBox[V], mode matchMode, expected V) (prior *valueBox[V], ok bool) {
	for {
		t := m.root.load()
		res, signal := m.putIfMatch(t, k, newVal, mode, expected)
		switch signal {
		case sigDone:
			return res, true
		case sigAbsent, sigFailed:
			return res, false
		case sigRetry:
			continue
		case sigNeedResize:
			m.resizeOrWait(t)
			continue
		}
	}
}

// putIfMatch is the unified mutator primitive (spec 4.E). newVal ==
// nil means the DELETE token (becomes TOMBSTONE).
func (m *ConcurrentMap[K, V]) putIfMatch(t *concurrentTable[K, V], k K, newVal *valueBox[V], mode matchMode, expected V) (*valueBox[V], ctrlSignal) {
	if t.resizing.load() {
		return nil, sigRetry
	}

	h1, h2 := splitHash(m.hasher.Hash(k))
	g := uint64(h1) & t.groupMask
	var step uint64
	for i := uint64(0); i <= t.groupMask; i++ {
		word := t.control[g].load()
		mask := eqMask(word, h2)
		for mask != 0 {
			var lane int
			lane, mask = nextMatch(mask)
			idx := g*groupSize + uint64(lane)

			kp := t.keys[idx].load()
			if kp == t.movedKey {
				return nil, sigRetry
			}
			if kp == nil || *kp != k {
				continue
			}

			vp := t.values[idx].load()
			if vp != nil && vp.tag == primeTag {
				return nil, sigRetry
			}
			if vp == nil || vp.tag == tombstoneTag || vp.tag == tombstonePrimeTag {
				// Treat as absent.
				switch mode {
				case matchPresent, matchValue:
					return nil, sigFailed
				}
				if t.resizing.load() {
					return nil, sigRetry
				}
				if newVal == nil {
					return nil, sigAbsent
				}
				if !t.values[idx].cas(vp, newVal) {
					return nil, sigRetry
				}
				m.bump(t, idx, +1)
				return nil, sigDone
			}

			// Live value present.
			switch mode {
			case matchAbsent:
				return vp, sigFailed
			case matchValue:
				if !valueEqual(vp.val, expected) {
					return vp, sigFailed
				}
			}
			if t.resizing.load() {
				return nil, sigRetry
			}
			target := newVal
			if target == nil {
				target = t.tombstone
			}
			if !t.values[idx].cas(vp, target) {
				return nil, sigRetry
			}
			if newVal == nil {
				m.bump(t, idx, -1)
			}
			return vp, sigDone
		}

		empty := emptyMask(word)
		if empty != 0 {
			if newVal == nil {
				return nil, sigAbsent
			}
			lane, _ := nextMatch(empty)
			idx := g*groupSize + uint64(lane)
			return m.insertAt(t, idx, k, h2, newVal)
		}
		step++
		g = (g + step) & t.groupMask
	}
	return nil, sigNeedResize
}

// insertAt runs the three-CAS publication sequence spec 4.E step 3
// describes for a fresh EMPTY lane: key, then value, then the
// control-byte publishing CAS, re-checking for an in-flight resize
// before each step.
func (m *ConcurrentMap[K, V]) insertAt(t *concurrentTable[K, V], idx uint64, k K, h2 uint8, newVal *valueBox[V]) (*valueBox[V], ctrlSignal) {
	if !t.keys[idx].cas(nil, &k) {
		return nil, sigRetry
	}
	if t.resizing.load() {
		return nil, sigRetry
	}
	if !t.values[idx].cas(nil, newVal) {
		return nil, sigRetry
	}
	if t.resizing.load() {
		return nil, sigRetry
	}
	groupIdx := idx / groupSize
	lane := int(idx % groupSize)
	if !t.control[groupIdx].casByte(lane, emptyCtrl, h2) {
		return nil, sigRetry
	}
	m.bump(t, idx, +1)
	return nil, sigDone
}

func (m *ConcurrentMap[K, V]) bump(t *concurrentTable[K, V], idx uint64, delta int64) {
	stripe := idx % uint64(len(t.counters))
	t.counters[stripe].add(delta)
}

// resizeOrWait implements spec 4.E's cooperative single-copier resize
// protocol. The first caller to win the resizing CAS performs the
// copy and publishes the successor; every other caller spins until
// that publication completes.
func (m *ConcurrentMap[K, V]) resizeOrWait(old *concurrentTable[K, V]) {
	if !old.resizing.cas(false, true) {
		m.spinUntilTableSwapped(old)
		return
	}

	next := newConcurrentTable[K, V](len(old.keys) * 2)
	old.copyInto(next, m)
	old.newTable.store(next)
	m.root.cas(old, next)
}

// spinBudget bounds the busy-spin portion of waiting for a resize to
// publish before escalating to a short sleep. An unbounded spin is
// unsafe on a Go scheduler (M:N, not 1:1 OS threads): a spinning
// goroutine can keep the copier's goroutine off a CPU indefinitely on
// GOMAXPROCS(1) or a saturated machine. This resolves the open
// question spec section 8 raises for spinUntilTableSwapped.
const spinBudget = 1000

func (m *ConcurrentMap[K, V]) spinUntilTableSwapped(old *concurrentTable[K, V]) {
	for i := 0; old.newTable.load() == nil; i++ {
		if i < spinBudget {
			runtime.Gosched()
			continue
		}
		time.Sleep(time.Microsecond)
	}
}

// copyInto performs the per-slot freeze/box/install/finalize sequence
// spec 4.E step 3 describes, walking old in slot order. old.resizing
// is already true, so no new insert can complete past its first
// resizing check once this begins; an insert already mid-flight when
// resizing flipped may still race a single step here, in which case
// it observes resizing on its next checkpoint and retries against
// next instead.
func (old *concurrentTable[K, V]) copyInto(next *concurrentTable[K, V], m *ConcurrentMap[K, V]) {
	for idx := range old.keys {
		var origKey *K
		for {
			kp := old.keys[idx].load()
			if kp == old.movedKey {
				origKey = nil
				break
			}
			if old.keys[idx].cas(kp, old.movedKey) {
				origKey = kp
				break
			}
		}
		if origKey == nil {
			continue
		}

		for {
			vp := old.values[idx].load()
			if vp == nil || vp.tag == tombstoneTag || vp.tag == tombstonePrimeTag {
				break
			}
			var boxed *valueBox[V]
			if vp.tag == primeTag {
				boxed = vp
			} else {
				boxed = &valueBox[V]{tag: primeTag, val: vp.val}
				if !old.values[idx].cas(vp, boxed) {
					continue
				}
			}
			m.putIfMatch(next, *origKey, &valueBox[V]{tag: valTag, val: boxed.val}, matchAbsent, boxed.val)
			for !old.values[idx].cas(boxed, old.tombstonePrime) {
				if old.values[idx].load() == old.tombstonePrime {
					break
				}
			}
			break
		}
	}
}
