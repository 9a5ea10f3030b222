package hashsmith

import (
	"fmt"
	"reflect"
)

// Map is the single-threaded SwissTable-style engine (spec component
// D): SWAR 8-slot group probing, fingerprint control bytes, tombstone
// accounting, triangular probing. One exclusive owner per table; see
// ConcurrentMap for the lock-free variant.
//
// A Map must not be copied after first use, and concurrent external
// use of a single Map without the caller's own synchronization is
// undefined (spec section 5).
type Map[K comparable, V any] struct {
	control []byte
	keys    []K
	values  []V

	groupMask  uint64
	size       int
	tombstones int
	maxLoad    int
	loadFactor float64
	hasher     Hasher[K]

	// Lightweight per-op counters in the teacher's own style (see the
	// original map.go's gets/getTopHashFalsePositives/getExtraGroups
	// fields). Not part of the public contract; exposed via Stats for
	// anyone instrumenting probe behavior.
	gets                     int64
	getTopHashFalsePositives int64
	getExtraGroups           int64
}

// Stats reports the lightweight probe counters accumulated so far.
type Stats struct {
	Gets                     int64
	GetTopHashFalsePositives int64
	GetExtraGroups           int64
}

// Stats returns a snapshot of m's probe counters.
func (m *Map[K, V]) Stats() Stats {
	return Stats{
		Gets:                     m.gets,
		GetTopHashFalsePositives: m.getTopHashFalsePositives,
		GetExtraGroups:           m.getExtraGroups,
	}
}

// New constructs a Map. capacity is a hint (see WithCapacity); with no
// options it starts at the minimum table size (one group, 8 slots).
func New[K comparable, V any](opts ...Option) *Map[K, V] {
	c := resolveConfig(opts)
	groups, capacity := roundGroups(c.capacity)

	m := &Map[K, V]{
		control:    make([]byte, capacity),
		keys:       make([]K, capacity),
		values:     make([]V, capacity),
		groupMask:  uint64(groups - 1),
		loadFactor: c.loadFactor,
		hasher:     resolveHasher[K](c),
	}
	for i := range m.control {
		m.control[i] = emptyCtrl
	}
	m.maxLoad = int(float64(capacity) * m.loadFactor)
	return m
}

// groupWord loads the 8 packed control bytes for group g as a single
// 64-bit word for SWAR scanning.
func (m *Map[K, V]) groupWord(g uint64) uint64 {
	b := m.control[g*groupSize : g*groupSize+groupSize]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// probeGroups invokes visit for each group in triangular probing
// order starting from h1's group, stopping when visit returns true
// (found/terminate). Triangular probing visits each group exactly
// once because groups is a power of two (spec section 4.D).
func (m *Map[K, V]) probeGroups(h1 uint32, visit func(g uint64) (stop bool)) {
	g := uint64(h1) & m.groupMask
	var step uint64
	for {
		if visit(g) {
			return
		}
		step++
		g = (g + step) & m.groupMask
	}
}

// Get looks up k (spec 4.D Lookup / external get(k)).
func (m *Map[K, V]) Get(k K) (v V, ok bool) {
	m.gets++
	h1, h2 := splitHash(m.hasher.Hash(k))

	first := true
	m.probeGroups(h1, func(g uint64) bool {
		if !first {
			m.getExtraGroups++
		}
		first = false

		word := m.groupWord(g)
		mask := eqMask(word, h2)
		for mask != 0 {
			var lane int
			lane, mask = nextMatch(mask)
			idx := g*groupSize + uint64(lane)
			if m.keys[idx] == k {
				v, ok = m.values[idx], true
				return true
			}
			m.getTopHashFalsePositives++
		}
		// EMPTY proves no DELETED precedes the key in this probe
		// sequence within this group; but triangular probing can
		// legally skip past DELETED slots into a later EMPTY group,
		// so DELETED alone never terminates the search.
		return emptyMask(word) != 0
	})
	return v, ok
}

// ContainsKey reports whether k is present.
func (m *Map[K, V]) ContainsKey(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// ContainsValue reports whether any entry's value equals v. V is not
// constrained to comparable (it is `any`), so equality is checked via
// reflect.DeepEqual; this also answers the spec's left-open question
// for this engine: a stored zero/nil value does participate in the
// comparison rather than being special-cased away.
func (m *Map[K, V]) ContainsValue(v V) bool {
	for i, c := range m.control {
		if c == emptyCtrl || c == deletedCtrl {
			continue
		}
		if reflect.DeepEqual(m.values[i], v) {
			return true
		}
	}
	return false
}

// findSlot runs the shared probe used by Put/Remove/Replace family:
// it returns the index of an existing key match (found=true), or
// (when absent) the index to insert into and whether that index was a
// reclaimed tombstone.
func (m *Map[K, V]) findSlot(k K, h1 uint32, h2 uint8) (idx int, found bool, reuse bool) {
	reuseIdx := -1
	m.probeGroups(h1, func(g uint64) bool {
		word := m.groupWord(g)

		mask := eqMask(word, h2)
		for mask != 0 {
			var lane int
			lane, mask = nextMatch(mask)
			i := g*groupSize + uint64(lane)
			if m.keys[i] == k {
				idx, found = int(i), true
				return true
			}
		}

		if reuseIdx < 0 {
			delMask := eqMask(word, deletedCtrl)
			if delMask != 0 {
				lane, _ := nextMatch(delMask)
				reuseIdx = int(g*groupSize) + lane
			}
		}

		empty := emptyMask(word)
		if empty != 0 {
			lane, _ := nextMatch(empty)
			if reuseIdx >= 0 {
				idx, reuse = reuseIdx, true
			} else {
				idx = int(g*groupSize) + lane
			}
			return true
		}
		return false
	})
	return idx, found, reuse
}

// Put inserts or updates k's value, returning the value that was
// previously associated with k, if any (spec 4.D Insertion).
func (m *Map[K, V]) Put(k K, v V) (old V, hadOld bool) {
	m.maybeResize(1)

	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, reuse := m.findSlot(k, h1, h2)
	if found {
		old, hadOld = m.values[idx], true
		m.values[idx] = v
		return old, hadOld
	}

	if reuse {
		m.tombstones--
	}
	m.size++
	m.control[idx] = h2
	m.keys[idx] = k
	m.values[idx] = v
	return old, false
}

// PutIfAbsent inserts v for k only if k is not already present,
// returning the value now associated with k and whether it was the
// newly-inserted one.
func (m *Map[K, V]) PutIfAbsent(k K, v V) (actual V, inserted bool) {
	m.maybeResize(1)

	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, reuse := m.findSlot(k, h1, h2)
	if found {
		return m.values[idx], false
	}

	if reuse {
		m.tombstones--
	}
	m.size++
	m.control[idx] = h2
	m.keys[idx] = k
	m.values[idx] = v
	return v, true
}

// Remove deletes k, leaving a tombstone behind (spec 4.D Deletion).
func (m *Map[K, V]) Remove(k K) (old V, removed bool) {
	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, _ := m.findSlot(k, h1, h2)
	if !found {
		return old, false
	}
	old = m.values[idx]
	m.deleteAt(idx)
	return old, true
}

// RemoveValue deletes k only if its current value equals expected
// (spec section 6's remove(k,v)).
func (m *Map[K, V]) RemoveValue(k K, expected V) bool {
	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, _ := m.findSlot(k, h1, h2)
	if !found || !reflect.DeepEqual(m.values[idx], expected) {
		return false
	}
	m.deleteAt(idx)
	return true
}

// RemoveWithoutTombstone is Remove followed immediately by a
// same-capacity rehash, leaving zero tombstones (spec 4.D "Alternate
// removal"), intended for benchmarking/state-predictability.
func (m *Map[K, V]) RemoveWithoutTombstone(k K) (old V, removed bool) {
	old, removed = m.Remove(k)
	if removed {
		m.rehashSameCapacity()
	}
	return old, removed
}

func (m *Map[K, V]) deleteAt(idx int) {
	var zeroK K
	var zeroV V
	m.control[idx] = deletedCtrl
	m.keys[idx] = zeroK
	m.values[idx] = zeroV
	m.size--
	m.tombstones++

	// Tombstone-driven rehash must never grow capacity (spec 4.D):
	// it only rebuilds the same slot count to reclaim dead entries.
	if m.tombstones > m.size/2 && m.size+m.tombstones >= m.maxLoad {
		m.rehashSameCapacity()
	}
}

// Replace sets k's value only if k is already present, returning the
// previous value.
func (m *Map[K, V]) Replace(k K, v V) (old V, replaced bool) {
	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, _ := m.findSlot(k, h1, h2)
	if !found {
		return old, false
	}
	old = m.values[idx]
	m.values[idx] = v
	return old, true
}

// ReplaceExpected sets k's value to newV only if its current value
// equals oldV (spec section 6's replace(k,old,new)).
func (m *Map[K, V]) ReplaceExpected(k K, oldV, newV V) bool {
	h1, h2 := splitHash(m.hasher.Hash(k))
	idx, found, _ := m.findSlot(k, h1, h2)
	if !found || !reflect.DeepEqual(m.values[idx], oldV) {
		return false
	}
	m.values[idx] = newV
	return true
}

// Compute sets k's associated value to the result of fn, called with
// the current value (and whether k was present). If fn returns
// ok=false, k is removed (and fn's value is ignored). Returns the
// value fn computed and whether k is present afterward.
func (m *Map[K, V]) Compute(k K, fn func(cur V, present bool) (V, bool)) (V, bool) {
	cur, present := m.Get(k)
	newV, keep := fn(cur, present)
	if !keep {
		if present {
			m.Remove(k)
		}
		var zero V
		return zero, false
	}
	m.Put(k, newV)
	return newV, true
}

// ComputeIfAbsent sets k's value to fn() only if k is absent.
func (m *Map[K, V]) ComputeIfAbsent(k K, fn func() V) (V, bool) {
	if v, ok := m.Get(k); ok {
		return v, false
	}
	v := fn()
	m.Put(k, v)
	return v, true
}

// ComputeIfPresent updates k's value via fn only if k is present; a
// false return from fn removes k.
func (m *Map[K, V]) ComputeIfPresent(k K, fn func(cur V) (V, bool)) (V, bool) {
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
	m.Put(k, newV)
	return newV, true
}

// PutAll copies every entry of other into m. Uses the tighter
// projected-occupancy check spec 4.D describes for batch inserts, so
// that tombstone reuse already present in m can absorb the batch
// without an unnecessary resize.
func (m *Map[K, V]) PutAll(other *Map[K, V]) {
	batch := other.Size()
	reuseRoom := batch - m.tombstones
	if reuseRoom < 0 {
		reuseRoom = 0
	}
	m.maybeResizeFor(m.size + m.tombstones + reuseRoom)

	other.Range(func(k K, v V) bool {
		m.Put(k, v)
		return true
	})
}

// Clear removes all entries, resetting the table to empty at its
// current capacity.
func (m *Map[K, V]) Clear() {
	for i := range m.control {
		m.control[i] = emptyCtrl
	}
	var zeroK K
	var zeroV V
	for i := range m.keys {
		m.keys[i] = zeroK
		m.values[i] = zeroV
	}
	m.size, m.tombstones = 0, 0
}

// Size returns the number of live entries.
func (m *Map[K, V]) Size() int { return m.size }

// IsEmpty reports whether Size() == 0.
func (m *Map[K, V]) IsEmpty() bool { return m.size == 0 }

// Capacity returns the current slot capacity (always a power of two
// multiple of 8).
func (m *Map[K, V]) Capacity() int { return len(m.control) }

// Tombstones returns the current tombstone count.
func (m *Map[K, V]) Tombstones() int { return m.tombstones }

// maybeResize triggers a growth resize before an insertion projected
// to add n entries would exceed maxLoad (spec 4.D Insertion step 1).
func (m *Map[K, V]) maybeResize(n int) {
	m.maybeResizeFor(m.size + m.tombstones + n)
}

func (m *Map[K, V]) maybeResizeFor(projected int) {
	if projected <= m.maxLoad {
		return
	}
	m.growAndRehash()
}

func (m *Map[K, V]) growAndRehash() {
	newCapacity := len(m.control) * 2
	if newCapacity == 0 {
		newCapacity = groupSize
	}
	m.rebuild(newCapacity)
}

// rehashSameCapacity rebuilds at the current capacity, discarding all
// tombstones (spec 4.D Deletion: "never grow capacity").
func (m *Map[K, V]) rehashSameCapacity() {
	m.rebuild(len(m.control))
}

func (m *Map[K, V]) rebuild(newCapacity int) {
	oldControl, oldKeys, oldValues := m.control, m.keys, m.values

	groups := newCapacity / groupSize
	m.control = make([]byte, newCapacity)
	m.keys = make([]K, newCapacity)
	m.values = make([]V, newCapacity)
	for i := range m.control {
		m.control[i] = emptyCtrl
	}
	m.groupMask = uint64(groups - 1)
	m.maxLoad = int(float64(newCapacity) * m.loadFactor)
	m.size, m.tombstones = 0, 0
	m.hasher = reseed(m.hasher)

	for i, c := range oldControl {
		if c == emptyCtrl || c == deletedCtrl {
			continue
		}
		m.insertFresh(oldKeys[i], oldValues[i])
	}
}

// insertFresh writes k/v into a slot during rebuild, where no key
// collision is possible (the destination table starts empty), so it
// skips the tombstone/overwrite bookkeeping Put needs.
func (m *Map[K, V]) insertFresh(k K, v V) {
	h1, h2 := splitHash(m.hasher.Hash(k))
	var idx int
	m.probeGroups(h1, func(g uint64) bool {
		word := m.groupWord(g)
		empty := emptyMask(word)
		if empty != 0 {
			lane, _ := nextMatch(empty)
			idx = int(g*groupSize) + lane
			return true
		}
		return false
	})
	m.control[idx] = h2
	m.keys[idx] = k
	m.values[idx] = v
	m.size++
}

// String renders a short debugging summary; not part of the mapping
// contract.
func (m *Map[K, V]) String() string {
	return fmt.Sprintf("Map{size=%d tombstones=%d capacity=%d}", m.size, m.tombstones, len(m.control))
}
