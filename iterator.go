package hashsmith

import "iter"

// Range walks m's live entries in slot order, calling fn for each.
// Iteration stops early if fn returns false. If fn removes keys via
// m.Remove and that happens to trigger a same-capacity tombstone
// rehash mid-walk, the rebuilt table is read safely (capacity is
// re-checked each iteration) but entries may be skipped or, rarely,
// revisited — callers mutating m during Range get neither
// at-least-once nor exactly-once delivery.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for i := 0; i < len(m.control); i++ {
		c := m.control[i]
		if c == emptyCtrl || c == deletedCtrl {
			continue
		}
		if !fn(m.keys[i], m.values[i]) {
			return
		}
	}
}

// All returns a range-over-func iterator over m's live entries, in
// the same slot order as Range.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.Range(func(k K, v V) bool { return yield(k, v) })
	}
}

// Keys returns a range-over-func iterator over m's live keys.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.Range(func(k K, _ V) bool { return yield(k) })
	}
}

// Values returns a range-over-func iterator over m's live values.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.Range(func(_ K, v V) bool { return yield(v) })
	}
}
