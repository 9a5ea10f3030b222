package hashsmith

import "reflect"

// Entry is one (key, value) pair captured by Snapshot.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Snapshot returns a point-in-time copy of every live entry, built by
// scanning each group under an acquire-load of the control word,
// filtering FULL lanes, and unboxing Prime/TOMBSTONE as spec 4.E's
// iteration section describes. It is not a consistent whole-map
// snapshot under concurrent mutation: a key observed FULL on read may
// have already been removed by the time it's copied, and vice versa.
func (m *ConcurrentMap[K, V]) Snapshot() []Entry[K, V] {
	t := m.root.load()
	out := make([]Entry[K, V], 0, len(t.keys))

	for g := uint64(0); g <= t.groupMask; g++ {
		word := t.control[g].load()
		mask := fullMask(word)
		for mask != 0 {
			var lane int
			lane, mask = nextMatch(mask)
			idx := g*groupSize + uint64(lane)

			kp := t.keys[idx].load()
			if kp == nil || kp == t.movedKey {
				continue
			}
			vp := t.values[idx].load()
			if vp == nil {
				continue
			}
			switch vp.tag {
			case tombstoneTag, tombstonePrimeTag:
				continue
			case primeTag:
				out = append(out, Entry[K, V]{Key: *kp, Value: vp.val})
			default:
				out = append(out, Entry[K, V]{Key: *kp, Value: vp.val})
			}
		}
	}
	return out
}

// Range calls fn for every live entry in a Snapshot, stopping early
// if fn returns false. Per spec 4.E, an iterator-driven remove
// translates to a plain Remove(key) call.
func (m *ConcurrentMap[K, V]) Range(fn func(k K, v V) bool) {
	for _, e := range m.Snapshot() {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// valueEqual compares two V values for the conditional-mutation and
// ContainsValue operations. V is `any`, not `comparable`, so equality
// goes through reflect.DeepEqual, the same approach
// nikgalushko-swisstable-bench's comparison harness uses for its
// generic value handling.
func valueEqual[V any](a, b V) bool {
	return reflect.DeepEqual(a, b)
}

// isNilValue reports whether v is a nil pointer, interface, map,
// slice, chan, or func. Used to enforce the lock-free engine's
// non-null value invariant (spec section 3). Non-nilable kinds (plain
// ints, structs, strings, ...) are never nil and report false.
func isNilValue[V any](v V) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
