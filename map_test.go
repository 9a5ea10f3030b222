package hashsmith

import (
	"fmt"
	"math/rand"
	"runtime"
	"testing"
)

func TestMap_PutAndGet(t *testing.T) {
	tests := []struct {
		key, value int64
	}{
		{1, 2},
		{3, 4},
		{8, 1e9},
		{1e6, 1e10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("key %d", tt.key), func(t *testing.T) {
			m := New[int64, int64](WithCapacity(256))

			m.Put(tt.key, tt.value)

			if got := m.Size(); got != 1 {
				t.Errorf("Size() = %d, want 1", got)
			}

			gotV, ok := m.Get(tt.key)
			if !ok {
				t.Fatalf("Get() ok = false, want true")
			}
			if gotV != tt.value {
				t.Errorf("Get() = %v, want %v", gotV, tt.value)
			}

			if _, ok := m.Get(int64(1e12)); ok {
				t.Errorf("Get(missing) ok = true, want false")
			}
		})
	}
}

// TestMap_ForceFill drives the table right up against maxLoad (the
// teacher's own ForceFill test instead filled past capacity-1, which
// only worked because the teacher's Set had no resize at all; Put
// here resizes at the 7/8 load factor, so this version fills to the
// boundary that load factor actually allows and then checks the next
// insert grows the table instead of corrupting it).
func TestMap_ForceFill(t *testing.T) {
	m := New[int64, int64](WithCapacity(10_000))
	underlyingCapacity := m.Capacity()
	fillTo := m.maxLoad
	t.Logf("filling %d of %d slots (maxLoad), without crossing it", fillTo, underlyingCapacity)

	for j := 0; j < fillTo; j++ {
		m.Put(int64(j), int64(j))
	}

	if got := m.Size(); got != fillTo {
		t.Fatalf("Size() = %d, want %d", got, fillTo)
	}
	if got := m.Capacity(); got != underlyingCapacity {
		t.Fatalf("Capacity() = %d, want unchanged %d before crossing maxLoad", got, underlyingCapacity)
	}

	if _, ok := m.Get(int64(1e12)); ok {
		t.Fatalf("Get(missing) ok = true, want false")
	}

	// One more insert crosses maxLoad and must trigger growth rather
	// than overflow the table.
	m.Put(int64(fillTo), int64(fillTo))
	if v, ok := m.Get(int64(fillTo)); !ok || v != int64(fillTo) {
		t.Fatalf("Get(%d) = (%v, %v), want (%d, true)", fillTo, v, ok, fillTo)
	}

	if got := m.Size(); got != fillTo+1 {
		t.Fatalf("Size() = %d, want %d", got, fillTo+1)
	}
	if got := m.Capacity(); got != underlyingCapacity*2 {
		t.Fatalf("Capacity() = %d, want %d after crossing maxLoad", got, underlyingCapacity*2)
	}

	for j := 0; j <= fillTo; j++ {
		if v, ok := m.Get(int64(j)); !ok || v != int64(j) {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true) after growth", j, v, ok, j)
		}
	}
}

// TestMap_CollisionCascade is spec scenario 1 at small scale: keys
// sharing one hash (same H1 and H2) fill the single group of an
// 8-slot table, so every lookup steps past eqMask false positives.
func TestMap_CollisionCascade(t *testing.T) {
	m := New[int, int](WithCapacity(8), WithHasher[int](constantH1Hasher{}))
	for i := 0; i < 7; i++ {
		m.Put(i, i*10)
	}
	for i := 0; i < 7; i++ {
		v, ok := m.Get(i)
		if !ok || v != i*10 {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true)", i, v, ok, i*10)
		}
	}
}

// TestMap_TombstonesAccumulateWithoutRehash checks the easy half of
// spec scenario 2: removals that keep size+tombstones below maxLoad
// (20 of 28 here) do not fire the rehash even though tombstones
// exceed size/2, and leave the table's capacity untouched and its surviving
// keys reachable, without claiming to exercise the rehash trigger
// itself (see TestMap_TombstoneRehashPreservesCapacity for that).
func TestMap_TombstonesAccumulateWithoutRehash(t *testing.T) {
	m := New[int, int](WithCapacity(32))
	capacity := m.Capacity()

	for i := 0; i < 20; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 9; i++ {
		if _, removed := m.Remove(i); !removed {
			t.Fatalf("Remove(%d) = false, want true", i)
		}
	}

	if got := m.Capacity(); got != capacity {
		t.Fatalf("Capacity() = %d after removals, want unchanged %d", got, capacity)
	}
	if got := m.Tombstones(); got != 9 {
		t.Fatalf("Tombstones() = %d, want 9 (below the rehash trigger)", got)
	}
	for i := 9; i < 20; i++ {
		if v, ok := m.Get(i); !ok || v != i {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true)", i, v, ok, i)
		}
	}
}

// TestMap_TombstoneRehashPreservesCapacity is spec scenario 2's actual
// trigger condition (map.go: tombstones > size/2 && size+tombstones
// >= maxLoad): fills the table to exactly maxLoad so size+tombstones
// stays pinned there across removals, then removes enough entries to
// push the tombstone ratio over half, which must fire a same-capacity
// rehash and reset Tombstones() to 0.
func TestMap_TombstoneRehashPreservesCapacity(t *testing.T) {
	m := New[int, int](WithCapacity(32))
	capacity := m.Capacity()
	maxLoad := m.maxLoad

	for i := 0; i < maxLoad; i++ {
		m.Put(i, i)
	}

	// tombstones > size/2 with size+tombstones == maxLoad requires
	// tombstones > maxLoad/3; remove enough to cross that.
	removeCount := maxLoad/3 + 1
	for i := 0; i < removeCount; i++ {
		if _, removed := m.Remove(i); !removed {
			t.Fatalf("Remove(%d) = false, want true", i)
		}
	}

	if got := m.Capacity(); got != capacity {
		t.Fatalf("Capacity() = %d after tombstone rehash, want unchanged %d", got, capacity)
	}
	if got := m.Tombstones(); got != 0 {
		t.Fatalf("Tombstones() = %d after rehash, want 0", got)
	}
	for i := removeCount; i < maxLoad; i++ {
		if v, ok := m.Get(i); !ok || v != i {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true) after rehash", i, v, ok, i)
		}
	}
}

// TestMap_OverMaxLoadGrows is spec scenario 3.
func TestMap_OverMaxLoadGrows(t *testing.T) {
	m := New[int, int](WithCapacity(8))
	initialCapacity := m.Capacity()
	for i := 0; i < initialCapacity; i++ {
		m.Put(i, i)
	}
	if m.Capacity() <= initialCapacity {
		t.Fatalf("Capacity() = %d, want growth beyond %d", m.Capacity(), initialCapacity)
	}
	for i := 0; i < initialCapacity; i++ {
		if v, ok := m.Get(i); !ok || v != i {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true) after growth", i, v, ok, i)
		}
	}
}

// TestMap_BatchReuseOfTombstones is spec scenario 4.
func TestMap_BatchReuseOfTombstones(t *testing.T) {
	m := New[int, int](WithCapacity(32))
	capacity := m.Capacity()

	for i := 0; i < 27; i++ {
		m.Put(i, i)
	}
	for i := 0; i < 9; i++ {
		m.Remove(i)
	}

	batch := New[int, int](WithCapacity(8))
	for i := 0; i < 8; i++ {
		batch.Put(i, i*2)
	}
	m.PutAll(batch)

	if got := m.Capacity(); got != capacity {
		t.Fatalf("Capacity() = %d after batch reuse, want unchanged %d", got, capacity)
	}
	if got := m.Tombstones(); got != 1 {
		t.Fatalf("Tombstones() = %d, want 1", got)
	}
	for i := 0; i < 8; i++ {
		if v, ok := m.Get(i); !ok || v != i*2 {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true)", i, v, ok, i*2)
		}
	}
	if _, ok := m.Get(8); ok {
		t.Fatalf("Get(8) ok = true, want false")
	}
}

func TestMap_RemoveWithoutTombstone(t *testing.T) {
	m := New[int, int](WithCapacity(32))
	for i := 0; i < 10; i++ {
		m.Put(i, i)
	}
	m.RemoveWithoutTombstone(5)
	if got := m.Tombstones(); got != 0 {
		t.Fatalf("Tombstones() = %d, want 0", got)
	}
	if _, ok := m.Get(5); ok {
		t.Fatalf("Get(5) ok = true, want false")
	}
}

func TestMap_ComputeFamily(t *testing.T) {
	m := New[string, int](WithCapacity(8))

	v, ok := m.ComputeIfAbsent("a", func() int { return 1 })
	if !ok || v != 1 {
		t.Fatalf("ComputeIfAbsent = (%v, %v), want (1, true)", v, ok)
	}

	v, ok = m.ComputeIfPresent("a", func(cur int) (int, bool) { return cur + 1, true })
	if !ok || v != 2 {
		t.Fatalf("ComputeIfPresent = (%v, %v), want (2, true)", v, ok)
	}

	v, ok = m.Compute("a", func(cur int, present bool) (int, bool) {
		if !present {
			t.Fatalf("expected a to be present")
		}
		return 0, false
	})
	if ok {
		t.Fatalf("Compute delete = (%v, %v), want ok=false", v, ok)
	}
	if m.ContainsKey("a") {
		t.Fatalf("ContainsKey(a) = true after Compute delete, want false")
	}
}

func TestMap_ConditionalMutators(t *testing.T) {
	m := New[string, int](WithCapacity(8))
	m.Put("a", 1)

	if m.RemoveValue("a", 2) {
		t.Fatalf("RemoveValue with wrong expected = true, want false")
	}
	if !m.RemoveValue("a", 1) {
		t.Fatalf("RemoveValue with correct expected = false, want true")
	}

	m.Put("b", 1)
	if m.ReplaceExpected("b", 2, 3) {
		t.Fatalf("ReplaceExpected with wrong old = true, want false")
	}
	if !m.ReplaceExpected("b", 1, 3) {
		t.Fatalf("ReplaceExpected with correct old = false, want true")
	}
	if v, _ := m.Get("b"); v != 3 {
		t.Fatalf("Get(b) = %d, want 3", v)
	}
}

func TestMap_ContainsValue(t *testing.T) {
	m := New[int, string](WithCapacity(8))
	m.Put(1, "x")
	m.Put(2, "y")
	if !m.ContainsValue("x") {
		t.Fatalf("ContainsValue(x) = false, want true")
	}
	if m.ContainsValue("z") {
		t.Fatalf("ContainsValue(z) = true, want false")
	}
}

func TestMap_Range(t *testing.T) {
	m := New[int, int](WithCapacity(16))
	want := map[int]int{}
	for i := 0; i < 10; i++ {
		m.Put(i, i*i)
		want[i] = i * i
	}
	got := map[int]int{}
	m.Range(func(k, v int) bool {
		got[k] = v
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("Range visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Range missed or corrupted key %d: got %d, want %d", k, got[k], v)
		}
	}
}

func TestMap_RangeEarlyStop(t *testing.T) {
	m := New[int, int](WithCapacity(16))
	for i := 0; i < 10; i++ {
		m.Put(i, i)
	}
	count := 0
	m.Range(func(k, v int) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Fatalf("Range visited %d entries before stopping, want 3", count)
	}
}

func TestMap_ClearResetsState(t *testing.T) {
	m := New[int, int](WithCapacity(16))
	for i := 0; i < 5; i++ {
		m.Put(i, i)
	}
	m.Remove(0)
	m.Clear()
	if !m.IsEmpty() {
		t.Fatalf("IsEmpty() = false after Clear")
	}
	if got := m.Tombstones(); got != 0 {
		t.Fatalf("Tombstones() = %d after Clear, want 0", got)
	}
	if _, ok := m.Get(1); ok {
		t.Fatalf("Get(1) ok = true after Clear, want false")
	}
}

func TestMap_InvalidLoadFactorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("New did not panic on an invalid load factor")
		}
	}()
	New[int, int](WithLoadFactor(1.5))
}

// constantH1Hasher hashes every key to 0, so every key starts probing
// at group 0 with the same H2, independent of any hash distribution.
type constantH1Hasher struct{}

func (constantH1Hasher) Hash(int) uint64 { return 0 }

var (
	sinkInt64 int64
	sinkBool  bool
)

// BenchmarkPut_Std vs BenchmarkPut_HashSmith compare insertion cost
// against the standard library map, in the teacher's own
// memstat-reporting style (BenchmarkNew_Int64_Swisstable).
func BenchmarkPut_Std(b *testing.B) {
	const n = 100_000
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m := make(map[int64]int64, n)
		for k := int64(0); k < n; k++ {
			m[k] = k
		}
	}
}

func BenchmarkPut_HashSmith(b *testing.B) {
	const n = 100_000
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m := New[int64, int64](WithCapacity(n))
		for k := int64(0); k < n; k++ {
			m.Put(k, k)
		}
	}
}

func BenchmarkGet_HotKeys_HashSmith(b *testing.B) {
	const n = 100_000
	const hotKeyCount = 20
	m := New[int64, int64](WithCapacity(n))
	for k := int64(0); k < n; k++ {
		m.Put(k, k)
	}
	hotKeys := make([]int64, hotKeyCount)
	for i := range hotKeys {
		hotKeys[i] = int64(rand.Intn(n))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, k := range hotKeys {
			sinkInt64, sinkBool = m.Get(k)
		}
	}
	b.StopTimer()
	stats := m.Stats()
	b.Logf("stats: gets=%d extraGroups=%d tophashFalsePositives=%d",
		stats.Gets, stats.GetExtraGroups, stats.GetTopHashFalsePositives)
}

func BenchmarkPut_MemoryOverhead_HashSmith(b *testing.B) {
	const n = 1_000_000
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := New[int64, int64](WithCapacity(n))
		for k := int64(0); k < n; k++ {
			m.Put(k, k)
		}
		b.StopTimer()
		runtime.GC()
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		b.ReportMetric(float64(memStats.HeapAlloc)/float64(16*n), "overhead")
		b.StartTimer()
	}
}
