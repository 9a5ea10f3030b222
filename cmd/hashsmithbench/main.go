// Command hashsmithbench compares hashsmith's Map and ConcurrentMap
// against the standard library map and three other SwissTable-family
// implementations from the ecosystem, grounded on
// nikgalushko-swisstable-bench's main.go/bench.go.
package main

import (
	"flag"
	"fmt"
	"reflect"
	"runtime"
	"testing"

	cockroach "github.com/cockroachdb/swiss"
	crn4 "github.com/crn4/swiss"
	dolthub "github.com/dolthub/swiss"
	"github.com/hashsmith/hashsmith"
	"pgregory.net/rand"
)

// Map is the narrow interface every comparison target implements,
// unchanged from the teacher's bench harness.
type Map[K comparable, V any] interface {
	Get(K) (V, bool)
	Set(K, V)
	Delete(K)
}

type stdMap[K comparable, V any] struct {
	data map[K]V
}

func newStdMap[K comparable, V any]() Map[K, V] {
	return &stdMap[K, V]{data: make(map[K]V)}
}

func (m *stdMap[K, V]) Get(k K) (V, bool) { v, ok := m.data[k]; return v, ok }
func (m *stdMap[K, V]) Set(k K, v V)      { m.data[k] = v }
func (m *stdMap[K, V]) Delete(k K)        { delete(m.data, k) }

type hashsmithMap[K comparable, V any] struct {
	data *hashsmith.Map[K, V]
}

func newHashsmithMap[K comparable, V any]() Map[K, V] {
	return &hashsmithMap[K, V]{data: hashsmith.New[K, V]()}
}

func (m *hashsmithMap[K, V]) Get(k K) (V, bool) { return m.data.Get(k) }
func (m *hashsmithMap[K, V]) Set(k K, v V)      { m.data.Put(k, v) }
func (m *hashsmithMap[K, V]) Delete(k K)        { m.data.Remove(k) }

type hashsmithConcurrentMap[K comparable, V any] struct {
	data *hashsmith.ConcurrentMap[K, V]
}

func newHashsmithConcurrentMap[K comparable, V any]() Map[K, V] {
	return &hashsmithConcurrentMap[K, V]{data: hashsmith.NewConcurrentMap[K, V]()}
}

func (m *hashsmithConcurrentMap[K, V]) Get(k K) (V, bool) { return m.data.Get(k) }
func (m *hashsmithConcurrentMap[K, V]) Set(k K, v V)      { m.data.Put(k, v) }
func (m *hashsmithConcurrentMap[K, V]) Delete(k K)        { m.data.Remove(k) }

type cockroachMap[K comparable, V any] struct {
	data *cockroach.Map[K, V]
}

func newCockroachMap[K comparable, V any]() Map[K, V] {
	return &cockroachMap[K, V]{data: cockroach.New[K, V](0)}
}

func (m *cockroachMap[K, V]) Get(k K) (V, bool) { return m.data.Get(k) }
func (m *cockroachMap[K, V]) Set(k K, v V)      { m.data.Put(k, v) }
func (m *cockroachMap[K, V]) Delete(k K)        { m.data.Delete(k) }

type crn4Map[K comparable, V any] struct {
	data *crn4.Map[K, V]
}

func newCRN4Map[K comparable, V any]() Map[K, V] {
	return &crn4Map[K, V]{data: crn4.New[K, V](0)}
}

func (m *crn4Map[K, V]) Get(k K) (V, bool) { return m.data.Get(k) }
func (m *crn4Map[K, V]) Set(k K, v V)      { m.data.Put(k, v) }
func (m *crn4Map[K, V]) Delete(k K)        { m.data.Delete(k) }

type dolthubMap[K comparable, V any] struct {
	data *dolthub.Map[K, V]
}

func newDolthubMap[K comparable, V any]() Map[K, V] {
	return &dolthubMap[K, V]{data: dolthub.NewMap[K, V](0)}
}

func (m *dolthubMap[K, V]) Get(k K) (V, bool) { return m.data.Get(k) }
func (m *dolthubMap[K, V]) Set(k K, v V)      { m.data.Put(k, v) }
func (m *dolthubMap[K, V]) Delete(k K)        { m.data.Delete(k) }

// randT fills a random value of T, limited to the kinds the dataset
// generator below actually needs.
func randT[T any](r *rand.Rand) T {
	t := reflect.TypeOf((*T)(nil)).Elem()
	switch t.Kind() {
	case reflect.Int:
		v := r.Int()
		return any(v).(T)
	case reflect.String:
		v := randString(r, 7)
		return any(v).(T)
	default:
		panic("hashsmithbench: unsupported type " + t.String())
	}
}

func randString(r *rand.Rand, length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	r.Read(b)
	for i := range length {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

type bench[K comparable, V any] struct {
	build  func() Map[K, V]
	keys   []K
	values []V
}

func newBench[K comparable, V any](size, seed uint64, build func() Map[K, V]) bench[K, V] {
	b := bench[K, V]{build: build, keys: make([]K, size), values: make([]V, size)}
	r := rand.New(seed)
	for i := range b.keys {
		b.keys[i] = randT[K](r)
		b.values[i] = randT[V](r)
	}
	return b
}

func (b *bench[K, V]) benchmarkInsert(t *testing.B) {
	for i := 0; t.Loop(); i++ {
		m := b.build()
		for j, key := range b.keys {
			m.Set(key, b.values[j])
		}
	}
}

func (b *bench[K, V]) benchmarkLookup(t *testing.B) {
	m := b.build()
	for i, key := range b.keys {
		m.Set(key, b.values[i])
	}
	t.ResetTimer()
	for i := 0; t.Loop(); i++ {
		_, _ = m.Get(b.keys[i%len(b.keys)])
	}
}

func measureMemoryUsage() {
	runtime.GC()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("Memory Usage: Alloc = %v KB, Sys = %v KB, NumGC = %v\n", m.Alloc/1024, m.Sys/1024, m.NumGC)
}

func (b *bench[K, V]) run() {
	r := testing.Benchmark(b.benchmarkInsert)
	fmt.Printf("Insert: %v\n", r)
	r = testing.Benchmark(b.benchmarkLookup)
	fmt.Printf("Lookup: %v\n", r)
	measureMemoryUsage()
}

func main() {
	var (
		seed, size uint64
		mapType    string
		keyType    string
	)
	flag.Uint64Var(&seed, "seed", 1234, "seed for the random dataset generator")
	flag.Uint64Var(&size, "dataset-size", 1_000_000, "number of elements in the dataset")
	flag.StringVar(&mapType, "map-type", "hashsmith", "std/hashsmith/concurrent/cockroach/crn4/dolthub")
	flag.StringVar(&keyType, "key-type", "int", "int/string")
	flag.Parse()

	switch keyType {
	case "int":
		build := newHashsmithMap[int, int]
		switch mapType {
		case "std":
			build = newStdMap[int, int]
		case "concurrent":
			build = newHashsmithConcurrentMap[int, int]
		case "cockroach":
			build = newCockroachMap[int, int]
		case "crn4":
			build = newCRN4Map[int, int]
		case "dolthub":
			build = newDolthubMap[int, int]
		}
		b := newBench[int, int](size, seed, build)
		fmt.Println("Running hashsmithbench (int keys)")
		b.run()
	case "string":
		build := newHashsmithMap[string, int]
		switch mapType {
		case "std":
			build = newStdMap[string, int]
		case "concurrent":
			build = newHashsmithConcurrentMap[string, int]
		case "cockroach":
			build = newCockroachMap[string, int]
		case "crn4":
			build = newCRN4Map[string, int]
		case "dolthub":
			build = newDolthubMap[string, int]
		}
		b := newBench[string, int](size, seed, build)
		fmt.Println("Running hashsmithbench (string keys)")
		b.run()
	default:
		panic("hashsmithbench: unsupported -key-type " + keyType)
	}
}
