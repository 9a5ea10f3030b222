// Command hashsmithdemo walks through the basic Map and ConcurrentMap
// operations, adapted from the teacher's original cmd/main.go (which
// drove the old byte-matching primitive directly) to instead drive the
// engines built on top of it.
package main

import (
	"fmt"
	"sync"

	"github.com/hashsmith/hashsmith"
)

func main() {
	demoMap()
	demoConcurrentMap()
}

func demoMap() {
	m := hashsmith.New[string, int](hashsmith.WithCapacity(16))
	for i, word := range []string{"alpha", "bravo", "charlie", "delta"} {
		m.Put(word, i)
	}

	if v, ok := m.Get("charlie"); ok {
		fmt.Println("charlie:", v)
	}

	m.Remove("bravo")
	fmt.Println("size after remove:", m.Size())

	stats := m.Stats()
	fmt.Printf("stats: %+v\n", stats)

	m.Range(func(k string, v int) bool {
		fmt.Println("entry:", k, v)
		return true
	})
}

func demoConcurrentMap() {
	cm := hashsmith.NewConcurrentMap[int, int](hashsmith.WithCapacity(8))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				cm.Put(base*64+i, base)
			}
		}(g)
	}
	wg.Wait()

	fmt.Println("concurrent size:", cm.Size())
	if v, ok := cm.Get(100); ok {
		fmt.Println("key 100 written by goroutine:", v)
	}
}
