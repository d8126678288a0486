// Package hashmap implements a generic hash table with separate chaining and
// doubling rehash on growth.
//
// Keys are compared with == and bucketed by an explicit hash function supplied
// at construction, so composite keys such as coordinates hash by content rather
// than identity. There is no per-key deletion; Reset discards everything.
//
// A Map is not safe for concurrent mutation. Concurrent readers are fine once
// writes have stopped.
package hashmap

import (
	"iter"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultBuckets is the bucket count of a new or reset Map.
	DefaultBuckets = 8
	// DefaultMaxLoadFactor is the occupancy ratio above which the table doubles.
	DefaultMaxLoadFactor = 0.5
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Map associates keys with values.
type Map[K comparable, V any] struct {
	hash     func(K) uint64
	buckets  [][]entry[K, V]
	size     int
	maxLoad  float64
	initial  int
	rehashes int
}

type config struct {
	buckets int
	maxLoad float64
}

// Option configures a Map.
type Option func(*config)

// WithMaxLoadFactor sets the load factor that triggers growth. Non-positive
// values fall back to DefaultMaxLoadFactor.
func WithMaxLoadFactor(f float64) Option {
	return func(c *config) {
		if f > 0 {
			c.maxLoad = f
		}
	}
}

// WithBuckets sets the initial bucket count (and the count Reset returns to).
func WithBuckets(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.buckets = n
		}
	}
}

// New returns an empty Map that buckets keys with hash.
func New[K comparable, V any](hash func(K) uint64, opts ...Option) *Map[K, V] {
	cfg := config{buckets: DefaultBuckets, maxLoad: DefaultMaxLoadFactor}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Map[K, V]{
		hash:    hash,
		buckets: make([][]entry[K, V], cfg.buckets),
		maxLoad: cfg.maxLoad,
		initial: cfg.buckets,
	}
}

func (m *Map[K, V]) bucketIndex(key K, n int) int {
	return int(m.hash(key) % uint64(n))
}

// Associate maps key to value, replacing any existing value for key.
// Pointers obtained from Ptr are invalid after Associate returns.
func (m *Map[K, V]) Associate(key K, value V) {
	if p := m.Ptr(key); p != nil {
		*p = value
		return
	}

	if float64(m.size+1)/float64(len(m.buckets)) > m.maxLoad {
		m.grow()
	}

	i := m.bucketIndex(key, len(m.buckets))
	m.buckets[i] = append(m.buckets[i], entry[K, V]{key: key, value: value})
	m.size++
}

// grow doubles the bucket array and moves every entry into it.
func (m *Map[K, V]) grow() {
	n := len(m.buckets) * 2
	next := make([][]entry[K, V], n)
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			i := m.bucketIndex(e.key, n)
			next[i] = append(next[i], e)
		}
	}
	m.buckets = next
	m.rehashes++
}

// Find returns the value associated with key and whether it was present.
func (m *Map[K, V]) Find(key K) (V, bool) {
	if p := m.Ptr(key); p != nil {
		return *p, true
	}
	var zero V
	return zero, false
}

// Ptr returns a pointer to the stored value for key, or nil if absent.
// The pointer is only valid until the next Associate or Reset.
func (m *Map[K, V]) Ptr(key K) *V {
	bucket := m.buckets[m.bucketIndex(key, len(m.buckets))]
	for i := range bucket {
		if bucket[i].key == key {
			return &bucket[i].value
		}
	}
	return nil
}

// Contains reports whether key has an association.
func (m *Map[K, V]) Contains(key K) bool {
	return m.Ptr(key) != nil
}

// Size returns the number of associations.
func (m *Map[K, V]) Size() int { return m.size }

// Buckets returns the current bucket count.
func (m *Map[K, V]) Buckets() int { return len(m.buckets) }

// Rehashes returns how many times the table has doubled since creation or Reset.
func (m *Map[K, V]) Rehashes() int { return m.rehashes }

// Reset discards all associations and returns to the initial bucket count.
func (m *Map[K, V]) Reset() {
	m.buckets = make([][]entry[K, V], m.initial)
	m.size = 0
	m.rehashes = 0
}

// All iterates over every association in bucket order. The Map must not be
// modified during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, bucket := range m.buckets {
			for _, e := range bucket {
				if !yield(e.key, e.value) {
					return
				}
			}
		}
	}
}

// String hashes string keys by content.
func String(s string) uint64 { return xxhash.Sum64String(s) }

// Int hashes integer keys.
func Int(i int) uint64 {
	x := uint64(i)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return x
}
