package dataType

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultSeenCapacity = 65536
	DefaultSeenBuckets  = 16
)

// seenBucket keeps up to limit ids and forgets the oldest one first.
type seenBucket struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
	limit int
}

func newSeenBucket(limit int) *seenBucket {
	return &seenBucket{
		ids:   make(map[string]struct{}, limit),
		order: make([]string, 0, limit),
		limit: limit,
	}
}

func (b *seenBucket) add(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ids[id]; ok {
		return false
	}
	if len(b.order) < b.limit {
		b.order = append(b.order, id)
	} else {
		delete(b.ids, b.order[b.next])
		b.order[b.next] = id
		b.next = (b.next + 1) % b.limit
	}
	b.ids[id] = struct{}{}
	return true
}

func (b *seenBucket) contains(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ids[id]
	return ok
}

func (b *seenBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// SeenSet is the node's dedup store: a bounded set of message ids, sharded
// by xxhash so concurrent handlers rarely contend on the same lock.
// An id stays in the set until capacity/buckets newer ids have landed in
// its bucket.
type SeenSet struct {
	buckets     []*seenBucket
	bucketCount uint64
}

func NewSeenSet(capacity int, bucketCount int) *SeenSet {
	if bucketCount <= 0 {
		bucketCount = DefaultSeenBuckets
	}
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	limit := (capacity + bucketCount - 1) / bucketCount
	s := &SeenSet{
		buckets:     make([]*seenBucket, bucketCount),
		bucketCount: uint64(bucketCount),
	}
	for i := 0; i < bucketCount; i++ {
		s.buckets[i] = newSeenBucket(limit)
	}
	return s
}

func (s *SeenSet) getBucket(id string) *seenBucket {
	return s.buckets[xxhash.Sum64String(id)%s.bucketCount]
}

// Add inserts id and reports whether it was new. Check and insert happen
// under one lock.
func (s *SeenSet) Add(id string) bool {
	return s.getBucket(id).add(id)
}

func (s *SeenSet) Contains(id string) bool {
	return s.getBucket(id).contains(id)
}

func (s *SeenSet) Len() int {
	n := 0
	for _, b := range s.buckets {
		n += b.size()
	}
	return n
}
