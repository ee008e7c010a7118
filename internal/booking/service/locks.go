package service

import (
	"hash/fnv"
	"sync"

	"minister/internal/booking/models"
)

const numCategoryShards = 16

// categoryLocks serializes mutations per category. Categories hash onto a
// fixed set of shards; two categories sharing a shard only costs contention.
type categoryLocks struct {
	shards [numCategoryShards]sync.Mutex
}

func (l *categoryLocks) lock(category models.Category) func() {
	m := &l.shards[shardFor(category)]
	m.Lock()
	return m.Unlock
}

func shardFor(category models.Category) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	return h.Sum32() % numCategoryShards
}
