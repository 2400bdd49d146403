package sync

import (
	"sort"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock is a partitioned locking mechanism that consistently maps a key
// space to a set of locks. This provides concurrent data access while also
// limiting the total memory footprint.
type StripedLock struct {
	locks    []base.RWMutex
	hashRing *ring
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks:    make([]base.RWMutex, stripes),
		hashRing: newRing("lock", int(stripes), hashEntriesPerLock),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.stripe(key)]
}

// LockAll write-locks the stripes covering every key and returns a function
// that releases them. Stripes are taken once each in ascending index order, so
// concurrent callers with overlapping key sets cannot deadlock.
func (l *StripedLock) LockAll(keys ...[]byte) (unlock func()) {
	seen := make(map[int]struct{})
	var stripes []int
	for _, key := range keys {
		stripe := l.stripe(key)
		if _, ok := seen[stripe]; ok {
			continue
		}

		seen[stripe] = struct{}{}
		stripes = append(stripes, stripe)
	}
	sort.Ints(stripes)

	for _, stripe := range stripes {
		l.locks[stripe].Lock()
	}

	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			l.locks[stripes[i]].Unlock()
		}
	}
}

func (l *StripedLock) stripe(key []byte) int {
	return l.hashRing.shard(key)
}
