package pipeline

import (
	"sort"
	"sync"
)

// keyLock serializes operations per (entityType, entityID) key. Entries are
// reference counted so the map does not grow with the number of distinct
// entities ever indexed.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*lockEntry)}
}

// lock acquires the lock for one entity key and returns the release func.
func (k *keyLock) lock(entityType, entityID string) func() {
	key := entityType + ":" + entityID

	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// lockMany acquires locks for a set of entity IDs of one type, in sorted
// order so concurrent batches cannot deadlock against each other. Duplicate
// IDs are locked once. The returned func releases every lock.
func (k *keyLock) lockMany(entityType string, entityIDs []string) func() {
	unique := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		unique[id] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		releases = append(releases, k.lock(entityType, id))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
