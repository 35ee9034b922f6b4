package cache

import (
	"container/list"
	"time"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

type entry struct {
	key        Key
	value      record.Value
	size       uint64
	createdAt  time.Time
	lastAccess time.Time
}

// lruStore is the in-memory tier of the result cache: a doubly linked list in
// recency order plus lookup maps, bounded by total bytes and entry count. It
// is not safe for concurrent use; [Cache] serializes access to it.
type lruStore struct {
	maxBytes   uint64
	maxEntries int

	ll    *list.List
	items map[Key]*list.Element
	bySig map[functions.Signature]map[Key]*list.Element

	curBytes uint64
}

func newLRUStore(maxBytes uint64, maxEntries int) *lruStore {
	return &lruStore{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[Key]*list.Element),
		bySig:      make(map[functions.Signature]map[Key]*list.Element),
	}
}

// get returns the value stored under key and marks it as most recently used.
func (s *lruStore) get(key Key, now time.Time) (record.Value, bool) {
	elem, ok := s.items[key]
	if !ok {
		return record.Value{}, false
	}
	s.ll.MoveToFront(elem)
	ent := elem.Value.(*entry)
	ent.lastAccess = now
	return ent.value, true
}

// put inserts or replaces the entry for key at the hot end of the list, then
// evicts from the cold end until the store is back under budget. It returns
// the evicted entries so the caller can account for them. The caller must
// ensure size fits the budget at all; oversized values are rejected before
// they reach the store.
func (s *lruStore) put(key Key, value record.Value, size uint64, now time.Time) []entry {
	if elem, ok := s.items[key]; ok {
		ent := elem.Value.(*entry)
		s.curBytes -= ent.size
		ent.value = value
		ent.size = size
		ent.lastAccess = now
		s.curBytes += size
		s.ll.MoveToFront(elem)
	} else {
		elem := s.ll.PushFront(&entry{key: key, value: value, size: size, createdAt: now, lastAccess: now})
		s.items[key] = elem

		keys := s.bySig[key.Signature]
		if keys == nil {
			keys = make(map[Key]*list.Element)
			s.bySig[key.Signature] = keys
		}
		keys[key] = elem

		s.curBytes += size
	}

	var evicted []entry
	for s.overBudget() {
		back := s.ll.Back()
		if back == nil {
			break
		}
		evicted = append(evicted, s.remove(back))
	}
	return evicted
}

// invalidate drops every entry recorded under sig and reports how many were
// removed.
func (s *lruStore) invalidate(sig functions.Signature) int {
	keys := s.bySig[sig]
	n := len(keys)
	for _, elem := range keys {
		s.remove(elem)
	}
	return n
}

func (s *lruStore) remove(elem *list.Element) entry {
	ent := elem.Value.(*entry)
	s.ll.Remove(elem)
	delete(s.items, ent.key)

	if keys := s.bySig[ent.key.Signature]; keys != nil {
		delete(keys, ent.key)
		if len(keys) == 0 {
			delete(s.bySig, ent.key.Signature)
		}
	}

	s.curBytes -= ent.size
	return *ent
}

func (s *lruStore) overBudget() bool {
	if s.maxBytes > 0 && s.curBytes > s.maxBytes {
		return true
	}
	if s.maxEntries > 0 && s.ll.Len() > s.maxEntries {
		return true
	}
	return false
}

func (s *lruStore) len() int { return s.ll.Len() }

func (s *lruStore) bytes() uint64 { return s.curBytes }
