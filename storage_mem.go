package kvidx

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// MemStore is a sorted in-memory Store. It stands in for a host-provided
// store in tests and is the unit of snapshotting for MemBackend.
type MemStore struct {
	items  []memKV // sorted by key
	logger *slog.Logger
}

type memKV struct {
	key   []byte
	value []byte
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) clone() *MemStore {
	out := &MemStore{items: make([]memKV, len(s.items)), logger: s.logger}
	for i, kv := range s.items {
		out.items[i] = memKV{
			key:   slices.Clone(kv.key),
			value: slices.Clone(kv.value),
		}
	}
	return out
}

func (s *MemStore) Len() int { return len(s.items) }

func (s *MemStore) Get(key []byte) ([]byte, error) {
	i, ok := s.find(key)
	if !ok {
		return nil, nil
	}
	return s.items[i].value, nil
}

func (s *MemStore) Set(key, value []byte) error {
	key = slices.Clone(key)
	value = slices.Clone(value)
	if value == nil {
		value = []byte{}
	}

	i, ok := s.find(key)
	if ok {
		s.items[i].value = value
		return nil
	}
	s.items = slices.Insert(s.items, i, memKV{key: key, value: value})
	return nil
}

func (s *MemStore) Remove(key []byte) error {
	i, ok := s.find(key)
	if !ok {
		return nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *MemStore) Range(start, end *Bound, order Order) Iterator {
	rang := rawRangeOf(start, end, order)
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	return rang.newCursor(&memCursor{s: s, pos: -1}, logger)
}

func (s *MemStore) find(key []byte) (idx int, ok bool) {
	items := s.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

// memCursor walks a snapshot of the item slice taken when the scan starts,
// so writes made while iterating do not shift its position.
type memCursor struct {
	s     *MemStore
	items []memKV
	pos   int
}

func (c *memCursor) snapshot() []memKV {
	if c.items == nil {
		c.items = slices.Clone(c.s.items)
	}
	return c.items
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	items := c.snapshot()
	c.pos = i
	if i < 0 || i >= len(items) {
		return nil, nil
	}
	kv := items[i]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.snapshot()) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	items := c.snapshot()
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, seek) >= 0
	})
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	if c.pos >= len(c.snapshot()) {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos <= 0 {
		c.pos = -1
		return nil, nil
	}
	return c.at(c.pos - 1)
}

// MemBackend adds snapshot transactions on top of a MemStore: one writer at a
// time, each Update works on a private copy that replaces the committed state
// on success.
type MemBackend struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   *MemStore
	opt    Options
	closed bool
	writer bool
}

var _ Backend = (*MemBackend)(nil)

func NewMemBackend(opt Options) *MemBackend {
	b := &MemBackend{data: NewMemStore(), opt: opt}
	b.data.logger = opt.logger()
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *MemBackend) View(f func(s Store) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("storage closed")
	}
	// committed snapshots are never mutated in place
	snap := b.data
	b.mu.Unlock()

	return f(b.opt.wrap(readOnlyStore{snap}))
}

func (b *MemBackend) Update(f func(s Store) error) error {
	b.mu.Lock()
	for b.writer && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("storage closed")
	}
	b.writer = true
	work := b.data.clone()
	b.mu.Unlock()

	err := safelyCall(f, b.opt.wrap(work))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer = false
	b.cond.Broadcast()
	if err != nil {
		return err
	}
	if b.closed {
		return fmt.Errorf("storage closed")
	}
	b.data = work
	return nil
}

func (b *MemBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.data = NewMemStore()
	b.cond.Broadcast()
	return nil
}
