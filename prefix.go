package kvidx

import (
	"bytes"
)

type hydrateFunc[T any] func(s Store, key, value []byte) (pk []byte, rec *T, err error)

// Prefix is a scannable slice of a keyspace. Bounds passed to Range and keys
// returned by its cursors are relative to the prefix.
type Prefix[T any] struct {
	name    string
	prefix  []byte
	hydrate hydrateFunc[T]
}

func (p *Prefix[T]) Bytes() []byte {
	return p.prefix
}

func (p *Prefix[T]) Range(s Store, start, end *Bound, order Order) *Cursor[T] {
	lower := start.prefixed(p.prefix)
	if lower == nil {
		lower = Inclusive(p.prefix)
	}
	upper := end.prefixed(p.prefix)
	if upper == nil {
		if limit := prefixLimit(p.prefix); limit != nil {
			upper = Exclusive(limit)
		}
	}
	return &Cursor[T]{
		name:    p.name,
		s:       s,
		it:      s.Range(lower, upper, order),
		plen:    len(p.prefix),
		hydrate: p.hydrate,
	}
}

// Keys is a shortcut for collecting the remainder keys of a page.
func (p *Prefix[T]) Keys(s Store, page Page, defaultLimit int) ([][]byte, error) {
	start, end := page.Bounds()
	return p.Range(s, start, end, page.Order).CollectKeys(page.Take(defaultLimit))
}

// Entry is one hydrated scan result.
type Entry[T any] struct {
	Key    []byte // remainder after the prefix
	PK     []byte
	Record *T
}

// Cursor walks a Prefix. Record hydration is lazy: scans that only need keys
// never decode values or touch the primary keyspace.
type Cursor[T any] struct {
	name    string
	s       Store
	it      Iterator
	plen    int
	hydrate hydrateFunc[T]

	key, value []byte
	pk         []byte
	rec        *T
	hydrated   bool
	err        error
}

func (c *Cursor[T]) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.it.Next() {
		c.err = c.it.Err()
		return false
	}
	raw := c.it.Key()
	// keys and values are copied because hydration reads from the same store
	c.key = bytes.Clone(raw[c.plen:])
	c.value = bytes.Clone(c.it.Value())
	c.pk, c.rec, c.hydrated = nil, nil, false
	return true
}

func (c *Cursor[T]) Key() []byte   { return c.key }
func (c *Cursor[T]) Value() []byte { return c.value }
func (c *Cursor[T]) Err() error    { return c.err }

func (c *Cursor[T]) load() error {
	if c.hydrated {
		return nil
	}
	pk, rec, err := c.hydrate(c.s, c.key, c.value)
	if err != nil {
		return collErrf(c.name, "", c.key, err, "")
	}
	c.pk, c.rec, c.hydrated = pk, rec, true
	return nil
}

// PK returns the primary key of the current entry.
func (c *Cursor[T]) PK() ([]byte, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.pk, nil
}

// Record returns the record of the current entry. It is decoded on first
// use and cached until Next.
func (c *Cursor[T]) Record() (*T, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.rec, nil
}

func (c *Cursor[T]) Close() error {
	return c.it.Close()
}

// Collect hydrates up to limit entries (all when limit <= 0) and closes the
// cursor.
func (c *Cursor[T]) Collect(limit int) ([]Entry[T], error) {
	defer c.Close()
	var out []Entry[T]
	for (limit <= 0 || len(out) < limit) && c.Next() {
		if err := c.load(); err != nil {
			return nil, err
		}
		out = append(out, Entry[T]{Key: c.key, PK: c.pk, Record: c.rec})
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectKeys returns up to limit remainder keys (all when limit <= 0) and
// closes the cursor.
func (c *Cursor[T]) CollectKeys(limit int) ([][]byte, error) {
	defer c.Close()
	var out [][]byte
	for (limit <= 0 || len(out) < limit) && c.Next() {
		out = append(out, c.key)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectRecords is Collect without the keys.
func (c *Cursor[T]) CollectRecords(limit int) ([]*T, error) {
	entries, err := c.Collect(limit)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out, nil
}
