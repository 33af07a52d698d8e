package kvidx

import (
	"bytes"
	"fmt"
)

// IndexedMap is a Map whose writes keep a fixed list of secondary indexes in
// sync. Save, Update and Remove are the only ways to mutate it; writing the
// primary keyspace directly leaves the indexes stale.
type IndexedMap[T any] struct {
	primary *Map[T]
	indexes []Index[T]
}

// NewIndexedMap attaches indexes to a new primary keyspace. An index can
// belong to only one collection. Namespaces whose key prefixes overlap (equal,
// or one nested in the other) would leak entries into each other's scans and
// panic.
func NewIndexedMap[T any](ns Namespace, indexes ...Index[T]) *IndexedMap[T] {
	prefixes := [][]byte{ns.Prefix()}
	names := []string{ns.String()}
	for _, idx := range indexes {
		p := idx.Namespace().Prefix()
		for i, other := range prefixes {
			if bytes.HasPrefix(p, other) || bytes.HasPrefix(other, p) {
				panic(fmt.Errorf("%s: index namespace %q overlaps %q", ns, idx.Name(), names[i]))
			}
		}
		prefixes = append(prefixes, p)
		names = append(names, idx.Name())
	}

	m := &IndexedMap[T]{primary: NewMap[T](ns)}
	for _, idx := range indexes {
		idx.attach(m.primary)
		m.indexes = append(m.indexes, idx)
	}
	return m
}

func (m *IndexedMap[T]) WithEncoding(enc Encoding) *IndexedMap[T] {
	m.primary.WithEncoding(enc)
	return m
}

func (m *IndexedMap[T]) Name() string        { return m.primary.Name() }
func (m *IndexedMap[T]) Primary() *Map[T]    { return m.primary }
func (m *IndexedMap[T]) Indexes() []Index[T] { return m.indexes }

// Save writes rec under pk. Validators run first, so a conflict leaves the
// store untouched. Index entries are rewritten even when rec equals the stored
// record, so re-saving fills in entries of a newly added index.
func (m *IndexedMap[T]) Save(s Store, pk []byte, rec *T) error {
	old, err := m.primary.MayLoad(s, pk)
	if err != nil {
		return err
	}
	return m.replace(s, pk, old, rec)
}

func (m *IndexedMap[T]) replace(s Store, pk []byte, old, rec *T) error {
	if rec == nil {
		return collErrf(m.Name(), "", pk, nil, "nil record")
	}
	for _, idx := range m.indexes {
		if v, ok := idx.(Validator[T]); ok {
			if err := v.Validate(s, pk, rec); err != nil {
				return err
			}
		}
	}

	if old != nil {
		for _, idx := range m.indexes {
			if err := idx.Remove(s, pk, old); err != nil {
				return collErrf(m.Name(), idx.Name(), pk, err, "removing old entry")
			}
		}
	}
	if err := m.primary.Save(s, pk, rec); err != nil {
		return err
	}
	for _, idx := range m.indexes {
		if err := idx.Save(s, pk, rec); err != nil {
			return collErrf(m.Name(), idx.Name(), pk, err, "saving entry")
		}
	}
	return nil
}

// Update is load-modify-save. f receives nil when pk is absent; an error from
// f aborts with no writes.
func (m *IndexedMap[T]) Update(s Store, pk []byte, f func(old *T) (*T, error)) (*T, error) {
	old, err := m.primary.MayLoad(s, pk)
	if err != nil {
		return nil, err
	}
	var input *T
	if old != nil {
		// f may mutate its argument; old must stay the pre-image
		input, err = decodeCopy(m.primary, old)
		if err != nil {
			return nil, err
		}
	}
	rec, err := f(input)
	if err != nil {
		return nil, err
	}
	if err := m.replace(s, pk, old, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeCopy[T any](m *Map[T], rec *T) (*T, error) {
	raw, err := encodeRecord(m.enc, rec)
	if err != nil {
		return nil, err
	}
	return decodeRecord[T](m.enc, raw)
}

// Remove deletes pk and its index entries. Removing an absent key is a no-op.
func (m *IndexedMap[T]) Remove(s Store, pk []byte) error {
	old, err := m.primary.MayLoad(s, pk)
	if err != nil || old == nil {
		return err
	}
	if err := m.primary.Remove(s, pk); err != nil {
		return err
	}
	for _, idx := range m.indexes {
		if err := idx.Remove(s, pk, old); err != nil {
			return collErrf(m.Name(), idx.Name(), pk, err, "removing entry")
		}
	}
	return nil
}

func (m *IndexedMap[T]) Load(s Store, pk []byte) (*T, error)    { return m.primary.Load(s, pk) }
func (m *IndexedMap[T]) MayLoad(s Store, pk []byte) (*T, error) { return m.primary.MayLoad(s, pk) }
func (m *IndexedMap[T]) Has(s Store, pk []byte) (bool, error)   { return m.primary.Has(s, pk) }

func (m *IndexedMap[T]) Range(s Store, start, end *Bound, order Order) *Cursor[T] {
	return m.primary.Range(s, start, end, order)
}

func (m *IndexedMap[T]) Prefix(parts ...[]byte) *Prefix[T] {
	return m.primary.Prefix(parts...)
}
