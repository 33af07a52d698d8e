package kvidx

import (
	"bytes"
)

// UniqueIndex maps each derived tuple to exactly one primary key. The entry
// key is the joined tuple, the value is the pk.
type UniqueIndex[T any] struct {
	indexBase[T]
}

var (
	_ Index[any]     = (*UniqueIndex[any])(nil)
	_ Validator[any] = (*UniqueIndex[any])(nil)
)

func NewUniqueIndex[T any](ns Namespace, fn IndexFunc[T]) *UniqueIndex[T] {
	if ns.IsZero() {
		panic("unique index needs a namespace")
	}
	return &UniqueIndex[T]{indexBase[T]{ns: ns, fn: fn}}
}

func (idx *UniqueIndex[T]) entryKey(pk []byte, rec *T) []byte {
	return idx.ns.Key(idx.fn(pk, rec).Joined())
}

// Validate fails with ErrConflict when the tuple of rec is already taken by
// another primary key.
func (idx *UniqueIndex[T]) Validate(s Store, pk []byte, rec *T) error {
	idx.requirePrimary()
	key := idx.entryKey(pk, rec)
	existing, err := s.Get(key)
	if err != nil {
		return idx.errf(pk, err, "checking uniqueness")
	}
	if existing != nil && !bytes.Equal(existing, pk) {
		return idx.errf(pk, ErrConflict, "already taken by %s", printableKey(existing))
	}
	return nil
}

func (idx *UniqueIndex[T]) Save(s Store, pk []byte, rec *T) error {
	idx.requirePrimary()
	return s.Set(idx.entryKey(pk, rec), pk)
}

func (idx *UniqueIndex[T]) Remove(s Store, pk []byte, old *T) error {
	idx.requirePrimary()
	key := idx.entryKey(pk, old)
	// the entry may have been claimed by another record since; keep theirs
	existing, err := s.Get(key)
	if err != nil {
		return err
	}
	if existing != nil && !bytes.Equal(existing, pk) {
		return nil
	}
	return s.Remove(key)
}

// Lookup finds the record whose tuple equals t. It returns nil, nil, nil when
// there is none.
func (idx *UniqueIndex[T]) Lookup(s Store, t Tuple) ([]byte, *T, error) {
	primary := idx.requirePrimary()
	pk, err := s.Get(idx.ns.Key(t.Joined()))
	if err != nil || pk == nil {
		return nil, nil, err
	}
	pk = bytes.Clone(pk)
	rec, err := primary.MayLoad(s, pk)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, idx.errf(pk, ErrNotFound, "dangling index entry")
	}
	return pk, rec, nil
}

// Prefix scans the entries whose tuple starts with parts. parts must be
// leading components of a longer tuple: the last component of a joined tuple
// carries no length prefix, so passing every component matches nothing (use
// Lookup for that). Remainder keys are the rest of the joined tuple.
func (idx *UniqueIndex[T]) Prefix(parts ...[]byte) *Prefix[T] {
	primary := idx.requirePrimary()
	return &Prefix[T]{
		name:   idx.Name(),
		prefix: idx.ns.Prefix(parts...),
		hydrate: func(s Store, key, value []byte) ([]byte, *T, error) {
			pk := bytes.Clone(value)
			rec, err := primary.Load(s, pk)
			return pk, rec, err
		},
	}
}
