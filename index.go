package kvidx

import (
	"encoding/binary"
	"fmt"
)

// Index is a secondary index maintained by an IndexedMap. Save is called with
// the new record after the old entries were removed; Remove is called with the
// record that is about to disappear (the pre-image on update).
type Index[T any] interface {
	Name() string
	Namespace() Namespace
	Save(s Store, pk []byte, rec *T) error
	Remove(s Store, pk []byte, old *T) error

	attach(primary *Map[T])
}

// Validator is implemented by indexes that must check the store before any
// write of a Save happens.
type Validator[T any] interface {
	Validate(s Store, pk []byte, rec *T) error
}

// IndexFunc derives the index tuple of a record. The primary key is passed for
// indexes that want to embed it.
type IndexFunc[T any] func(pk []byte, rec *T) Tuple

// KeyTransform is a reversible mapping of primary keys applied before they are
// embedded in multi-index keys, e.g. to invert their order. Decode(Encode(pk))
// must equal pk.
type KeyTransform struct {
	Encode func(pk []byte) []byte
	Decode func(stored []byte) ([]byte, error)
}

func (t KeyTransform) isZero() bool {
	return t.Encode == nil && t.Decode == nil
}

// DeserializeFunc recovers the primary key and record of an index entry. key is
// the part of the index key left after the scanned prefix, value is the stored
// index value.
type DeserializeFunc[T any] func(s Store, primary *Map[T], key, value []byte) (pk []byte, rec *T, err error)

// DeserializeMulti is the default DeserializeFunc of multi indexes: the value
// holds the length of the pk stored at the end of the key.
func DeserializeMulti[T any](s Store, primary *Map[T], key, value []byte) ([]byte, *T, error) {
	stored, err := storedPK(key, value)
	if err != nil {
		return nil, nil, err
	}
	return refetch(s, primary, stored)
}

// DeserializeMultiWithPK returns a DeserializeFunc that maps the stored pk
// suffix through decode before refetching the primary record.
func DeserializeMultiWithPK[T any](decode func(stored []byte) ([]byte, error)) DeserializeFunc[T] {
	return func(s Store, primary *Map[T], key, value []byte) ([]byte, *T, error) {
		stored, err := storedPK(key, value)
		if err != nil {
			return nil, nil, err
		}
		pk, err := decode(stored)
		if err != nil {
			return nil, nil, dataErrf(stored, 0, err, "cannot decode stored pk")
		}
		return refetch(s, primary, pk)
	}
}

func storedPK(key, value []byte) ([]byte, error) {
	if len(value) != 4 {
		return nil, dataErrf(value, 0, nil, "multi index value must be a 4-byte pk length")
	}
	n := int(binary.BigEndian.Uint32(value))
	if n > len(key) {
		return nil, dataErrf(key, 0, nil, "pk length %d exceeds remaining key", n)
	}
	return key[len(key)-n:], nil
}

func refetch[T any](s Store, primary *Map[T], pk []byte) ([]byte, *T, error) {
	rec, err := primary.Load(s, pk)
	if err != nil {
		return nil, nil, err
	}
	return pk, rec, nil
}

func encodePKLen(pk []byte) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(len(pk)))
}

// indexBase holds what every index shares: its own namespace and the primary
// map it refers back to.
type indexBase[T any] struct {
	ns      Namespace
	fn      IndexFunc[T]
	primary *Map[T]
}

func (idx *indexBase[T]) Name() string {
	return idx.ns.String()
}

func (idx *indexBase[T]) Namespace() Namespace {
	return idx.ns
}

func (idx *indexBase[T]) attach(primary *Map[T]) {
	if idx.primary != nil && idx.primary != primary {
		panic(fmt.Errorf("index %q is already attached to %q", idx.Name(), idx.primary.Name()))
	}
	idx.primary = primary
}

func (idx *indexBase[T]) requirePrimary() *Map[T] {
	if idx.primary == nil {
		panic(fmt.Errorf("index %q was not added to a collection", idx.Name()))
	}
	return idx.primary
}

func (idx *indexBase[T]) errf(key []byte, err error, format string, args ...any) error {
	coll := ""
	if idx.primary != nil {
		coll = idx.primary.Name()
	}
	return collErrf(coll, idx.Name(), key, err, format, args...)
}
