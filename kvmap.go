package kvidx

// Map is a typed keyspace: every key under its namespace holds one encoded
// record. Maps are stateless descriptors and can be shared freely.
type Map[T any] struct {
	ns  Namespace
	enc Encoding
}

func NewMap[T any](ns Namespace) *Map[T] {
	if ns.IsZero() {
		panic("map needs a namespace")
	}
	return &Map[T]{ns: ns, enc: defaultValueEncoding}
}

func (m *Map[T]) WithEncoding(enc Encoding) *Map[T] {
	m.enc = enc
	return m
}

func (m *Map[T]) Name() string         { return m.ns.String() }
func (m *Map[T]) Namespace() Namespace { return m.ns }
func (m *Map[T]) Encoding() Encoding   { return m.enc }
func (m *Map[T]) Key(pk []byte) []byte { return m.ns.Key(pk) }
func (m *Map[T]) String() string       { return m.Name() }

func (m *Map[T]) Save(s Store, pk []byte, rec *T) error {
	if rec == nil {
		return collErrf(m.Name(), "", pk, nil, "nil record")
	}
	raw, err := encodeRecord(m.enc, rec)
	if err != nil {
		return collErrf(m.Name(), "", pk, err, "")
	}
	return s.Set(m.Key(pk), raw)
}

// Load fails with ErrNotFound when pk is absent.
func (m *Map[T]) Load(s Store, pk []byte) (*T, error) {
	rec, err := m.MayLoad(s, pk)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, collErrf(m.Name(), "", pk, ErrNotFound, "")
	}
	return rec, nil
}

// MayLoad returns nil, nil when pk is absent.
func (m *Map[T]) MayLoad(s Store, pk []byte) (*T, error) {
	raw, err := s.Get(m.Key(pk))
	if err != nil {
		return nil, collErrf(m.Name(), "", pk, err, "")
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := decodeRecord[T](m.enc, raw)
	if err != nil {
		return nil, collErrf(m.Name(), "", pk, err, "")
	}
	return rec, nil
}

func (m *Map[T]) Has(s Store, pk []byte) (bool, error) {
	raw, err := s.Get(m.Key(pk))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (m *Map[T]) Remove(s Store, pk []byte) error {
	return s.Remove(m.Key(pk))
}

// Update loads the record (nil when absent), passes it to f and saves the
// result. Nothing is written when f fails.
func (m *Map[T]) Update(s Store, pk []byte, f func(old *T) (*T, error)) (*T, error) {
	old, err := m.MayLoad(s, pk)
	if err != nil {
		return nil, err
	}
	rec, err := f(old)
	if err != nil {
		return nil, err
	}
	if err := m.Save(s, pk, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Range iterates over the whole map; bounds are primary keys.
func (m *Map[T]) Range(s Store, start, end *Bound, order Order) *Cursor[T] {
	return m.Prefix().Range(s, start, end, order)
}

// Prefix scans the records whose keys start with the length-prefixed parts,
// the way composite primary keys built with Tuple.Joined are laid out.
func (m *Map[T]) Prefix(parts ...[]byte) *Prefix[T] {
	keyPrefix := NamespacesWithKey(parts, nil)
	return &Prefix[T]{
		name:   m.Name(),
		prefix: m.ns.Prefix(parts...),
		hydrate: func(s Store, key, value []byte) ([]byte, *T, error) {
			rec, err := decodeRecord[T](m.enc, value)
			if err != nil {
				return nil, nil, err
			}
			return concatBytes(keyPrefix, key), rec, nil
		},
	}
}

// Keys returns up to limit primary keys between start and end.
func (m *Map[T]) Keys(s Store, start, end *Bound, order Order, limit int) ([][]byte, error) {
	return m.Range(s, start, end, order).CollectKeys(limit)
}
