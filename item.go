package kvidx

// Item is a single record stored under the bare namespace key.
type Item[T any] struct {
	ns  Namespace
	enc Encoding
}

func NewItem[T any](ns Namespace) *Item[T] {
	if ns.IsZero() {
		panic("item needs a namespace")
	}
	return &Item[T]{ns: ns, enc: defaultValueEncoding}
}

func (it *Item[T]) WithEncoding(enc Encoding) *Item[T] {
	it.enc = enc
	return it
}

func (it *Item[T]) key() []byte {
	return it.ns.Key(nil)
}

func (it *Item[T]) Save(s Store, v *T) error {
	raw, err := encodeRecord(it.enc, v)
	if err != nil {
		return collErrf(it.ns.String(), "", nil, err, "")
	}
	return s.Set(it.key(), raw)
}

func (it *Item[T]) Load(s Store) (*T, error) {
	v, err := it.MayLoad(s)
	if err == nil && v == nil {
		err = collErrf(it.ns.String(), "", nil, ErrNotFound, "")
	}
	return v, err
}

func (it *Item[T]) MayLoad(s Store) (*T, error) {
	raw, err := s.Get(it.key())
	if err != nil || raw == nil {
		return nil, err
	}
	v, err := decodeRecord[T](it.enc, raw)
	if err != nil {
		return nil, collErrf(it.ns.String(), "", nil, err, "")
	}
	return v, nil
}

func (it *Item[T]) Exists(s Store) (bool, error) {
	raw, err := s.Get(it.key())
	return raw != nil, err
}

func (it *Item[T]) Remove(s Store) error {
	return s.Remove(it.key())
}

func (it *Item[T]) Update(s Store, f func(old *T) (*T, error)) (*T, error) {
	old, err := it.MayLoad(s)
	if err != nil {
		return nil, err
	}
	v, err := f(old)
	if err != nil {
		return nil, err
	}
	if err := it.Save(s, v); err != nil {
		return nil, err
	}
	return v, nil
}
