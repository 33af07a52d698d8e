package kvidx

// MultiIndex maps a derived tuple to any number of primary keys. Each entry
// key is the length-prefixed tuple followed by the (optionally transformed)
// pk; the value is the pk length as a big-endian uint32.
type MultiIndex[T any] struct {
	indexBase[T]
	transform KeyTransform
	dese      DeserializeFunc[T]
	cond      func(rec *T) bool
}

var _ Index[any] = (*MultiIndex[any])(nil)

func NewMultiIndex[T any](ns Namespace, fn IndexFunc[T]) *MultiIndex[T] {
	if ns.IsZero() {
		panic("multi index needs a namespace")
	}
	return &MultiIndex[T]{indexBase: indexBase[T]{ns: ns, fn: fn}}
}

// WithTransform stores pks through t.Encode and recovers them with t.Decode.
func (idx *MultiIndex[T]) WithTransform(t KeyTransform) *MultiIndex[T] {
	if t.Encode == nil || t.Decode == nil {
		panic("key transform needs both Encode and Decode")
	}
	idx.transform = t
	if idx.dese == nil {
		idx.dese = DeserializeMultiWithPK[T](t.Decode)
	}
	return idx
}

// WithDeserializer overrides how pks and records are recovered from entries.
func (idx *MultiIndex[T]) WithDeserializer(f DeserializeFunc[T]) *MultiIndex[T] {
	idx.dese = f
	return idx
}

// When restricts the index to records for which cond holds.
func (idx *MultiIndex[T]) When(cond func(rec *T) bool) *MultiIndex[T] {
	idx.cond = cond
	return idx
}

func (idx *MultiIndex[T]) includes(rec *T) bool {
	return idx.cond == nil || idx.cond(rec)
}

func (idx *MultiIndex[T]) storedPK(pk []byte) []byte {
	if idx.transform.isZero() {
		return pk
	}
	return idx.transform.Encode(pk)
}

func (idx *MultiIndex[T]) entryKey(pk []byte, rec *T) []byte {
	segs := idx.ns.Segments()
	t := idx.fn(pk, rec)
	parts := make([][]byte, 0, len(segs)+len(t))
	parts = append(parts, segs...)
	parts = append(parts, t...)
	return NamespacesWithKey(parts, idx.storedPK(pk))
}

func (idx *MultiIndex[T]) Save(s Store, pk []byte, rec *T) error {
	idx.requirePrimary()
	if !idx.includes(rec) {
		return nil
	}
	return s.Set(idx.entryKey(pk, rec), encodePKLen(idx.storedPK(pk)))
}

func (idx *MultiIndex[T]) Remove(s Store, pk []byte, old *T) error {
	idx.requirePrimary()
	if !idx.includes(old) {
		return nil
	}
	return s.Remove(idx.entryKey(pk, old))
}

func (idx *MultiIndex[T]) deserializer() DeserializeFunc[T] {
	if idx.dese != nil {
		return idx.dese
	}
	return DeserializeMulti[T]
}

// Prefix scans the entries whose tuple starts with parts. With as many parts
// as the tuple has components, remainder keys are the stored pks.
func (idx *MultiIndex[T]) Prefix(parts ...[]byte) *Prefix[T] {
	primary := idx.requirePrimary()
	dese := idx.deserializer()
	return &Prefix[T]{
		name:   idx.Name(),
		prefix: idx.ns.Prefix(parts...),
		hydrate: func(s Store, key, value []byte) ([]byte, *T, error) {
			return dese(s, primary, key, value)
		},
	}
}

// SubPrefix scans the whole index.
func (idx *MultiIndex[T]) SubPrefix() *Prefix[T] {
	return idx.Prefix()
}

// IndexKey returns the entry key rec would have under pk, or nil when the
// record is excluded by the index condition.
func (idx *MultiIndex[T]) IndexKey(pk []byte, rec *T) []byte {
	if !idx.includes(rec) {
		return nil
	}
	return idx.entryKey(pk, rec)
}
