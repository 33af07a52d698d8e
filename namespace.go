package kvidx

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const maxSegmentLen = 0xFFFF

// encodeLength returns the 2-byte big-endian length prefix of a namespace
// segment. Longer segments are a configuration error.
func encodeLength(seg []byte) [2]byte {
	if len(seg) > maxSegmentLen {
		panic(fmt.Errorf("%w: segment of %d bytes exceeds %d", ErrInvalidNamespace, len(seg), maxSegmentLen))
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(seg)))
	return b
}

// NamespacesWithKey length-prefixes every namespace segment and appends the
// raw key. The key is never prefixed: it is always the last, unbounded
// component.
func NamespacesWithKey(namespaces [][]byte, key []byte) []byte {
	size := len(key)
	for _, ns := range namespaces {
		size += 2 + len(ns)
	}
	out := make([]byte, 0, size)
	for _, ns := range namespaces {
		l := encodeLength(ns)
		out = append(out, l[:]...)
		out = append(out, ns...)
	}
	return append(out, key...)
}

// SplitNamespaced is the inverse of NamespacesWithKey for a known number of
// segments.
func SplitNamespaced(raw []byte, n int) ([][]byte, []byte, error) {
	segs := make([][]byte, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		if len(raw)-off < 2 {
			return nil, nil, dataErrf(raw, off, nil, "truncated length of segment %d", i)
		}
		l := int(binary.BigEndian.Uint16(raw[off:]))
		off += 2
		if len(raw)-off < l {
			return nil, nil, dataErrf(raw, off, nil, "segment %d wants %d bytes, %d remaining", i, l, len(raw)-off)
		}
		segs = append(segs, raw[off:off+l])
		off += l
	}
	return segs, raw[off:], nil
}

// Namespace identifies a logical keyspace by an ordered list of segments.
type Namespace struct {
	segs   [][]byte
	prefix []byte
}

// NewNamespace panics (wrapping ErrInvalidNamespace) when a segment is longer
// than 65535 bytes.
func NewNamespace(segments ...string) Namespace {
	segs := make([][]byte, len(segments))
	for i, s := range segments {
		segs[i] = []byte(s)
	}
	return makeNamespace(segs)
}

// FromOwned and FromStatic exist for symmetry between names built at runtime
// and compile-time constants; Go strings make them identical.
func FromOwned(name string) Namespace  { return NewNamespace(name) }
func FromStatic(name string) Namespace { return NewNamespace(name) }

func makeNamespace(segs [][]byte) Namespace {
	return Namespace{segs: segs, prefix: NamespacesWithKey(segs, nil)}
}

func (ns Namespace) IsZero() bool {
	return len(ns.segs) == 0
}

func (ns Namespace) Segments() [][]byte {
	return ns.segs
}

// Child returns a namespace nested one level below ns.
func (ns Namespace) Child(seg string) Namespace {
	segs := make([][]byte, 0, len(ns.segs)+1)
	segs = append(segs, ns.segs...)
	return makeNamespace(append(segs, []byte(seg)))
}

// Key returns the full storage key of key within ns.
func (ns Namespace) Key(key []byte) []byte {
	return concatBytes(ns.prefix, key)
}

// Prefix returns the storage prefix of ns extended with length-prefixed parts.
func (ns Namespace) Prefix(parts ...[]byte) []byte {
	if len(parts) == 0 {
		return ns.prefix
	}
	return concatBytes(ns.prefix, NamespacesWithKey(parts, nil))
}

func (ns Namespace) String() string {
	parts := make([]string, len(ns.segs))
	for i, s := range ns.segs {
		parts[i] = printableKey(s)
	}
	return strings.Join(parts, "/")
}

// Tuple is a composite key. All components but the last are length-prefixed
// when joined, so a tuple can be scanned by any leading subset of components.
type Tuple [][]byte

func Tup(parts ...[]byte) Tuple {
	return Tuple(parts)
}

// Joined encodes the tuple as a single key.
func (t Tuple) Joined() []byte {
	if len(t) == 0 {
		return nil
	}
	return NamespacesWithKey(t[:len(t)-1], t[len(t)-1])
}

func StrKey(s string) []byte {
	return []byte(s)
}

// U32Key and U64Key are fixed-width big-endian so byte order equals numeric order.
func U32Key(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func U64Key(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func U64FromKey(k []byte) (uint64, error) {
	if len(k) != 8 {
		return 0, dataErrf(k, 0, nil, "u64 key must be 8 bytes")
	}
	return binary.BigEndian.Uint64(k), nil
}

// Prefixed returns the joined tuple as a key within ns.
func (t Tuple) Prefixed(ns Namespace) []byte {
	return ns.Key(t.Joined())
}
