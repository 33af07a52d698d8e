package kvidx

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpIndices
	DumpIndexRows

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the collection for humans: records as JSON, index entries as
// raw keys.
func (m *IndexedMap[T]) Dump(s Store, f DumpFlags) (string, error) {
	var w strings.Builder
	prefix := m.Name()

	st, err := m.Stats(s)
	if err != nil {
		return "", err
	}
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(&w, dumpSep1)
		fmt.Fprintf(&w, "%s (%d rows)\n", prefix, st.Rows)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(&w, "%s.stats: index_rows = %d, data_size = %d, index_size = %d, total_size = %d\n", prefix, st.IndexRows, st.DataSize, st.IndexSize, st.TotalSize())
	}

	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&w, dumpSep2)
		}
		c := m.primary.Range(s, nil, nil, Ascending)
		var rowPos int
		for c.Next() {
			rowPos++
			rec, err := c.Record()
			if err != nil {
				fmt.Fprintf(&w, "%s.%d: %s ** ERROR: %v\n", prefix, rowPos, printableKey(c.Key()), err)
				continue
			}
			fmt.Fprintf(&w, "%s.%d: %s = %s\n", prefix, rowPos, printableKey(c.Key()), loggableVal(rec))
		}
		c.Close()
		if err := c.Err(); err != nil {
			return "", err
		}
	}

	if f.Contains(DumpIndices) {
		for _, idx := range m.indexes {
			fmt.Fprintln(&w, dumpSep2)
			iprefix := prefix + ".i." + idx.Name()
			fmt.Fprintf(&w, "%s (%d entries)\n", iprefix, st.Indexes[idx.Name()])
			if !f.Contains(DumpIndexRows) {
				continue
			}
			nsPrefix := idx.Namespace().Prefix()
			var rowPos int
			err := scanPrefix(s, nsPrefix, func(k, v []byte) error {
				rowPos++
				fmt.Fprintf(&w, "%s.%d: %s => %s\n", iprefix, rowPos, hexstr(k[len(nsPrefix):]), hexstr(v))
				return nil
			})
			if err != nil {
				return "", err
			}
		}
	}
	return w.String(), nil
}

func loggableVal(v any) string {
	if v == nil {
		return "<none>"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%T: %v>", v, err)
	}
	return string(raw)
}

// Fingerprint hashes every key and value under prefix. Two stores hold the
// same data under prefix exactly when (barring collisions) their fingerprints
// match, which makes it handy for asserting that reads did not write.
func Fingerprint(s Store, prefix []byte) (uint64, error) {
	h := xxhash.New()
	var lenbuf [4]byte
	err := scanPrefix(s, prefix, func(k, v []byte) error {
		binary.BigEndian.PutUint32(lenbuf[:], uint32(len(k)))
		h.Write(lenbuf[:])
		h.Write(k)
		binary.BigEndian.PutUint32(lenbuf[:], uint32(len(v)))
		h.Write(lenbuf[:])
		h.Write(v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Fingerprint covers the primary keyspace and all index entries.
func (m *IndexedMap[T]) Fingerprint(s Store) (uint64, error) {
	h := xxhash.New()
	var buf [8]byte
	prefixes := [][]byte{m.primary.ns.Prefix()}
	for _, idx := range m.indexes {
		prefixes = append(prefixes, idx.Namespace().Prefix())
	}
	for _, p := range prefixes {
		fp, err := Fingerprint(s, p)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint64(buf[:], fp)
		h.Write(buf[:])
	}
	return h.Sum64(), nil
}
