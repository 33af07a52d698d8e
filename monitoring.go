package kvidx

type Stats struct {
	Rows      int
	IndexRows int

	DataSize  int
	IndexSize int

	// Indexes holds the entry count of each index by name.
	Indexes map[string]int
}

func (st *Stats) TotalSize() int {
	return st.DataSize + st.IndexSize
}

// Stats scans the primary keyspace and every index. It is O(size of the
// collection) and meant for diagnostics.
func (m *IndexedMap[T]) Stats(s Store) (Stats, error) {
	var result Stats
	n, size, err := scanSize(s, m.primary.ns.Prefix())
	if err != nil {
		return result, err
	}
	result.Rows, result.DataSize = n, size

	result.Indexes = make(map[string]int, len(m.indexes))
	for _, idx := range m.indexes {
		n, size, err := scanSize(s, idx.Namespace().Prefix())
		if err != nil {
			return result, err
		}
		result.IndexRows += n
		result.IndexSize += size
		result.Indexes[idx.Name()] = n
	}
	return result, nil
}

func scanSize(s Store, prefix []byte) (n, size int, err error) {
	err = scanPrefix(s, prefix, func(k, v []byte) error {
		n++
		size += len(k) + len(v)
		return nil
	})
	return
}

// scanPrefix calls f for every raw key/value under prefix in ascending order.
func scanPrefix(s Store, prefix []byte, f func(k, v []byte) error) error {
	var upper *Bound
	if limit := prefixLimit(prefix); limit != nil {
		upper = Exclusive(limit)
	}
	it := s.Range(Inclusive(prefix), upper, Ascending)
	defer it.Close()
	for it.Next() {
		if err := f(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}
