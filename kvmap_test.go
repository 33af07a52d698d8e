package kvidx

import (
	"errors"
	"testing"
)

type note struct {
	Title string   `msgpack:"title" json:"title"`
	Tags  []string `msgpack:"tags,omitempty" json:"tags,omitempty"`
	Stars int      `msgpack:"stars" json:"stars"`
}

func TestMap_Basics(t *testing.T) {
	for _, enc := range []Encoding{MsgPack, JSON} {
		t.Run(enc.String(), func(t *testing.T) {
			s := NewMemStore()
			notes := NewMap[note](NewNamespace("notes")).WithEncoding(enc)

			n, err := notes.MayLoad(s, []byte("n1"))
			ok(t, err)
			isnil(t, n)

			_, err = notes.Load(s, []byte("n1"))
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load(absent) err = %v, wanted ErrNotFound", err)
			}
			var ce *CollectionError
			if !errors.As(err, &ce) || ce.Collection != "notes" || string(ce.Key) != "n1" {
				t.Fatalf("Load(absent) err = %#v, wanted CollectionError for notes/n1", err)
			}

			ok(t, notes.Save(s, []byte("n1"), &note{Title: "hello", Tags: []string{"a"}, Stars: 3}))
			n, err = notes.Load(s, []byte("n1"))
			ok(t, err)
			deepEqual(t, *n, note{Title: "hello", Tags: []string{"a"}, Stars: 3})

			has, err := notes.Has(s, []byte("n1"))
			ok(t, err)
			deepEqual(t, has, true)

			n, err = notes.Update(s, []byte("n1"), func(old *note) (*note, error) {
				old.Stars++
				return old, nil
			})
			ok(t, err)
			deepEqual(t, n.Stars, 4)

			ok(t, notes.Remove(s, []byte("n1")))
			has, err = notes.Has(s, []byte("n1"))
			ok(t, err)
			deepEqual(t, has, false)
		})
	}
}

func TestMap_EncodingOnDisk(t *testing.T) {
	s := NewMemStore()
	ns := NewNamespace("notes")
	ok(t, NewMap[note](ns).WithEncoding(JSON).Save(s, []byte("k"), &note{Title: "x"}))
	raw, err := s.Get(ns.Key([]byte("k")))
	ok(t, err)
	deepEqual(t, string(raw), `{"title":"x","stars":0}`)
}

func TestMap_UpdateErrorWritesNothing(t *testing.T) {
	s := NewMemStore()
	notes := NewMap[note](NewNamespace("notes"))
	failure := errors.New("nope")
	_, err := notes.Update(s, []byte("k"), func(old *note) (*note, error) {
		isnil(t, old)
		return nil, failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Update err = %v, wanted %v", err, failure)
	}
	deepEqual(t, s.Len(), 0)
}

func TestMap_CorruptValue(t *testing.T) {
	s := NewMemStore()
	notes := NewMap[note](NewNamespace("notes"))
	ok(t, s.Set(notes.Key([]byte("bad")), x("c1")))

	_, err := notes.Load(s, []byte("bad"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Load(corrupt) err = %v, wanted ErrDecode", err)
	}
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Load(corrupt) err = %T, wanted a *DataError inside", err)
	}

	_, err = notes.Range(s, nil, nil, Ascending).Collect(0)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Collect(corrupt) err = %v, wanted ErrDecode", err)
	}
	keys, err := notes.Keys(s, nil, nil, Ascending, 0)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"bad"})
}

func TestMap_RangeAndPrefix(t *testing.T) {
	s := NewMemStore()
	// composite primary keys: (owner, seq)
	notes := NewMap[note](NewNamespace("notes"))
	pk := func(owner string, seq uint32) []byte {
		return Tup(StrKey(owner), U32Key(seq)).Joined()
	}
	for _, owner := range []string{"alice", "bob", "al"} {
		for seq := uint32(1); seq <= 3; seq++ {
			ok(t, notes.Save(s, pk(owner, seq), &note{Title: owner, Stars: int(seq)}))
		}
	}
	// a different map must not leak into scans
	ok(t, NewMap[note](NewNamespace("notes2")).Save(s, pk("alice", 9), &note{}))

	entries, err := notes.Prefix(StrKey("alice")).Range(s, nil, nil, Descending).Collect(0)
	ok(t, err)
	deepEqual(t, len(entries), 3)
	for i, e := range entries {
		seq := uint32(3 - i)
		deepEqual(t, e.Key, U32Key(seq))
		deepEqual(t, e.PK, pk("alice", seq))
		deepEqual(t, e.Record.Stars, int(seq))
		deepEqual(t, e.Record.Title, "alice")
	}

	// "al" is a separate owner, not a prefix of "alice"
	recs, err := notes.Prefix(StrKey("al")).Range(s, Exclusive(U32Key(1)), nil, Ascending).CollectRecords(0)
	ok(t, err)
	deepEqual(t, len(recs), 2)
	deepEqual(t, recs[0].Title, "al")

	keys, err := notes.Keys(s, nil, nil, Ascending, 4)
	ok(t, err)
	deepEqual(t, len(keys), 4)
	deepEqual(t, keys[0], pk("al", 1))

	all, err := notes.Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	deepEqual(t, len(all), 9)
}

func TestPage_Bounds(t *testing.T) {
	start, end := Page{}.Bounds()
	isnil(t, start)
	isnil(t, end)

	start, end = Page{StartAfter: []byte("b")}.Bounds()
	deepEqual(t, start, Exclusive([]byte("b")))
	isnil(t, end)

	start, end = Page{StartAfter: []byte("b"), Order: Descending}.Bounds()
	isnil(t, start)
	deepEqual(t, end, Exclusive([]byte("b")))

	deepEqual(t, Page{}.Take(50), 50)
	deepEqual(t, Page{Limit: -1}.Take(50), 50)
	deepEqual(t, Page{Limit: 7}.Take(50), 7)
}

func TestPrefix_KeysPagination(t *testing.T) {
	s := NewMemStore()
	m := NewMap[int](NewNamespace("m"))
	for i, k := range []string{"b", "bb", "h", "j"} {
		v := i
		ok(t, m.Save(s, []byte(k), &v))
	}
	p := m.Prefix()
	keys, err := p.Keys(s, Page{}, 10)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"b", "bb", "h", "j"})
	keys, err = p.Keys(s, Page{StartAfter: []byte("b")}, 10)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"bb", "h", "j"})
	keys, err = p.Keys(s, Page{Order: Descending}, 10)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"j", "h", "bb", "b"})
	keys, err = p.Keys(s, Page{StartAfter: []byte("j"), Order: Descending, Limit: 2}, 10)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"h", "bb"})
}

func TestItem(t *testing.T) {
	s := NewMemStore()
	cfg := NewItem[note](NewNamespace("config"))

	exists, err := cfg.Exists(s)
	ok(t, err)
	deepEqual(t, exists, false)
	_, err = cfg.Load(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(absent) err = %v, wanted ErrNotFound", err)
	}

	_, err = cfg.Update(s, func(old *note) (*note, error) {
		isnil(t, old)
		return &note{Title: "v1"}, nil
	})
	ok(t, err)
	n, err := cfg.Load(s)
	ok(t, err)
	deepEqual(t, n.Title, "v1")

	// the item lives at the bare namespace key, next to a map sharing the namespace
	raw, err := s.Get(NewNamespace("config").Key(nil))
	ok(t, err)
	if raw == nil {
		t.Fatalf("item not stored at the namespace key")
	}

	ok(t, cfg.Remove(s))
	n, err = cfg.MayLoad(s)
	ok(t, err)
	isnil(t, n)
}
