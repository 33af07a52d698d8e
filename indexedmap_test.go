package kvidx

import (
	"errors"
	"strings"
	"testing"
)

type person struct {
	Name   string
	Email  string
	City   string
	Age    uint32
	Active bool
}

type people struct {
	*IndexedMap[person]
	byEmail  *UniqueIndex[person]
	byCity   *MultiIndex[person]
	byActive *MultiIndex[person]
}

func newPeople() *people {
	p := &people{
		byEmail: NewUniqueIndex[person](NewNamespace("people_email"), func(pk []byte, rec *person) Tuple {
			return Tup(StrKey(rec.Email))
		}),
		byCity: NewMultiIndex[person](NewNamespace("people_city"), func(pk []byte, rec *person) Tuple {
			return Tup(StrKey(rec.City))
		}),
		byActive: NewMultiIndex[person](NewNamespace("people_active"), func(pk []byte, rec *person) Tuple {
			return Tup(U32Key(rec.Age))
		}).When(func(rec *person) bool { return rec.Active }),
	}
	p.IndexedMap = NewIndexedMap[person](NewNamespace("people"), p.byEmail, p.byCity, p.byActive)
	return p
}

var (
	alice = person{Name: "Alice", Email: "a@x", City: "Paris", Age: 30, Active: true}
	bob   = person{Name: "Bob", Email: "b@x", City: "Paris", Age: 25}
	carol = person{Name: "Carol", Email: "c@x", City: "Rome", Age: 41, Active: true}
)

func seedPeople(t testing.TB, s Store, p *people) {
	t.Helper()
	for pk, rec := range map[string]person{"alice": alice, "bob": bob, "carol": carol} {
		ok(t, p.Save(s, []byte(pk), &rec))
	}
}

func cityKeys(t testing.TB, s Store, p *people, city string) []string {
	t.Helper()
	keys, err := p.byCity.Prefix(StrKey(city)).Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	return strs(keys)
}

func fingerprint(t testing.TB, s Store, p *people) uint64 {
	t.Helper()
	return must(p.Fingerprint(s))
}

func TestIndexedMap_Lifecycle(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			p := newPeople()
			update(t, b, func(s Store) {
				seedPeople(t, s, p)
			})

			view(t, b, func(s Store) {
				pk, rec, err := p.byEmail.Lookup(s, Tup(StrKey("b@x")))
				ok(t, err)
				deepEqual(t, string(pk), "bob")
				deepEqual(t, *rec, bob)

				pk, rec, err = p.byEmail.Lookup(s, Tup(StrKey("nobody@x")))
				ok(t, err)
				isempty(t, pk)
				isnil(t, rec)

				deepEqual(t, cityKeys(t, s, p, "Paris"), []string{"alice", "bob"})
				deepEqual(t, cityKeys(t, s, p, "Rome"), []string{"carol"})
			})

			// move alice to Rome under a new address
			update(t, b, func(s Store) {
				_, err := p.Update(s, []byte("alice"), func(old *person) (*person, error) {
					old.City = "Rome"
					old.Email = "alice@x"
					return old, nil
				})
				ok(t, err)
			})
			view(t, b, func(s Store) {
				deepEqual(t, cityKeys(t, s, p, "Paris"), []string{"bob"})
				deepEqual(t, cityKeys(t, s, p, "Rome"), []string{"alice", "carol"})

				pk, _, err := p.byEmail.Lookup(s, Tup(StrKey("a@x")))
				ok(t, err)
				isempty(t, pk)
				pk, rec, err := p.byEmail.Lookup(s, Tup(StrKey("alice@x")))
				ok(t, err)
				deepEqual(t, string(pk), "alice")
				deepEqual(t, rec.City, "Rome")
			})

			update(t, b, func(s Store) {
				ok(t, p.Remove(s, []byte("bob")))
				ok(t, p.Remove(s, []byte("bob")))
			})
			view(t, b, func(s Store) {
				isempty(t, cityKeys(t, s, p, "Paris"))
				has, err := p.Has(s, []byte("bob"))
				ok(t, err)
				deepEqual(t, has, false)
				pk, _, err := p.byEmail.Lookup(s, Tup(StrKey("b@x")))
				ok(t, err)
				isempty(t, pk)

				st, err := p.Stats(s)
				ok(t, err)
				deepEqual(t, st.Rows, 2)
				deepEqual(t, st.Indexes, map[string]int{"people_email": 2, "people_city": 2, "people_active": 2})
			})
		})
	}
}

func TestIndexedMap_UniqueConflict(t *testing.T) {
	s := NewMemStore()
	p := newPeople()
	seedPeople(t, s, p)
	before := fingerprint(t, s, p)

	dave := person{Name: "Dave", Email: "a@x", City: "Oslo"}
	err := p.Save(s, []byte("dave"), &dave)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Save(dave) err = %v, wanted ErrConflict", err)
	}
	_, err = p.Update(s, []byte("bob"), func(old *person) (*person, error) {
		old.Email = "c@x"
		return old, nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Update(bob) err = %v, wanted ErrConflict", err)
	}
	deepEqual(t, fingerprint(t, s, p), before)

	// keeping your own unique value is not a conflict
	_, err = p.Update(s, []byte("bob"), func(old *person) (*person, error) {
		old.Age++
		return old, nil
	})
	ok(t, err)
}

func TestIndexedMap_UpdateFailureWritesNothing(t *testing.T) {
	s := NewMemStore()
	p := newPeople()
	seedPeople(t, s, p)
	before := fingerprint(t, s, p)

	failure := errors.New("rejected")
	_, err := p.Update(s, []byte("alice"), func(old *person) (*person, error) {
		old.City = "Berlin"
		return nil, failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Update err = %v, wanted %v", err, failure)
	}
	deepEqual(t, fingerprint(t, s, p), before)

	// re-saving an unchanged record leaves the same bytes behind
	ok(t, p.Save(s, []byte("alice"), &alice))
	deepEqual(t, fingerprint(t, s, p), before)

	err = p.Save(s, []byte("alice"), nil)
	if err == nil {
		t.Fatalf("Save(nil) succeeded")
	}
}

func TestIndexedMap_ConditionalIndex(t *testing.T) {
	s := NewMemStore()
	p := newPeople()
	seedPeople(t, s, p)

	ages := func() []uint32 {
		recs, err := p.byActive.Prefix().Range(s, nil, nil, Ascending).CollectRecords(0)
		ok(t, err)
		var out []uint32
		for _, r := range recs {
			out = append(out, r.Age)
		}
		return out
	}
	deepEqual(t, ages(), []uint32{30, 41})

	_, err := p.Update(s, []byte("bob"), func(old *person) (*person, error) {
		old.Active = true
		return old, nil
	})
	ok(t, err)
	deepEqual(t, ages(), []uint32{25, 30, 41})

	_, err = p.Update(s, []byte("carol"), func(old *person) (*person, error) {
		old.Active = false
		old.Age = 18
		return old, nil
	})
	ok(t, err)
	deepEqual(t, ages(), []uint32{25, 30})

	deepEqual(t, len(p.byActive.IndexKey([]byte("x"), &person{Age: 1})), 0)
	deepEqual(t, p.byActive.IndexKey([]byte("x"), &person{Age: 1, Active: true}),
		NamespacesWithKey([][]byte{[]byte("people_active"), U32Key(1)}, []byte("x")))
}

type event struct {
	ID    uint64
	Group uint64
}

func invertBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}

var newestFirst = KeyTransform{
	Encode: invertBytes,
	Decode: func(stored []byte) ([]byte, error) { return invertBytes(stored), nil },
}

func seedRecs(t testing.TB, s Store, m *IndexedMap[event]) {
	t.Helper()
	for id, group := range []uint64{100, 100, 50, 100} {
		r := event{ID: uint64(id), Group: group}
		ok(t, m.Save(s, U64Key(r.ID), &r))
	}
}

func ids(t testing.TB, c *Cursor[event]) []uint64 {
	t.Helper()
	entries, err := c.Collect(0)
	ok(t, err)
	var out []uint64
	for _, e := range entries {
		deepEqual(t, must(U64FromKey(e.PK)), e.Record.ID)
		out = append(out, e.Record.ID)
	}
	return out
}

func TestMultiIndex_KeyTransform(t *testing.T) {
	byGroup := func() *MultiIndex[event] {
		return NewMultiIndex[event](NewNamespace("recs_group"), func(pk []byte, r *event) Tuple {
			return Tup(U64Key(r.Group))
		})
	}

	s := NewMemStore()
	plain := byGroup()
	seedRecs(t, s, NewIndexedMap[event](NewNamespace("recs"), plain))
	deepEqual(t, ids(t, plain.Prefix().Range(s, nil, nil, Ascending)), []uint64{2, 0, 1, 3})
	deepEqual(t, ids(t, plain.Prefix(U64Key(100)).Range(s, nil, nil, Descending)), []uint64{3, 1, 0})

	s = NewMemStore()
	inverted := byGroup().WithTransform(newestFirst)
	seedRecs(t, s, NewIndexedMap[event](NewNamespace("recs"), inverted))
	deepEqual(t, ids(t, inverted.Prefix().Range(s, nil, nil, Ascending)), []uint64{2, 3, 1, 0})
	deepEqual(t, ids(t, inverted.Prefix(U64Key(100)).Range(s, nil, nil, Ascending)), []uint64{3, 1, 0})

	// remainder keys are stored pks, so paging resumes from an encoded key
	keys, err := inverted.Prefix(U64Key(100)).Keys(s, Page{StartAfter: newestFirst.Encode(U64Key(3))}, 10)
	ok(t, err)
	var got []uint64
	for _, k := range keys {
		got = append(got, must(U64FromKey(must(newestFirst.Decode(k)))))
	}
	deepEqual(t, got, []uint64{1, 0})

	assertPanics(t, func() {
		byGroup().WithTransform(KeyTransform{Encode: invertBytes})
	})
}

func TestMultiIndex_CustomDeserializerIsLazy(t *testing.T) {
	var calls int
	idx := NewMultiIndex[event](NewNamespace("recs_group"), func(pk []byte, r *event) Tuple {
		return Tup(U64Key(r.Group))
	}).WithDeserializer(func(s Store, primary *Map[event], key, value []byte) ([]byte, *event, error) {
		calls++
		return DeserializeMulti(s, primary, key, value)
	})
	s := NewMemStore()
	seedRecs(t, s, NewIndexedMap[event](NewNamespace("recs"), idx))

	keys, err := idx.Prefix(U64Key(100)).Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	deepEqual(t, len(keys), 3)
	deepEqual(t, calls, 0)

	deepEqual(t, ids(t, idx.Prefix(U64Key(100)).Range(s, nil, nil, Ascending)), []uint64{0, 1, 3})
	deepEqual(t, calls, 3)

	c := idx.SubPrefix().Range(s, nil, nil, Descending)
	defer c.Close()
	for c.Next() {
		_, err := c.Record()
		ok(t, err)
		_, err = c.PK()
		ok(t, err)
	}
	ok(t, c.Err())
	deepEqual(t, calls, 7)
}

func TestIndexedMap_DanglingEntries(t *testing.T) {
	s := NewMemStore()
	p := newPeople()
	seedPeople(t, s, p)

	ok(t, s.Set(Tup(StrKey("ghost@x")).Prefixed(p.byEmail.Namespace()), []byte("ghost")))
	_, _, err := p.byEmail.Lookup(s, Tup(StrKey("ghost@x")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup(dangling) err = %v, wanted ErrNotFound", err)
	}

	// bypassing the collection leaves its index entries behind
	ok(t, p.Primary().Remove(s, []byte("carol")))
	_, err = p.byCity.Prefix(StrKey("Rome")).Range(s, nil, nil, Ascending).Collect(0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Collect(dangling) err = %v, wanted ErrNotFound", err)
	}
	deepEqual(t, cityKeys(t, s, p, "Rome"), []string{"carol"})

	ok(t, s.Set(p.byCity.IndexKey([]byte("bob"), &bob), x("00")))
	_, err = p.byCity.Prefix(StrKey("Paris")).Range(s, nil, nil, Ascending).Collect(0)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Collect(bad value) err = %v, wanted ErrDecode", err)
	}
}

func TestIndexedMap_Misuse(t *testing.T) {
	s := NewMemStore()
	email := func(pk []byte, rec *person) Tuple { return Tup(StrKey(rec.Email)) }

	p := assertPanics(t, func() {
		NewUniqueIndex[person](NewNamespace("loose"), email).Lookup(s, Tup(StrKey("a@x")))
	})
	if !strings.Contains(p.(error).Error(), "was not added to a collection") {
		t.Errorf("** got panic %v", p)
	}

	shared := NewUniqueIndex[person](NewNamespace("shared"), email)
	NewIndexedMap[person](NewNamespace("one"), shared)
	assertPanics(t, func() {
		NewIndexedMap[person](NewNamespace("two"), shared)
	})

	assertPanics(t, func() {
		NewIndexedMap[person](NewNamespace("dup"),
			NewUniqueIndex[person](NewNamespace("dup_idx"), email),
			NewMultiIndex[person](NewNamespace("dup_idx"), email))
	})
	assertPanics(t, func() {
		NewIndexedMap[person](NewNamespace("dup"), NewUniqueIndex[person](NewNamespace("dup"), email))
	})
	assertPanics(t, func() {
		NewMap[person](Namespace{})
	})

	// nested namespaces overlap too: their entries would show up in each
	// other's scans
	nested := NewMultiIndex[person](NewNamespace("people").Child("by_city"), email)
	p = assertPanics(t, func() {
		NewIndexedMap[person](NewNamespace("people"), nested)
	})
	if !strings.Contains(p.(error).Error(), "overlaps") {
		t.Errorf("** got panic %v", p)
	}
	assertPanics(t, func() {
		NewIndexedMap[person](NewNamespace("people_v2"),
			NewUniqueIndex[person](NewNamespace("idx"), email),
			NewMultiIndex[person](NewNamespace("idx").Child("city"), email))
	})
	// a rejected collection leaves its indexes free for another one
	NewIndexedMap[person](NewNamespace("people_v3"), nested)
}

func TestIndexedMap_ResaveFillsNewIndex(t *testing.T) {
	s := NewMemStore()
	ns := NewNamespace("people")
	ok(t, NewIndexedMap[person](ns).Save(s, []byte("alice"), &alice))

	byCity := NewMultiIndex[person](NewNamespace("people_city"), func(pk []byte, rec *person) Tuple {
		return Tup(StrKey(rec.City))
	})
	m := NewIndexedMap[person](ns, byCity)
	keys, err := byCity.Prefix(StrKey("Paris")).Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	isempty(t, keys)

	ok(t, m.Save(s, []byte("alice"), &alice))
	keys, err = byCity.Prefix(StrKey("Paris")).Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	deepEqual(t, strs(keys), []string{"alice"})

	// a lost entry is repaired the same way
	ok(t, s.Remove(byCity.IndexKey([]byte("alice"), &alice)))
	ok(t, m.Save(s, []byte("alice"), &alice))
	st, err := m.Stats(s)
	ok(t, err)
	deepEqual(t, st.Rows, 1)
	deepEqual(t, st.Indexes["people_city"], 1)
}

func TestUniqueIndex_PrefixOfCompositeTuple(t *testing.T) {
	s := NewMemStore()
	byCityEmail := NewUniqueIndex[person](NewNamespace("people_city_email"), func(pk []byte, rec *person) Tuple {
		return Tup(StrKey(rec.City), StrKey(rec.Email))
	})
	m := NewIndexedMap[person](NewNamespace("people"), byCityEmail)
	for pk, rec := range map[string]person{"alice": alice, "bob": bob, "carol": carol} {
		ok(t, m.Save(s, []byte(pk), &rec))
	}

	entries, err := byCityEmail.Prefix(StrKey("Paris")).Range(s, nil, nil, Ascending).Collect(0)
	ok(t, err)
	deepEqual(t, len(entries), 2)
	deepEqual(t, string(entries[0].Key), "a@x")
	deepEqual(t, string(entries[0].PK), "alice")
	deepEqual(t, string(entries[1].Key), "b@x")
	deepEqual(t, entries[1].Record.Name, "Bob")

	// the full tuple ends unprefixed, so it is found by Lookup only
	keys, err := byCityEmail.Prefix(StrKey("Paris"), StrKey("a@x")).Range(s, nil, nil, Ascending).CollectKeys(0)
	ok(t, err)
	isempty(t, keys)
	pk, _, err := byCityEmail.Lookup(s, Tup(StrKey("Paris"), StrKey("a@x")))
	ok(t, err)
	deepEqual(t, string(pk), "alice")
}

func TestIndexedMap_StatsAndDump(t *testing.T) {
	s := NewMemStore()
	p := newPeople()
	seedPeople(t, s, p)
	before := fingerprint(t, s, p)

	st, err := p.Stats(s)
	ok(t, err)
	deepEqual(t, st.Rows, 3)
	deepEqual(t, st.IndexRows, 8)
	deepEqual(t, st.Indexes["people_active"], 2)
	deepEqual(t, st.TotalSize(), st.DataSize+st.IndexSize)

	out, err := p.Dump(s, DumpAll)
	ok(t, err)
	for _, want := range []string{
		"people (3 rows)\n",
		`people.1: alice = {"Name":"Alice","Email":"a@x","City":"Paris","Age":30,"Active":true}`,
		"people.3: carol = ",
		"people.i.people_email (3 entries)\n",
		"people.i.people_city (3 entries)\n",
		"people.i.people_active (2 entries)\n",
		"people.i.people_active.2: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("** dump lacks %q:\n%s", want, out)
		}
	}

	out, err = p.Dump(s, DumpHeaders|DumpIndices)
	ok(t, err)
	if strings.Contains(out, "people.1:") || strings.Contains(out, "people.i.people_city.1:") {
		t.Errorf("** dump without rows shows rows:\n%s", out)
	}

	_, _, err = p.byEmail.Lookup(s, Tup(StrKey("a@x")))
	ok(t, err)
	_, err = p.byCity.SubPrefix().Range(s, nil, nil, Descending).Collect(0)
	ok(t, err)
	deepEqual(t, fingerprint(t, s, p), before)
}
