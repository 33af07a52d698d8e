package kvidx

import (
	"encoding/hex"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Errorf("** got nil %T, wanted non-nil", a)
	}
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

func assertPanics(t *testing.T, fn func()) any {
	t.Helper()
	var p any
	func() {
		defer func() {
			p = recover()
		}()
		fn()
	}()
	if p == nil {
		t.Fatalf("expected panic")
	}
	return p
}

func mustSet(t testing.TB, s Store, k, v string) {
	t.Helper()
	ok(t, s.Set([]byte(k), []byte(v)))
}

// scanKeys drains a Range into string keys.
func scanKeys(t testing.TB, s Store, start, end *Bound, order Order) []string {
	t.Helper()
	it := s.Range(start, end, order)
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()))
	}
	ok(t, it.Err())
	return out
}

func strs(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	bolt := must(OpenBolt(filepath.Join(t.TempDir(), "test.db"), Options{IsTesting: true}))
	t.Cleanup(func() { bolt.Close() })
	level := must(OpenLevelMem(Options{}))
	t.Cleanup(func() { level.Close() })
	return map[string]Backend{
		"mem":     NewMemBackend(Options{}),
		"bolt":    bolt,
		"leveldb": level,
	}
}

func update(t testing.TB, b Backend, f func(s Store)) {
	t.Helper()
	ok(t, b.Update(func(s Store) error {
		f(s)
		return nil
	}))
}

func view(t testing.TB, b Backend, f func(s Store)) {
	t.Helper()
	ok(t, b.View(func(s Store) error {
		f(s)
		return nil
	}))
}
