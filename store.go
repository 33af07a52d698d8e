package kvidx

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Store is the ordered byte-string store everything in this package is built
// on. Keys are compared lexicographically as raw bytes.
//
// A Store handle belongs to one host call; implementations need not be safe
// for concurrent use. Slices returned by Get and by iterators are only valid
// until the next call on the same handle or iterator.
type Store interface {
	// Get returns nil, nil when the key is absent.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Remove(key []byte) error

	// Range iterates over the keys between start and end, either of which
	// may be nil for an open side. Every call starts a fresh iteration.
	Range(start, end *Bound, order Order) Iterator
}

// Iterator is a lazy sequence of key/value pairs. It must be closed.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Bound is one side of a range over raw keys.
type Bound struct {
	Key       []byte
	Inclusive bool
}

func Inclusive(k []byte) *Bound { return &Bound{Key: k, Inclusive: true} }
func Exclusive(k []byte) *Bound { return &Bound{Key: k} }

func (b *Bound) prefixed(p []byte) *Bound {
	if b == nil {
		return nil
	}
	return &Bound{Key: concatBytes(p, b.Key), Inclusive: b.Inclusive}
}

// Backend supplies the outer transaction boundary: every write made through
// the Store handed to an Update callback commits together, or not at all when
// the callback returns an error.
type Backend interface {
	View(f func(s Store) error) error
	Update(f func(s Store) error) error
	Close() error
}

type Options struct {
	Logger  *slog.Logger
	Verbose bool // log every store operation at debug level
	Metrics *Metrics

	// Bucket is the root bucket used by the Bolt backend.
	Bucket string

	// IsTesting trades durability for speed.
	IsTesting bool
}

func (opt *Options) logger() *slog.Logger {
	if opt.Logger != nil {
		return opt.Logger
	}
	return slog.Default()
}

// wrap applies the optional logging and metrics layers to a backend store.
func (opt *Options) wrap(s Store) Store {
	if opt.Metrics != nil {
		s = opt.Metrics.Instrument(s)
	}
	if opt.Verbose {
		s = LoggedStore(s, opt.logger())
	}
	return s
}

type readOnlyStore struct {
	Store
}

func (readOnlyStore) Set(key, value []byte) error { return ErrReadOnly }
func (readOnlyStore) Remove(key []byte) error     { return ErrReadOnly }

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

// safelyCall turns a panic inside a transaction callback into an error so the
// backend can release its writer slot and discard the writes.
func safelyCall(fn func(Store) error, s Store) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(s)
}
