package kvidx

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldbopt "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

// LevelBackend runs every Update in a LevelDB transaction and every View
// against a snapshot.
type LevelBackend struct {
	ldb *leveldb.DB
	opt Options
}

var _ Backend = (*LevelBackend)(nil)

func OpenLevel(path string, opt Options) (*LevelBackend, error) {
	lopt := &ldbopt.Options{
		NoSync: opt.IsTesting,
	}
	ldb, err := leveldb.OpenFile(path, lopt)
	if err != nil {
		return nil, fmt.Errorf("kvidx: %w", err)
	}
	if opt.Verbose {
		opt.logger().Debug("db: OPEN leveldb", "path", path)
	}
	return &LevelBackend{ldb: ldb, opt: opt}, nil
}

// OpenLevelMem opens a LevelDB instance backed by memory storage.
func OpenLevelMem(opt Options) (*LevelBackend, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("kvidx: %w", err)
	}
	return &LevelBackend{ldb: ldb, opt: opt}, nil
}

func (b *LevelBackend) LevelDB() *leveldb.DB {
	return b.ldb
}

func (b *LevelBackend) View(f func(s Store) error) error {
	snap, err := b.ldb.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()
	return f(b.opt.wrap(readOnlyStore{&levelStore{r: snap, logger: b.opt.logger()}}))
}

func (b *LevelBackend) Update(f func(s Store) error) error {
	tr, err := b.ldb.OpenTransaction()
	if err != nil {
		return err
	}
	err = safelyCall(f, b.opt.wrap(&levelStore{r: tr, w: tr, logger: b.opt.logger()}))
	if err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

func (b *LevelBackend) Close() error {
	return b.ldb.Close()
}

type levelReader interface {
	Get(key []byte, ro *ldbopt.ReadOptions) ([]byte, error)
	NewIterator(slice *ldbutil.Range, ro *ldbopt.ReadOptions) iterator.Iterator
}

type levelWriter interface {
	Put(key, value []byte, wo *ldbopt.WriteOptions) error
	Delete(key []byte, wo *ldbopt.WriteOptions) error
}

type levelStore struct {
	r      levelReader
	w      levelWriter
	logger *slog.Logger
}

func (s *levelStore) Get(key []byte) ([]byte, error) {
	v, err := s.r.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (s *levelStore) Set(key, value []byte) error {
	if s.w == nil {
		return ErrReadOnly
	}
	return s.w.Put(key, value, nil)
}

func (s *levelStore) Remove(key []byte) error {
	if s.w == nil {
		return ErrReadOnly
	}
	return s.w.Delete(key, nil)
}

func (s *levelStore) Range(start, end *Bound, order Order) Iterator {
	rang := rawRangeOf(start, end, order)

	// narrow the LevelDB iterator; the range engine still applies exact bounds
	var slice ldbutil.Range
	if start != nil {
		slice.Start = start.Key
	}
	if end != nil {
		if end.Inclusive {
			slice.Limit = append(slices.Clone(end.Key), 0)
		} else {
			slice.Limit = end.Key
		}
	}

	it := s.r.NewIterator(&slice, nil)
	cur := rang.newCursor(levelCursor{it}, s.logger)
	cur.onClose = func() error {
		it.Release()
		return it.Error()
	}
	return cur
}

// levelCursor adapts a LevelDB iterator to the positional cursor protocol.
type levelCursor struct {
	it iterator.Iterator
}

func (c levelCursor) current(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	return c.it.Key(), c.it.Value()
}

func (c levelCursor) First() ([]byte, []byte)           { return c.current(c.it.First()) }
func (c levelCursor) Last() ([]byte, []byte)            { return c.current(c.it.Last()) }
func (c levelCursor) Seek(seek []byte) ([]byte, []byte) { return c.current(c.it.Seek(seek)) }
func (c levelCursor) Next() ([]byte, []byte)            { return c.current(c.it.Next()) }
func (c levelCursor) Prev() ([]byte, []byte)            { return c.current(c.it.Prev()) }
