package kvidx

import (
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

const defaultBucket = "kvidx"

// BoltBackend keeps the whole keyspace in one root bucket of a Bolt file;
// namespaces take the place of nested buckets.
type BoltBackend struct {
	bdb  *bbolt.DB
	buck []byte
	opt  Options
}

var _ Backend = (*BoltBackend)(nil)

func OpenBolt(path string, opt Options) (*BoltBackend, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("kvidx: %w", err)
	}

	name := opt.Bucket
	if name == "" {
		name = defaultBucket
	}
	b := &BoltBackend{bdb: bdb, buck: []byte(name), opt: opt}

	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(b.buck)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("kvidx: creating bucket %q: %w", name, err)
	}
	if opt.Verbose {
		opt.logger().Debug("db: OPEN bolt", "path", path, "bucket", name)
	}
	return b, nil
}

func (b *BoltBackend) Bolt() *bbolt.DB {
	return b.bdb
}

func (b *BoltBackend) View(f func(s Store) error) error {
	return b.bdb.View(func(btx *bbolt.Tx) error {
		return f(b.opt.wrap(readOnlyStore{b.storeIn(btx)}))
	})
}

func (b *BoltBackend) Update(f func(s Store) error) error {
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		return safelyCall(f, b.opt.wrap(b.storeIn(btx)))
	})
}

func (b *BoltBackend) Close() error {
	return b.bdb.Close()
}

func (b *BoltBackend) storeIn(btx *bbolt.Tx) *boltStore {
	buck := btx.Bucket(b.buck)
	if buck == nil {
		panic(fmt.Errorf("missing bucket %q", b.buck))
	}
	return &boltStore{b: buck, logger: b.opt.logger()}
}

type boltStore struct {
	b      *bbolt.Bucket
	logger *slog.Logger
}

func (s *boltStore) Get(key []byte) ([]byte, error) { return s.b.Get(key), nil }

func (s *boltStore) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.b.Put(key, value)
}

func (s *boltStore) Remove(key []byte) error { return s.b.Delete(key) }

func (s *boltStore) Range(start, end *Bound, order Order) Iterator {
	rang := rawRangeOf(start, end, order)
	return rang.newCursor(boltCursor{c: s.b.Cursor()}, s.logger)
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Last() ([]byte, []byte) { return c.c.Last() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }
