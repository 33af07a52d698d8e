package kvidx

import (
	"bytes"
	"context"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// storageCursor is the positional cursor every backend exposes. Methods return
// nil keys when the cursor moves past either end.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
}

// RawRange is a range of byte strings as a backend cursor walks it. Lower
// and Upper are nil when open.
//
// Bounds are exact: an exclusive bound k excludes k itself and nothing else,
// keys that merely start with k are compared like any other key.
type RawRange struct {
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func rawRangeOf(start, end *Bound, order Order) RawRange {
	var r RawRange
	if start != nil {
		r.Lower, r.LowerInc = start.Key, start.Inclusive
	}
	if end != nil {
		r.Upper, r.UpperInc = end.Key, end.Inclusive
	}
	r.Reverse = (order == Descending)
	return r
}

func (r *RawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		if upper := r.Upper; upper != nil {
			k, v = bcur.Seek(upper)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to upper", hexAttr("upper", upper), hexAttr("key", k), hexAttr("val", v))
			}
			if k == nil {
				k, v = bcur.Last()
			} else if cmp := bytes.Compare(k, upper); cmp > 0 || (cmp == 0 && !r.UpperInc) {
				k, v = bcur.Prev()
			}
		} else {
			k, v = bcur.Last()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "LAST", hexAttr("key", k), hexAttr("val", v))
			}
		}
	} else {
		if lower := r.Lower; lower != nil {
			k, v = bcur.Seek(lower)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to lower", hexAttr("lower", lower), hexAttr("key", k), hexAttr("val", v))
			}
			if k != nil && !r.LowerInc && bytes.Equal(k, lower) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "SKIP_INITIAL")
				}
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "FIRST", hexAttr("key", k), hexAttr("val", v))
			}
		}
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	} else {
		return nil, nil
	}
}

func (r *RawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "PREV", hexAttr("key", k), hexAttr("val", v))
		}
	} else {
		k, v = bcur.Next()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "NEXT", hexAttr("key", k), hexAttr("val", v))
		}
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	} else {
		return nil, nil
	}
}

// match checks the bound on the far side of the scan direction; the near
// side is handled by start.
func (r *RawRange) match(k, v []byte, logger *slog.Logger) bool {
	if r.Reverse {
		if lower := r.Lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp < 0 || (cmp == 0 && !r.LowerInc) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on lower", hexAttr("lower", lower), hexAttr("key", k), hexAttr("val", v))
				}
				return false
			}
		}
	} else {
		if upper := r.Upper; upper != nil {
			cmp := bytes.Compare(k, upper)
			if cmp > 0 || (cmp == 0 && !r.UpperInc) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on upper", hexAttr("upper", upper), hexAttr("key", k), hexAttr("val", v))
				}
				return false
			}
		}
	}
	if debugLogRawScans {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "MATCH", hexAttr("key", k), hexAttr("val", v))
	}
	return true
}

func (rang RawRange) newCursor(bcur storageCursor, logger *slog.Logger) *RawRangeCursor {
	return &RawRangeCursor{rang: rang, bcur: bcur, logger: logger}
}

// RawRangeCursor drives a storageCursor through a RawRange. It implements
// Iterator for the backends.
type RawRangeCursor struct {
	rang    RawRange
	bcur    storageCursor
	logger  *slog.Logger
	k, v    []byte
	init    bool
	done    bool
	onClose func() error
}

var _ Iterator = (*RawRangeCursor)(nil)

func (c *RawRangeCursor) Next() bool {
	if c.done {
		return false
	}
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	if c.k == nil {
		c.done = true
	}
	return c.k != nil
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }
func (c *RawRangeCursor) Err() error    { return nil }

func (c *RawRangeCursor) Close() error {
	c.done = true
	if f := c.onClose; f != nil {
		c.onClose = nil
		return f()
	}
	return nil
}
