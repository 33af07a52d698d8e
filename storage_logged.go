package kvidx

import (
	"context"
	"log/slog"
)

// LoggedStore logs every operation on s at debug level. Options.Verbose
// installs it on the stores handed out by the backends.
func LoggedStore(s Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggedStore{s, logger}
}

type loggedStore struct {
	s      Store
	logger *slog.Logger
}

func (ls *loggedStore) Get(key []byte) ([]byte, error) {
	v, err := ls.s.Get(key)
	ls.logger.LogAttrs(context.Background(), slog.LevelDebug, "db: GET", hexAttr("key", key), hexAttr("val", v), errAttr(err))
	return v, err
}

func (ls *loggedStore) Set(key, value []byte) error {
	err := ls.s.Set(key, value)
	ls.logger.LogAttrs(context.Background(), slog.LevelDebug, "db: SET", hexAttr("key", key), hexAttr("val", value), errAttr(err))
	return err
}

func (ls *loggedStore) Remove(key []byte) error {
	err := ls.s.Remove(key)
	ls.logger.LogAttrs(context.Background(), slog.LevelDebug, "db: REMOVE", hexAttr("key", key), errAttr(err))
	return err
}

func (ls *loggedStore) Range(start, end *Bound, order Order) Iterator {
	ls.logger.LogAttrs(context.Background(), slog.LevelDebug, "db: RANGE", boundAttr("start", start), boundAttr("end", end), slog.String("order", order.String()))
	return ls.s.Range(start, end, order)
}

func boundAttr(key string, b *Bound) slog.Attr {
	if b == nil {
		return slog.String(key, "open")
	}
	if b.Inclusive {
		return slog.String(key, "["+hexstr(b.Key))
	}
	return slog.String(key, "("+hexstr(b.Key))
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
