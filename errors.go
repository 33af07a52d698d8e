package kvidx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a required record is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique index already maps the derived
	// key to another primary key. Nothing is written when it is returned.
	ErrConflict = errors.New("unique index conflict")

	// ErrInvalidNamespace is the panic value (wrapped) for namespace segments
	// that do not fit the 2-byte length prefix.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrDecode is matched by every *DataError.
	ErrDecode = errors.New("cannot decode stored data")

	// ErrReadOnly is returned by writes through a store obtained from View.
	ErrReadOnly = errors.New("store is read-only")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// CollectionError describes a failure of an operation on a keyspace, and
// optionally one of its indexes, for a given key.
type CollectionError struct {
	Collection string
	Index      string
	Key        []byte
	Msg        string
	Err        error
}

func collErrf(coll, idx string, key []byte, err error, format string, args ...any) error {
	return &CollectionError{coll, idx, key, fmt.Sprintf(format, args...), err}
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Collection)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(printableKey(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// printableKey renders keys that are plain text as is and everything else as hex.
func printableKey(k []byte) string {
	for _, b := range k {
		if b < 0x20 || b >= 0x7F {
			return hexstr(k)
		}
	}
	return string(k)
}
