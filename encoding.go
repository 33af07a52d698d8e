package kvidx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the codec used for record values.
type Encoding int

const (
	MsgPack Encoding = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc Encoding) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("Encoding(%d)", int(enc))
	}
}

func (enc Encoding) encodeValue(buf []byte, v any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to JSON: %w", v, err)
		}
		return append(buf, raw...), nil
	default:
		panic("unsupported encoding")
	}
}

// decodeValue fills ptr from data; failures are *DataError.
func (enc Encoding) decodeValue(data []byte, ptr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(data)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		err := d.Decode(ptr)
		msgpack.PutDecoder(d)
		if err != nil {
			return dataErrf(data, 0, err, "failed to decode msgpack into %T", ptr)
		}
		return nil
	case JSON:
		err := json.Unmarshal(data, ptr)
		if err != nil {
			return dataErrf(data, 0, err, "failed to decode JSON into %T", ptr)
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}

func encodeRecord[T any](enc Encoding, rec *T) ([]byte, error) {
	return enc.encodeValue(nil, rec)
}

func decodeRecord[T any](enc Encoding, data []byte) (*T, error) {
	rec := new(T)
	if err := enc.decodeValue(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = append(bb.Buf, b...)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.Buf = append(bb.Buf, v)
	return nil
}
