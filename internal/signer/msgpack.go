package signer

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// OrderedMap preserves insertion order for MsgPack encoding. The Python
// reference SDK (msgpack.packb over an ordered dict) relies on map key
// order surviving into the wire bytes that get hashed and signed, so a
// plain Go map, whose iteration order is randomized, cannot be used here.
type OrderedMap struct {
	keys   []string
	values []any
}

// NewOrderedMap builds an OrderedMap from key/value pairs in call order.
func NewOrderedMap(pairs ...KV) *OrderedMap {
	m := &OrderedMap{}
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// KV is one insertion-ordered key/value pair.
type KV struct {
	Key   string
	Value any
}

// Set appends or overwrites a key, preserving first-insertion position for
// overwrites (matching Go/Python ordered-dict semantics closely enough for
// the write-once action dictionaries this package builds).
func (m *OrderedMap) Set(key string, value any) *OrderedMap {
	for i, k := range m.keys {
		if k == key {
			m.values[i] = value
			return m
		}
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return m
}

// MarshalJSON renders the ordered map as a plain JSON object, recursing
// into nested *OrderedMap and []any values built by the same constructors.
// Hyperliquid's /exchange endpoint reads the action as JSON; only the
// MsgPack bytes fed to SignL1Action are order-sensitive, so key order here
// is cosmetic, but the fields themselves must round-trip or the signed
// action and the submitted action diverge.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(jsonValue(m.values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonValue rebuilds []any values element by element before encoding.
// *OrderedMap values, at any depth, are encoded through their MarshalJSON.
func jsonValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonValue(item)
		}
		return out
	default:
		return val
	}
}

// packMsgpack encodes v into MsgPack bytes, appending to buf.
//
// This hand-rolled encoder covers exactly the subset of MsgPack the
// Hyperliquid L1 action dictionaries use: ordered maps, slices, strings,
// bools, and integers. No third-party MsgPack library appears anywhere in
// the example corpus this module was built from; see DESIGN.md.
func packMsgpack(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, 0xc0), nil
	case bool:
		if val {
			return append(buf, 0xc3), nil
		}
		return append(buf, 0xc2), nil
	case string:
		return packString(buf, val), nil
	case int:
		return packInt(buf, int64(val)), nil
	case int64:
		return packInt(buf, val), nil
	case *OrderedMap:
		return packOrderedMap(buf, val)
	case []any:
		return packArray(buf, val)
	default:
		return nil, fmt.Errorf("signer: msgpack: unsupported type %T", v)
	}
}

func packString(buf []byte, s string) []byte {
	b := []byte(s)
	n := len(b)
	switch {
	case n < 32:
		buf = append(buf, 0xa0|byte(n))
	case n < 1<<8:
		buf = append(buf, 0xd9, byte(n))
	default:
		buf = append(buf, 0xda, byte(n>>8), byte(n))
	}
	return append(buf, b...)
}

func packInt(buf []byte, n int64) []byte {
	switch {
	case n >= 0 && n <= 0x7f:
		return append(buf, byte(n))
	case n < 0 && n >= -32:
		return append(buf, byte(n))
	case n >= -128 && n <= 127:
		return append(buf, 0xd0, byte(n))
	case n >= -32768 && n <= 32767:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(buf, 0xd1), b...)
	case n >= -(1<<31) && n <= (1<<31)-1:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return append(append(buf, 0xd2), b...)
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(n))
		return append(append(buf, 0xd3), b...)
	}
}

func packOrderedMap(buf []byte, m *OrderedMap) ([]byte, error) {
	n := len(m.keys)
	switch {
	case n < 16:
		buf = append(buf, 0x80|byte(n))
	default:
		buf = append(buf, 0xde, byte(n>>8), byte(n))
	}
	var err error
	for i, k := range m.keys {
		buf = packString(buf, k)
		buf, err = packMsgpack(buf, m.values[i])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func packArray(buf []byte, items []any) ([]byte, error) {
	n := len(items)
	switch {
	case n < 16:
		buf = append(buf, 0x90|byte(n))
	default:
		buf = append(buf, 0xdc, byte(n>>8), byte(n))
	}
	var err error
	for _, item := range items {
		buf, err = packMsgpack(buf, item)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodeAction MsgPack-encodes an L1 action dictionary.
func EncodeAction(action *OrderedMap) ([]byte, error) {
	return packMsgpack(nil, action)
}
