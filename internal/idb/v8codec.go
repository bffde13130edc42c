package idb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

// Decoder for the V8 ValueSerializer format Chromium uses for IndexedDB
// record values. Only the subset of tags that appear in JSON-shaped
// application data is supported; anything else aborts the record, which the
// callers treat as a skippable malformed value.
//
// Reference: v8/src/objects/value-serializer.cc.

var errBadValue = errors.New("malformed serialized value")

const (
	tagVersion        = 0xFF
	tagPadding        = 0x00
	tagUndefined      = '_'
	tagNull           = '0'
	tagTrue           = 'T'
	tagFalse          = 'F'
	tagInt32          = 'I'
	tagUint32         = 'U'
	tagDouble         = 'N'
	tagBigInt         = 'Z'
	tagOneByteString  = '"'
	tagTwoByteString  = 'c'
	tagUTF8String     = 'S'
	tagObjectBegin    = 'o'
	tagObjectEnd      = '{'
	tagSparseArray    = 'a'
	tagSparseArrayEnd = '@'
	tagDenseArray     = 'A'
	tagDenseArrayEnd  = '$'
	tagDate           = 'D'
	tagObjectRef      = '^'
	tagTheHole        = '-'
)

type valueDecoder struct {
	buf  []byte
	pos  int
	refs []any // objects in encounter order, for tagObjectRef
}

// decodeRecordValue strips the IndexedDB/Blink envelopes from a raw LevelDB
// record value and decodes the V8-serialized payload. Returns nil (no error)
// when the payload decodes to a non-object.
func decodeRecordValue(raw []byte) (map[string]any, error) {
	d := &valueDecoder{buf: raw}
	// IndexedDB prepends a varint version; Blink and V8 each prepend a
	// 0xFF + varint envelope. Skip all of them plus any alignment padding.
	if _, n, err := decodeVarint(raw); err == nil {
		d.pos = n
	}
	for d.pos < len(d.buf) {
		switch d.buf[d.pos] {
		case tagVersion:
			d.pos++
			if _, n, err := decodeVarint(d.buf[d.pos:]); err == nil {
				d.pos += n
			}
		case tagPadding:
			d.pos++
		default:
			goto body
		}
	}
body:
	v, err := d.decode()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	return obj, nil
}

func (d *valueDecoder) byte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, errBadValue
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *valueDecoder) varint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, errBadValue
	}
	d.pos += n
	return v, nil
}

func (d *valueDecoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, errBadValue
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *valueDecoder) decode() (any, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPadding:
		return d.decode()
	case tagUndefined, tagNull, tagTheHole:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagInt32:
		v, err := d.varint()
		if err != nil {
			return nil, err
		}
		return float64(zigzag(v)), nil
	case tagUint32:
		v, err := d.varint()
		if err != nil {
			return nil, err
		}
		return float64(v), nil
	case tagDouble:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case tagBigInt:
		bitfield, err := d.varint()
		if err != nil {
			return nil, err
		}
		if _, err := d.take(int(bitfield >> 1 * 8)); err != nil {
			return nil, err
		}
		return nil, nil
	case tagOneByteString:
		n, err := d.varint()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes), nil
	case tagUTF8String:
		n, err := d.varint()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagTwoByteString:
		n, err := d.varint()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		if len(b)%2 != 0 {
			return nil, errBadValue
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return string(utf16.Decode(units)), nil
	case tagDate:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case tagObjectBegin:
		return d.decodeObject()
	case tagDenseArray:
		return d.decodeDenseArray()
	case tagSparseArray:
		return d.decodeSparseArray()
	case tagObjectRef:
		id, err := d.varint()
		if err != nil {
			return nil, err
		}
		if int(id) >= len(d.refs) {
			return nil, errBadValue
		}
		return d.refs[id], nil
	default:
		return nil, fmt.Errorf("%w: unsupported tag 0x%02x", errBadValue, tag)
	}
}

func (d *valueDecoder) decodeObject() (map[string]any, error) {
	obj := make(map[string]any)
	d.refs = append(d.refs, obj)
	for {
		if d.pos < len(d.buf) && d.buf[d.pos] == tagObjectEnd {
			d.pos++
			if _, err := d.varint(); err != nil { // property count
				return nil, err
			}
			return obj, nil
		}
		key, err := d.decode()
		if err != nil {
			return nil, err
		}
		val, err := d.decode()
		if err != nil {
			return nil, err
		}
		if ks, ok := key.(string); ok {
			obj[ks] = val
		}
	}
}

func (d *valueDecoder) decodeDenseArray() ([]any, error) {
	length, err := d.varint()
	if err != nil {
		return nil, err
	}
	arr := make([]any, 0, length)
	d.refs = append(d.refs, arr)
	for i := uint64(0); i < length; i++ {
		v, err := d.decode()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	// Trailing named properties, then end tag with counts.
	for {
		if d.pos >= len(d.buf) {
			return nil, errBadValue
		}
		if d.buf[d.pos] == tagDenseArrayEnd {
			d.pos++
			if _, err := d.varint(); err != nil {
				return nil, err
			}
			if _, err := d.varint(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		if _, err := d.decode(); err != nil {
			return nil, err
		}
		if _, err := d.decode(); err != nil {
			return nil, err
		}
	}
}

func (d *valueDecoder) decodeSparseArray() ([]any, error) {
	length, err := d.varint()
	if err != nil {
		return nil, err
	}
	arr := make([]any, length)
	d.refs = append(d.refs, arr)
	for {
		if d.pos >= len(d.buf) {
			return nil, errBadValue
		}
		if d.buf[d.pos] == tagSparseArrayEnd {
			d.pos++
			if _, err := d.varint(); err != nil {
				return nil, err
			}
			if _, err := d.varint(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		key, err := d.decode()
		if err != nil {
			return nil, err
		}
		val, err := d.decode()
		if err != nil {
			return nil, err
		}
		if idx, ok := key.(float64); ok && int(idx) >= 0 && int(idx) < len(arr) {
			arr[int(idx)] = val
		}
	}
}

func zigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
