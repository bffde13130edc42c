package idb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Chromium IndexedDB key space. Every key starts with a prefix encoding the
// database id, object store id, and index id. Global metadata lives under
// prefix (0,0,0); per-database metadata under (dbID,0,0); data records under
// (dbID,storeID,1).
//
// Reference: content/browser/indexed_db/indexed_db_leveldb_coding.cc.

const (
	metaDatabaseName = 201 // global: origin + name -> database id

	metaObjectStore = 50 // per-database: store id + tag -> store metadata

	objectStoreMetaName = 0 // store metadata tag: store name

	dataIndexID = 1 // index id used for object store data records
)

var errBadKey = errors.New("malformed indexeddb key")

type keyPrefix struct {
	databaseID    int64
	objectStoreID int64
	indexID       int64
}

// decodeKeyPrefix parses the variable-width key prefix and returns the number
// of bytes consumed.
func decodeKeyPrefix(b []byte) (keyPrefix, int, error) {
	if len(b) == 0 {
		return keyPrefix{}, 0, errBadKey
	}
	first := b[0]
	dbLen := int(first>>5) + 1
	osLen := int(first>>2&0x07) + 1
	idxLen := int(first&0x03) + 1
	n := 1 + dbLen + osLen + idxLen
	if len(b) < n {
		return keyPrefix{}, 0, errBadKey
	}
	p := keyPrefix{
		databaseID:    decodeIntLE(b[1 : 1+dbLen]),
		objectStoreID: decodeIntLE(b[1+dbLen : 1+dbLen+osLen]),
		indexID:       decodeIntLE(b[1+dbLen+osLen : n]),
	}
	return p, n, nil
}

func decodeIntLE(b []byte) int64 {
	var v int64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	return v
}

func decodeVarint(b []byte) (int64, int, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, errBadKey
	}
	return int64(v), n, nil
}

// decodeUTF16BEString reads a length-prefixed UTF-16BE string as used inside
// IndexedDB keys.
func decodeUTF16BEString(b []byte) (string, int, error) {
	length, n, err := decodeVarint(b)
	if err != nil {
		return "", 0, err
	}
	byteLen := int(length) * 2
	if len(b) < n+byteLen {
		return "", 0, errBadKey
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[n+i*2:])
	}
	return string(utf16.Decode(units)), n + byteLen, nil
}

// decodeUTF16LERaw decodes an unprefixed UTF-16LE byte slice, the encoding
// Chromium uses for string metadata values.
func decodeUTF16LERaw(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("odd-length utf-16 value (%d bytes)", len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// databaseNameKey is a parsed global metadata key of type metaDatabaseName.
type databaseNameKey struct {
	origin string
	name   string
}

func parseDatabaseNameKey(b []byte) (databaseNameKey, error) {
	p, n, err := decodeKeyPrefix(b)
	if err != nil {
		return databaseNameKey{}, err
	}
	if p.databaseID != 0 || p.objectStoreID != 0 || p.indexID != 0 {
		return databaseNameKey{}, errBadKey
	}
	rest := b[n:]
	if len(rest) == 0 || rest[0] != metaDatabaseName {
		return databaseNameKey{}, errBadKey
	}
	rest = rest[1:]
	origin, n, err := decodeUTF16BEString(rest)
	if err != nil {
		return databaseNameKey{}, err
	}
	name, _, err := decodeUTF16BEString(rest[n:])
	if err != nil {
		return databaseNameKey{}, err
	}
	return databaseNameKey{origin: origin, name: name}, nil
}

// objectStoreNameKey is a parsed per-database metadata key naming one store.
type objectStoreNameKey struct {
	databaseID int64
	storeID    int64
}

func parseObjectStoreNameKey(b []byte) (objectStoreNameKey, error) {
	p, n, err := decodeKeyPrefix(b)
	if err != nil {
		return objectStoreNameKey{}, err
	}
	if p.databaseID == 0 || p.objectStoreID != 0 || p.indexID != 0 {
		return objectStoreNameKey{}, errBadKey
	}
	rest := b[n:]
	if len(rest) < 2 || rest[0] != metaObjectStore {
		return objectStoreNameKey{}, errBadKey
	}
	storeID, n, err := decodeVarint(rest[1:])
	if err != nil {
		return objectStoreNameKey{}, err
	}
	rest = rest[1+n:]
	if len(rest) != 1 || rest[0] != objectStoreMetaName {
		return objectStoreNameKey{}, errBadKey
	}
	return objectStoreNameKey{databaseID: p.databaseID, storeID: storeID}, nil
}

// encodeDataPrefix builds the key prefix covering all data records of a store.
func encodeDataPrefix(databaseID, storeID int64) []byte {
	db := encodeIntLE(databaseID)
	os := encodeIntLE(storeID)
	idx := encodeIntLE(dataIndexID)
	out := make([]byte, 0, 1+len(db)+len(os)+len(idx))
	out = append(out, byte((len(db)-1)<<5|(len(os)-1)<<2|(len(idx)-1)))
	out = append(out, db...)
	out = append(out, os...)
	out = append(out, idx...)
	return out
}

func encodeIntLE(v int64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var out []byte
	for v > 0 {
		out = append(out, byte(v&0xff))
		v >>= 8
	}
	return out
}
