package idb

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelIndex reads a Chromium IndexedDB LevelDB directory directly. Access is
// strictly read-only; the Linear app may be running against the same files.
type LevelIndex struct {
	db  *leveldb.DB
	log *slog.Logger
}

// Open opens the IndexedDB LevelDB directory at dbPath. blobPath is the
// sibling .blob directory; it is accepted for interface parity but large
// externally-stored values are not resolved.
func Open(dbPath, blobPath string) (*LevelIndex, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("linear database not found at %s (is Linear.app installed and opened at least once?): %w", dbPath, err)
	}
	db, err := leveldb.OpenFile(dbPath, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
		Comparer:       idbComparer{},
	})
	if err != nil {
		return nil, fmt.Errorf("opening indexeddb leveldb: %w", err)
	}
	return &LevelIndex{db: db, log: slog.Default()}, nil
}

func (x *LevelIndex) Close() error {
	return x.db.Close()
}

// Databases enumerates the logical IndexedDB databases in the snapshot by
// scanning the global metadata range.
func (x *LevelIndex) Databases() ([]Database, error) {
	// Global metadata lives under key prefix (0,0,0), which encodes to
	// four zero bytes.
	iter := x.db.NewIterator(util.BytesPrefix([]byte{0, 0, 0, 0}), nil)
	defer iter.Release()

	var dbs []Database
	for iter.Next() {
		nameKey, err := parseDatabaseNameKey(iter.Key())
		if err != nil {
			continue
		}
		id, _, err := decodeVarint(iter.Value())
		if err != nil || id == 0 {
			continue
		}
		dbs = append(dbs, &levelDatabase{
			index:  x,
			id:     id,
			name:   nameKey.name,
			origin: nameKey.origin,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scanning database metadata: %w", err)
	}
	return dbs, nil
}

type levelDatabase struct {
	index  *LevelIndex
	id     int64
	name   string
	origin string

	stores map[string]int64 // store name -> store id, filled lazily
}

func (d *levelDatabase) Name() string   { return d.name }
func (d *levelDatabase) Origin() string { return d.origin }

func (d *levelDatabase) ObjectStoreNames() []string {
	d.loadStoreNames()
	names := make([]string, 0, len(d.stores))
	for name := range d.stores {
		names = append(names, name)
	}
	return names
}

func (d *levelDatabase) Store(name string) (ObjectStore, error) {
	d.loadStoreNames()
	id, ok := d.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreNotFound, name)
	}
	return &levelStore{
		index:  d.index,
		name:   name,
		prefix: encodeDataPrefix(d.id, id),
	}, nil
}

func (d *levelDatabase) loadStoreNames() {
	if d.stores != nil {
		return
	}
	d.stores = make(map[string]int64)

	// Per-database metadata shares the (dbID,0,0) prefix with data record
	// prefixes of other databases only when ids collide, which the prefix
	// encoding prevents.
	metaPrefix := encodeDataPrefix(d.id, 0)
	metaPrefix = metaPrefix[:len(metaPrefix)-1] // drop index id byte
	metaPrefix[0] &= ^byte(0x03)                // index id length back to 1
	metaPrefix = append(metaPrefix, 0)

	iter := d.index.db.NewIterator(util.BytesPrefix(metaPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		nameKey, err := parseObjectStoreNameKey(iter.Key())
		if err != nil || nameKey.databaseID != d.id {
			continue
		}
		name, err := decodeUTF16LERaw(iter.Value())
		if err != nil {
			d.index.log.Debug("skipping undecodable store name", "db", d.name, "err", err)
			continue
		}
		d.stores[name] = nameKey.storeID
	}
}

type levelStore struct {
	index  *LevelIndex
	name   string
	prefix []byte
}

func (s *levelStore) Name() string { return s.name }

func (s *levelStore) Records(fn func(Record) bool) error {
	iter := s.index.db.NewIterator(util.BytesPrefix(s.prefix), nil)
	defer iter.Release()
	for iter.Next() {
		val, err := decodeRecordValue(iter.Value())
		if err != nil || val == nil {
			continue
		}
		key := append([]byte(nil), iter.Key()[len(s.prefix):]...)
		if !fn(Record{Key: key, Value: val}) {
			return nil
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterating store %q: %w", s.name, err)
	}
	return nil
}

// idbComparer approximates Chromium's idb_cmp1 comparator closely enough for
// read-only forward iteration: keys are ordered by decoded prefix, then by
// raw bytes. The name must match or LevelDB refuses to open the database.
type idbComparer struct{}

func (idbComparer) Name() string { return "idb_cmp1" }

func (idbComparer) Compare(a, b []byte) int {
	pa, na, errA := decodeKeyPrefix(a)
	pb, nb, errB := decodeKeyPrefix(b)
	if errA != nil || errB != nil {
		return bytes.Compare(a, b)
	}
	if c := compareInt64(pa.databaseID, pb.databaseID); c != 0 {
		return c
	}
	if c := compareInt64(pa.objectStoreID, pb.objectStoreID); c != 0 {
		return c
	}
	if c := compareInt64(pa.indexID, pb.indexID); c != 0 {
		return c
	}
	return bytes.Compare(a[na:], b[nb:])
}

func (idbComparer) Separator(dst, a, b []byte) []byte { return nil }
func (idbComparer) Successor(dst, b []byte) []byte    { return nil }

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
