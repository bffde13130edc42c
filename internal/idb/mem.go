package idb

import "fmt"

// MemDatabase is an in-memory Database used by tests and by callers that need
// to synthesize a snapshot without touching LevelDB.
type MemDatabase struct {
	DBName   string
	DBOrigin string
	Stores   map[string][]map[string]any
	Order    []string // iteration order for ObjectStoreNames; optional

	// FailStores lists store names whose Records call returns an error.
	FailStores map[string]bool
}

func (m *MemDatabase) Name() string   { return m.DBName }
func (m *MemDatabase) Origin() string { return m.DBOrigin }

func (m *MemDatabase) ObjectStoreNames() []string {
	if len(m.Order) > 0 {
		return m.Order
	}
	names := make([]string, 0, len(m.Stores))
	for name := range m.Stores {
		names = append(names, name)
	}
	return names
}

func (m *MemDatabase) Store(name string) (ObjectStore, error) {
	records, ok := m.Stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreNotFound, name)
	}
	return &memStore{name: name, records: records, fail: m.FailStores[name]}, nil
}

type memStore struct {
	name    string
	records []map[string]any
	fail    bool
}

func (s *memStore) Name() string { return s.name }

func (s *memStore) Records(fn func(Record) bool) error {
	if s.fail {
		return fmt.Errorf("store %q read failed", s.name)
	}
	for i, rec := range s.records {
		if rec == nil {
			continue
		}
		if !fn(Record{Key: []byte{byte(i)}, Value: rec}) {
			return nil
		}
	}
	return nil
}

// MemIndex is an Index over a fixed set of MemDatabases.
type MemIndex struct {
	DBs []Database
}

func (m *MemIndex) Databases() ([]Database, error) { return m.DBs, nil }
func (m *MemIndex) Close() error                   { return nil }
