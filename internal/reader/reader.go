// Package reader provides fast, local-only access to Linear data by reading
// the desktop app's IndexedDB cache. Snapshots are held in memory with a
// five minute TTL and swapped atomically on reload.
package reader

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/detect"
	"github.com/ohmylinear/oml/internal/idb"
)

// requiredKinds are the entity kinds a usable cache must detect; anything
// less reports degraded health.
var requiredKinds = []string{"issues", "projects", "teams", "users", "workflow_states"}

type health struct {
	degraded      bool
	reason        string
	failureCount  int
	lastError     string
	lastErrorAt   time.Time
	lastSuccessAt time.Time
}

// Reader owns the latest snapshot of the local store and lazily refreshes
// it. All methods are safe for concurrent use.
type Reader struct {
	openIndex func() (idb.Index, error)
	log       *slog.Logger
	now       func() time.Time

	ttl                 time.Duration
	idleThreshold       time.Duration
	loadDocumentContent bool
	scopeEmails         map[string]bool
	scopeAccountIDs     map[string]bool

	flight singleflight.Group

	mu               sync.RWMutex
	snap             *Snapshot
	health           health
	forceNextRefresh bool
	lastToolCallAt   time.Time
}

// New builds a Reader over the configured LevelDB path.
func New(cfg *config.Config, log *slog.Logger) *Reader {
	dbPath, blobPath := cfg.DBPath, cfg.BlobPath
	open := func() (idb.Index, error) {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf(
				"Linear database not found at %s; ensure Linear.app is installed and has been opened at least once",
				dbPath)
		}
		return idb.Open(dbPath, blobPath)
	}
	return NewWithIndex(cfg, log, open)
}

// NewWithIndex is New with an injectable database opener, for tests.
func NewWithIndex(cfg *config.Config, log *slog.Logger, open func() (idb.Index, error)) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		openIndex:           open,
		log:                 log,
		now:                 time.Now,
		ttl:                 cfg.CacheTTL,
		idleThreshold:       cfg.IdleRefreshThreshold,
		loadDocumentContent: cfg.LoadDocumentContent,
		scopeEmails:         cfg.ScopeAccountEmails,
		scopeAccountIDs:     cfg.ScopeAccountIDs,
	}
}

// Snapshot returns the current snapshot, reloading first if it is missing,
// expired, or explicitly marked stale.
func (r *Reader) Snapshot() (*Snapshot, error) {
	r.mu.Lock()
	stale := r.forceNextRefresh || r.snap == nil ||
		r.snap.expired(r.now(), r.ttl) || r.snap.Teams.len() == 0
	if stale {
		r.forceNextRefresh = false
	}
	r.mu.Unlock()

	if stale {
		if err := r.reload(); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap, nil
}

// MarkStale forces the next snapshot access to reload.
func (r *Reader) MarkStale() {
	r.mu.Lock()
	r.forceNextRefresh = true
	r.mu.Unlock()
}

// EnsureFresh marks the cache stale when the gap since the previous tool
// call meets the idle threshold. The very first call never fires: the
// process start already loaded the cache.
func (r *Reader) EnsureFresh() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.lastToolCallAt
	r.lastToolCallAt = now
	if last.IsZero() {
		return
	}
	if gap := now.Sub(last); gap >= r.idleThreshold {
		r.log.Info("idle gap exceeds threshold, forcing cache refresh",
			"gapSeconds", gap.Seconds(),
			"thresholdSeconds", r.idleThreshold.Seconds())
		r.forceNextRefresh = true
	}
}

// RefreshCache reloads immediately when force is set, otherwise only if the
// snapshot is stale or expired.
func (r *Reader) RefreshCache(force bool) error {
	if force {
		return r.reload()
	}
	_, err := r.Snapshot()
	return err
}

// IsDegraded reports whether the last reload left the cache degraded.
func (r *Reader) IsDegraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health.degraded
}

// GetHealth reports the local cache health state for the health tool.
func (r *Reader) GetHealth() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loadedAt any
	if r.snap != nil {
		loadedAt = epochSeconds(r.snap.LoadedAt)
	} else {
		loadedAt = 0.0
	}
	return map[string]any{
		"degraded":                    r.health.degraded,
		"reason":                      nilIfEmpty(r.health.reason),
		"failureCount":                r.health.failureCount,
		"lastError":                   nilIfEmpty(r.health.lastError),
		"lastErrorAt":                 epochOrNil(r.health.lastErrorAt),
		"lastSuccessAt":               epochOrNil(r.health.lastSuccessAt),
		"loadedAt":                    loadedAt,
		"ttlSeconds":                  int(r.ttl / time.Second),
		"lastToolCallAt":              epochSeconds(r.lastToolCallAt),
		"idleRefreshThresholdSeconds": int(r.idleThreshold / time.Second),
		"scopeAccountEmails":          sortedKeys(r.scopeEmails),
		"scopeUserAccountIds":         sortedKeys(r.scopeAccountIDs),
	}
}

// GetSummary returns entity counts for the health report.
func (r *Reader) GetSummary() (map[string]int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"teams":    snap.Teams.len(),
		"users":    snap.Users.len(),
		"states":   snap.States.len(),
		"issues":   snap.Issues.len(),
		"comments": snap.Comments.len(),
		"projects": snap.Projects.len(),
	}, nil
}

// reload rebuilds the snapshot from the LevelDB store. Concurrent callers
// share one in-flight reload.
func (r *Reader) reload() error {
	_, err, _ := r.flight.Do("reload", func() (any, error) {
		return nil, r.doReload()
	})
	return err
}

func (r *Reader) doReload() (err error) {
	defer func() {
		if err != nil {
			r.setDegraded(err.Error())
		}
	}()

	idx, err := r.openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	dbs, err := idx.Databases()
	if err != nil {
		return err
	}
	var linearDBs []idb.Database
	for _, db := range dbs {
		if strings.Contains(db.Name(), "linear_") && db.Name() != "linear_databases" &&
			len(db.ObjectStoreNames()) > 0 {
			linearDBs = append(linearDBs, db)
		}
	}
	if len(linearDBs) == 0 {
		return fmt.Errorf("could not find Linear database in IndexedDB")
	}

	snap := newSnapshot(r.now())
	var hardErrs, softErrs []string
	detected := make(map[string]bool)

	for _, db := range linearDBs {
		stores := detect.Detect(db)
		for kind := range stores.DetectedKinds() {
			detected[kind] = true
		}
		r.loadFromDB(db, stores, snap, &hardErrs, &softErrs)
	}

	if err := r.applyAccountScope(snap); err != nil {
		return err
	}

	for _, project := range snap.Projects.Values() {
		if project.StatusID == "" {
			continue
		}
		if status, ok := snap.ProjectStatuses.get(project.StatusID); ok {
			project.State = status.Name
		}
	}

	buildIssueIndexes(snap)

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	var missing []string
	for _, kind := range requiredKinds {
		if !detected[kind] {
			missing = append(missing, kind)
		}
	}
	switch {
	case len(missing) > 0:
		r.setDegraded("missing required stores: " + strings.Join(missing, ", "))
	case snap.Issues.len() == 0 || snap.Teams.len() == 0 || snap.Users.len() == 0:
		r.setDegraded("required entities are missing from cache")
	case len(hardErrs) > 0:
		r.setDegraded(fmt.Sprintf("store read errors: %d", len(hardErrs)))
	default:
		if len(softErrs) > 0 {
			r.log.Warn("non-critical store read errors (ignored)",
				"errors", strings.Join(softErrs, "; "))
		}
		r.setHealthy()
	}
	return nil
}

func (r *Reader) setDegraded(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health.degraded = true
	r.health.reason = reason
	r.health.failureCount++
	r.health.lastError = reason
	r.health.lastErrorAt = r.now()
}

func (r *Reader) setHealthy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health.degraded = false
	r.health.reason = ""
	r.health.failureCount = 0
	r.health.lastSuccessAt = r.now()
}

func epochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func epochOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return epochSeconds(t)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
