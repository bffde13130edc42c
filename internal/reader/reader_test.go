package reader

import (
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/detect"
	"github.com/ohmylinear/oml/internal/idb"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCfg() *config.Config {
	return &config.Config{
		CacheTTL:             5 * time.Minute,
		IdleRefreshThreshold: time.Minute,
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// fixtureDB synthesizes a Linear workspace the way the desktop app stores
// it: hash-named stores, float64 numbers, ISO-8601 strings.
func fixtureDB() *idb.MemDatabase {
	return &idb.MemDatabase{
		DBName: "linear_workspace1",
		Order: []string{
			"st_teams", "st_users", "st_states", "st_issues", "st_comments",
			"st_projects", "st_content", "st_labels", "st_initiatives",
			"st_pstatus", "st_cycles", "st_docs", "st_milestones", "st_updates",
		},
		Stores: map[string][]map[string]any{
			"st_teams": {
				{"id": "t1", "key": "ENG", "name": "Engineering", "organizationId": "o1"},
				{"id": "t2", "key": "DES", "name": "Design", "organizationId": "o2"},
			},
			"st_users": {
				{"id": "u1", "name": "Alice Chen", "displayName": "alice", "email": "alice@example.com", "organizationId": "o1", "userAccountId": "acc1", "active": true},
				{"id": "u2", "name": "Bob Park", "displayName": "bob", "email": "bob@example.com", "organizationId": "o2", "userAccountId": "acc2", "active": true},
			},
			"st_states": {
				{"id": "s1", "name": "In Progress", "type": "started", "color": "#ff0", "teamId": "t1", "position": 2.0},
				{"id": "s2", "name": "Todo", "type": "unstarted", "color": "#ccc", "teamId": "t1", "position": 1.0},
				{"id": "s3", "name": "Done", "type": "completed", "color": "#0f0", "teamId": "t1", "position": 3.0},
				{"id": "s4", "name": "In Progress", "type": "started", "color": "#ff0", "teamId": "t2", "position": 1.0},
			},
			"st_issues": {
				{"id": "i1", "number": 55.0, "teamId": "t1", "stateId": "s1", "title": "Fix login crash", "priority": 2.0, "assigneeId": "u1", "projectId": "p1", "updatedAt": "2024-03-01", "createdAt": "2024-01-01", "dueDate": "2024-04-01"},
				{"id": "i2", "number": 56.0, "teamId": "t1", "stateId": "s2", "title": "Add dark mode", "priority": 0.0, "assigneeId": "u2", "projectId": "p1", "updatedAt": "2024-03-02"},
				{"id": "i3", "number": 7.0, "teamId": "t2", "stateId": "s4", "title": "Brand refresh", "priority": 1.0, "assigneeId": "u1", "projectId": "p2", "updatedAt": "2024-03-03"},
				{"id": "i4", "number": 9.0, "teamId": "ghost", "stateId": "s1", "title": "Orphan issue", "priority": 4.0},
			},
			"st_comments": {
				{"id": "c1", "issueId": "i1", "userId": "u2", "bodyData": `{"type":"doc","content":[{"type":"text","text":"Looks good"}]}`, "createdAt": "2024-01-02"},
				{"id": "c2", "issueId": "i1", "userId": "u1", "bodyData": `{"type":"doc","content":[{"type":"text","text":"On it"}]}`, "createdAt": "2024-01-01"},
			},
			"st_projects": {
				{"id": "p1", "name": "Apollo", "teamIds": []any{"t1"}, "slugId": "apollo", "statusId": "ps1", "memberIds": []any{"u1"}, "updatedAt": "2024-02-01"},
				{"id": "p2", "name": "Borealis", "teamIds": []any{"t2"}, "slugId": "borealis", "statusId": "ps1", "memberIds": []any{}},
			},
			"st_content": {
				{"issueId": "i2", "contentState": b64("Implement the dark theme across settings")},
			},
			"st_labels": {
				{"id": "l1", "name": "bug", "color": "#f00", "isGroup": false},
				{"id": "l2", "name": "brand", "color": "#00f", "isGroup": false, "teamId": "t2"},
			},
			"st_initiatives": {
				{"id": "in1", "name": "Q3 Goals", "ownerId": "u1", "slugId": "q3-goals", "frequencyResolution": "week", "teamIds": []any{"t1"}},
			},
			"st_pstatus": {
				{"id": "ps1", "name": "In Progress", "color": "#ff0", "position": 1.0, "type": "started", "indefinite": false},
			},
			"st_cycles": {
				{"id": "cy1", "number": 4.0, "teamId": "t1", "startsAt": "2024-02-01", "endsAt": "2024-02-14"},
				{"id": "cy2", "number": 5.0, "teamId": "t1", "startsAt": "2024-02-15", "endsAt": "2024-02-28"},
			},
			"st_docs": {
				{"id": "d1", "title": "Launch Plan", "slugId": "launch-plan", "projectId": "p1", "sortOrder": 1.0, "creatorId": "u1", "updatedAt": "2024-02-01"},
			},
			"st_milestones": {
				{"id": "m1", "name": "Beta", "projectId": "p1", "sortOrder": 2.0, "targetDate": "2024-06-01", "currentProgress": map[string]any{"completedIssueCount": 3.0, "startedIssueCount": 1.0, "unstartedIssueCount": 2.0, "scopeCount": 6.0}},
				{"id": "m2", "name": "Alpha", "projectId": "p1", "sortOrder": 1.0, "targetDate": "2024-05-01"},
			},
			"st_updates": {
				{"id": "pu1", "body": "kickoff done", "projectId": "p1", "health": "onTrack", "userId": "u1", "createdAt": "2024-01-05"},
				{"id": "pu2", "body": "beta slipping", "projectId": "p1", "health": "atRisk", "userId": "u1", "createdAt": "2024-02-05"},
			},
		},
	}
}

func newTestReader(t *testing.T, cfg *config.Config, dbs ...idb.Database) *Reader {
	t.Helper()
	if cfg == nil {
		cfg = testCfg()
	}
	return NewWithIndex(cfg, discardLogger(), func() (idb.Index, error) {
		return &idb.MemIndex{DBs: dbs}, nil
	})
}

func TestSnapshotLoadsFixture(t *testing.T) {
	r := newTestReader(t, nil, fixtureDB())
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.Teams.len() != 2 || snap.Users.len() != 2 || snap.Issues.len() != 4 {
		t.Fatalf("counts: teams=%d users=%d issues=%d", snap.Teams.len(), snap.Users.len(), snap.Issues.len())
	}

	issue, _ := snap.Issues.get("i1")
	if issue.Identifier != "ENG-55" {
		t.Errorf("identifier = %q, want ENG-55", issue.Identifier)
	}

	orphan, _ := snap.Issues.get("i4")
	if orphan.Identifier != "???-9" {
		t.Errorf("orphan identifier = %q, want ???-9", orphan.Identifier)
	}

	// Description backfilled from the Y.js content store.
	dark, _ := snap.Issues.get("i2")
	if !strings.Contains(dark.Description, "dark theme") {
		t.Errorf("description not backfilled: %q", dark.Description)
	}

	// Project state resolved through the status table.
	apollo, _ := snap.Projects.get("p1")
	if apollo.State != "In Progress" {
		t.Errorf("project state = %q", apollo.State)
	}

	if got := snap.CommentsByIssue["i1"]; len(got) != 2 {
		t.Errorf("comments for i1 = %v", got)
	}

	if snap.IssueCountsByTeam["t1"] != 2 {
		t.Errorf("t1 issue count = %d, want 2", snap.IssueCountsByTeam["t1"])
	}
	if snap.IssueStateCountsByTeam["t1"]["started"] != 1 {
		t.Errorf("t1 started count = %d", snap.IssueStateCountsByTeam["t1"]["started"])
	}

	if r.IsDegraded() {
		t.Errorf("healthy fixture reported degraded: %v", r.GetHealth()["reason"])
	}
}

func TestSnapshotCachedUntilExpiry(t *testing.T) {
	opens := 0
	cfg := testCfg()
	r := NewWithIndex(cfg, discardLogger(), func() (idb.Index, error) {
		opens++
		return &idb.MemIndex{DBs: []idb.Database{fixtureDB()}}, nil
	})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 1 {
		t.Fatalf("opens = %d, want 1 (second access served from cache)", opens)
	}

	now = now.Add(cfg.CacheTTL + time.Second)
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 2 {
		t.Fatalf("opens = %d, want 2 after TTL expiry", opens)
	}
}

func TestEnsureFreshIdleGap(t *testing.T) {
	opens := 0
	cfg := testCfg()
	r := NewWithIndex(cfg, discardLogger(), func() (idb.Index, error) {
		opens++
		return &idb.MemIndex{DBs: []idb.Database{fixtureDB()}}, nil
	})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	// First call is exempt: process start already loaded the cache.
	r.EnsureFresh()
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 1 {
		t.Fatalf("opens = %d", opens)
	}

	// Short gap: no refresh.
	now = now.Add(30 * time.Second)
	r.EnsureFresh()
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 1 {
		t.Fatalf("opens = %d, want 1 after sub-threshold gap", opens)
	}

	// Gap at the threshold: refresh forced.
	now = now.Add(cfg.IdleRefreshThreshold)
	r.EnsureFresh()
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 2 {
		t.Fatalf("opens = %d, want 2 after idle gap", opens)
	}
}

func TestMarkStaleForcesReload(t *testing.T) {
	opens := 0
	r := NewWithIndex(testCfg(), discardLogger(), func() (idb.Index, error) {
		opens++
		return &idb.MemIndex{DBs: []idb.Database{fixtureDB()}}, nil
	})
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	r.MarkStale()
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if opens != 2 {
		t.Fatalf("opens = %d, want 2", opens)
	}
}

func TestDegradedMissingRequiredStores(t *testing.T) {
	db := &idb.MemDatabase{
		DBName: "linear_workspace1",
		Order:  []string{"st_teams", "st_users", "st_issues"},
		Stores: map[string][]map[string]any{
			"st_teams":  {{"id": "t1", "key": "ENG", "name": "Engineering"}},
			"st_users":  {{"id": "u1", "name": "Alice", "displayName": "a", "email": "a@x.com"}},
			"st_issues": {{"id": "i1", "number": 1.0, "teamId": "t1", "stateId": "s1", "title": "x"}},
		},
	}
	r := newTestReader(t, nil, db)
	if _, err := r.Snapshot(); err != nil {
		t.Fatalf("degradation must not fail the snapshot: %v", err)
	}
	if !r.IsDegraded() {
		t.Fatal("want degraded")
	}
	reason := r.GetHealth()["reason"].(string)
	if reason != "missing required stores: projects, workflow_states" {
		t.Errorf("reason = %q", reason)
	}
}

func TestNoLinearDatabase(t *testing.T) {
	db := &idb.MemDatabase{
		DBName: "linear_databases",
		Stores: map[string][]map[string]any{"x": {{"id": "1"}}},
		Order:  []string{"x"},
	}
	r := newTestReader(t, nil, db)
	_, err := r.Snapshot()
	if err == nil || !strings.Contains(err.Error(), "could not find Linear database") {
		t.Errorf("err = %v", err)
	}
	if !r.IsDegraded() {
		t.Error("failed reload must degrade health")
	}
}

func TestDocumentNewestUpdateWinsAcrossDatabases(t *testing.T) {
	older := fixtureDB()
	newer := fixtureDB()
	newer.DBName = "linear_workspace2"
	newer.Stores["st_docs"] = []map[string]any{
		{"id": "d1", "title": "Launch Plan v2", "slugId": "launch-plan", "projectId": "p1", "sortOrder": 1.0, "creatorId": "u1", "updatedAt": "2024-03-01"},
	}

	r := newTestReader(t, nil, older, newer)
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := snap.Documents.get("d1")
	if doc.Title != "Launch Plan v2" {
		t.Errorf("title = %q, want the newer revision", doc.Title)
	}

	// Reversed order: the older copy must not clobber the newer one.
	r = newTestReader(t, nil, newer, older)
	snap, err = r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	doc, _ = snap.Documents.get("d1")
	if doc.Title != "Launch Plan v2" {
		t.Errorf("title = %q after reversed load order", doc.Title)
	}
}

func TestLoadFromDBStoreErrors(t *testing.T) {
	db := fixtureDB()
	db.FailStores = map[string]bool{"st_comments": true, "st_content": true}
	stores := &detect.Stores{Comments: "st_comments", IssueContent: "st_content"}

	r := newTestReader(t, nil, db)
	snap := newSnapshot(time.Now())
	var hard, soft []string
	r.loadFromDB(db, stores, snap, &hard, &soft)

	if len(hard) != 1 || !strings.Contains(hard[0], "st_comments") {
		t.Errorf("hard = %v", hard)
	}
	if len(soft) != 1 || !strings.Contains(soft[0], "st_content") {
		t.Errorf("soft = %v (issue content errors must stay soft)", soft)
	}
}

func TestGetHealthShape(t *testing.T) {
	r := newTestReader(t, nil, fixtureDB())
	if _, err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
	health := r.GetHealth()

	if health["degraded"] != false {
		t.Errorf("degraded = %v", health["degraded"])
	}
	if health["reason"] != nil {
		t.Errorf("reason = %v", health["reason"])
	}
	if health["ttlSeconds"] != 300 {
		t.Errorf("ttlSeconds = %v", health["ttlSeconds"])
	}
	if health["idleRefreshThresholdSeconds"] != 60 {
		t.Errorf("idleRefreshThresholdSeconds = %v", health["idleRefreshThresholdSeconds"])
	}
	if health["loadedAt"].(float64) <= 0 {
		t.Error("loadedAt must be a positive epoch")
	}
	if health["lastSuccessAt"] == nil {
		t.Error("lastSuccessAt must be set after a clean load")
	}
}

func TestGetSummary(t *testing.T) {
	r := newTestReader(t, nil, fixtureDB())
	summary, err := r.GetSummary()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"teams": 2, "users": 2, "states": 4, "issues": 4, "comments": 2, "projects": 2}
	for k, v := range want {
		if summary[k] != v {
			t.Errorf("%s = %d, want %d", k, summary[k], v)
		}
	}
}
