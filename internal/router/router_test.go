package router

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/handlers"
	"github.com/ohmylinear/oml/internal/idb"
	"github.com/ohmylinear/oml/internal/official"
	"github.com/ohmylinear/oml/internal/reader"
)

type fakeUpstream struct {
	calls  []string
	result any
	err    error
}

func (f *fakeUpstream) CallTool(name string, arguments map[string]any) (any, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeUpstream) GetHealth() map[string]any {
	return map[string]any{"connected": true}
}

func (f *fakeUpstream) Reauth() map[string]any {
	return map[string]any{"status": "reauth_triggered"}
}

func unavailableErr() error {
	return &official.ToolError{Code: official.CodeUnavailable, Message: "upstream down"}
}

// healthyDB holds the minimum stores a non-degraded cache needs.
func healthyDB() *idb.MemDatabase {
	return &idb.MemDatabase{
		DBName: "linear_workspace1",
		Order:  []string{"st_teams", "st_users", "st_states", "st_issues", "st_projects"},
		Stores: map[string][]map[string]any{
			"st_teams": {
				{"id": "t1", "key": "ENG", "name": "Engineering"},
			},
			"st_users": {
				{"id": "u1", "name": "Alice Chen", "displayName": "alice", "email": "alice@example.com", "active": true},
			},
			"st_states": {
				{"id": "s1", "name": "In Progress", "type": "started", "color": "#ff0", "teamId": "t1", "position": 1.0},
			},
			"st_issues": {
				{"id": "i1", "number": 55.0, "teamId": "t1", "stateId": "s1", "title": "Fix login crash", "priority": 2.0, "assigneeId": "u1"},
			},
			"st_projects": {
				{"id": "p1", "name": "Apollo", "teamIds": []any{"t1"}, "slugId": "apollo", "statusId": "ps1", "memberIds": []any{}},
			},
		},
	}
}

// degradedDB drops the projects store so the cache loads but reports
// degraded health.
func degradedDB() *idb.MemDatabase {
	db := healthyDB()
	db.Order = db.Order[:4]
	delete(db.Stores, "st_projects")
	return db
}

func newTestRouter(t *testing.T, db idb.Database, up Upstream) *Router {
	t.Helper()
	cfg := &config.Config{
		CacheTTL:             5 * time.Minute,
		IdleRefreshThreshold: time.Minute,
		CoherenceWindow:      30 * time.Second,
		NotionURL:            "https://mcp.notion.com/mcp",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rdr := reader.NewWithIndex(cfg, log, func() (idb.Index, error) {
		return &idb.MemIndex{DBs: []idb.Database{db}}, nil
	})
	return New(cfg, rdr, up, log)
}

func TestCallReadServesLocally(t *testing.T) {
	up := &fakeUpstream{err: errors.New("must not be called")}
	rt := newTestRouter(t, healthyDB(), up)

	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatalf("CallRead: %v", err)
	}
	rows := value.([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["key"] != "ENG" {
		t.Errorf("rows = %v", rows)
	}
	if len(up.calls) != 0 {
		t.Errorf("upstream called for a healthy local read: %v", up.calls)
	}
}

func TestWriteOpensCoherenceWindow(t *testing.T) {
	up := &fakeUpstream{result: map[string]any{"ok": true}}
	rt := newTestRouter(t, healthyDB(), up)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rt.now = func() time.Time { return now }

	if _, err := rt.CallOfficial("create_issue", map[string]any{"title": "x"}); err != nil {
		t.Fatal(err)
	}

	// Inside the window reads go remote first.
	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(value, map[string]any{"ok": true}) {
		t.Errorf("value = %#v, want the upstream result", value)
	}
	if len(up.calls) != 2 || up.calls[1] != "list_teams" {
		t.Errorf("calls = %v", up.calls)
	}

	// Past the window reads are local again.
	now = now.Add(31 * time.Second)
	value, err = rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, isList := value.([]any); !isList {
		t.Errorf("value = %#v, want the local list", value)
	}
	if len(up.calls) != 2 {
		t.Errorf("calls = %v, window must have expired", up.calls)
	}
}

func TestReadToolsNeverOpenWindow(t *testing.T) {
	up := &fakeUpstream{result: map[string]any{"ok": true}}
	rt := newTestRouter(t, healthyDB(), up)

	if _, err := rt.CallOfficial("list_issues", nil); err != nil {
		t.Fatal(err)
	}
	if rt.remoteFirst() {
		t.Error("proxying a read tool must not open the coherence window")
	}
}

func TestIsProbableWriteTool(t *testing.T) {
	rt := newTestRouter(t, healthyDB(), &fakeUpstream{})

	tests := []struct {
		name string
		want bool
	}{
		{"create_issue", true},
		{"update_project", true},
		{"delete_comment", true},
		{"add_label", true},
		{"list_issues", false}, // registered locally, whatever the prefix
		{"get_issue", false},
		{"export_data", false},
	}
	for _, tt := range tests {
		if got := rt.isProbableWriteTool(tt.name); got != tt.want {
			t.Errorf("isProbableWriteTool(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRemoteFirstSemanticErrorPropagates(t *testing.T) {
	up := &fakeUpstream{err: &official.ToolError{Code: official.CodeToolError, Message: "issue not found"}}
	rt := newTestRouter(t, healthyDB(), up)
	rt.markRecentWrite()

	_, err := rt.CallRead("get_issue", map[string]any{"identifier": "ENG-1"})
	te, ok := official.AsToolError(err)
	if !ok || te.Code != official.CodeToolError {
		t.Fatalf("err = %v, want the semantic upstream error", err)
	}
	if len(up.calls) != 1 {
		t.Errorf("calls = %v, semantic errors must not fall back", up.calls)
	}
}

func TestRemoteFirstUnavailableFallsBackToLocal(t *testing.T) {
	up := &fakeUpstream{err: unavailableErr()}
	rt := newTestRouter(t, healthyDB(), up)
	rt.markRecentWrite()

	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatalf("CallRead: %v", err)
	}
	if _, isList := value.([]any); !isList {
		t.Errorf("value = %#v, want the plain local list", value)
	}
}

func TestRemoteFirstUnavailableWithDegradedLocalGoesStale(t *testing.T) {
	up := &fakeUpstream{err: unavailableErr()}
	rt := newTestRouter(t, degradedDB(), up)
	rt.RefreshLocalCache()
	rt.markRecentWrite()

	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatalf("CallRead: %v", err)
	}
	m := value.(map[string]any)
	meta := m["_metadata"].(map[string]any)
	if meta["stale"] != true {
		t.Errorf("metadata = %v", meta)
	}
	if rows := m["results"].([]any); len(rows) != 1 {
		t.Errorf("results = %v", rows)
	}
}

func TestDegradedLocalFallsBackUpstream(t *testing.T) {
	up := &fakeUpstream{result: map[string]any{"teams": "remote"}}
	rt := newTestRouter(t, degradedDB(), up)
	rt.RefreshLocalCache()

	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(value, map[string]any{"teams": "remote"}) {
		t.Errorf("value = %#v", value)
	}
	if len(up.calls) != 1 {
		t.Errorf("calls = %v", up.calls)
	}
}

func TestDegradedLocalUpstreamDownGoesStale(t *testing.T) {
	up := &fakeUpstream{err: unavailableErr()}
	rt := newTestRouter(t, degradedDB(), up)
	rt.RefreshLocalCache()

	value, err := rt.CallRead("get_team", map[string]any{"team": "eng"})
	if err != nil {
		t.Fatalf("CallRead: %v", err)
	}
	m := value.(map[string]any)
	if m["key"] != "ENG" {
		t.Errorf("original keys must survive the decoration: %v", m)
	}
	if m["_metadata"].(map[string]any)["stale"] != true {
		t.Errorf("metadata = %v", m["_metadata"])
	}
}

func TestUnsupportedToolRoutesUpstream(t *testing.T) {
	up := &fakeUpstream{result: map[string]any{"ok": true}}
	rt := newTestRouter(t, healthyDB(), up)

	value, err := rt.CallRead("list_my_issues", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(value, map[string]any{"ok": true}) {
		t.Errorf("value = %#v", value)
	}
	if len(up.calls) != 1 || up.calls[0] != "list_my_issues" {
		t.Errorf("calls = %v", up.calls)
	}
}

func TestFallbackNeverEscapes(t *testing.T) {
	up := &fakeUpstream{err: unavailableErr()}
	rt := newTestRouter(t, healthyDB(), up)

	_, err := rt.CallRead("list_my_issues", nil)
	if err == nil {
		t.Fatal("want an error when upstream is down for an unsupported tool")
	}
	var fb *handlers.Fallback
	if errors.As(err, &fb) {
		t.Fatalf("Fallback escaped the router: %v", err)
	}
	te, ok := official.AsToolError(err)
	if !ok || te.Code != official.CodeUnavailable {
		t.Errorf("err = %v, want the upstream unavailable error", err)
	}
}

func TestUnsupportedFilterRoutesUpstream(t *testing.T) {
	up := &fakeUpstream{result: map[string]any{"issues": "remote"}}
	rt := newTestRouter(t, healthyDB(), up)

	value, err := rt.CallRead("list_issues", map[string]any{"label": "bug"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(value, map[string]any{"issues": "remote"}) {
		t.Errorf("value = %#v", value)
	}
}

func TestUnexpectedLocalErrorRoutesUpstream(t *testing.T) {
	// An index with no Linear database makes every local handler fail hard.
	up := &fakeUpstream{result: map[string]any{"ok": true}}
	rt := newTestRouter(t, &idb.MemDatabase{DBName: "linear_databases"}, up)

	value, err := rt.CallRead("list_teams", nil)
	if err != nil {
		t.Fatalf("CallRead: %v", err)
	}
	if !reflect.DeepEqual(value, map[string]any{"ok": true}) {
		t.Errorf("value = %#v, caller must see upstream behavior", value)
	}
}

func TestMarkStale(t *testing.T) {
	original := map[string]any{"a": 1}
	decorated := markStale(original).(map[string]any)
	if decorated["a"] != 1 || decorated["_metadata"].(map[string]any)["stale"] != true {
		t.Errorf("decorated = %v", decorated)
	}
	if _, ok := original["_metadata"]; ok {
		t.Error("markStale must not mutate the original")
	}

	wrapped := markStale([]any{"x"}).(map[string]any)
	if rows := wrapped["results"].([]any); len(rows) != 1 {
		t.Errorf("wrapped = %v", wrapped)
	}

	scalar := markStale("done").(map[string]any)
	if scalar["result"] != "done" {
		t.Errorf("scalar = %v", scalar)
	}
}

func TestReauthRouting(t *testing.T) {
	rt := newTestRouter(t, healthyDB(), &fakeUpstream{})
	var clearedURL string
	rt.clearTokens = func(url string) map[string]any {
		clearedURL = url
		return map[string]any{"status": "reauth_triggered"}
	}

	result := rt.ReauthNotion()
	if clearedURL != "https://mcp.notion.com/mcp" {
		t.Errorf("clearedURL = %q", clearedURL)
	}
	if result["status"] != "reauth_triggered" {
		t.Errorf("result = %v", result)
	}

	all := rt.ReauthAll()
	if _, ok := all["linear"]; !ok {
		t.Error("ReauthAll must include linear")
	}
	if _, ok := all["notion"]; !ok {
		t.Error("ReauthAll must include notion")
	}
}

func TestGetHealth(t *testing.T) {
	rt := newTestRouter(t, healthyDB(), &fakeUpstream{})

	health := rt.GetHealth()
	if health["coherenceWindowSeconds"] != 30 {
		t.Errorf("coherenceWindowSeconds = %v", health["coherenceWindowSeconds"])
	}
	if health["remoteReadUntil"] != 0.0 {
		t.Errorf("remoteReadUntil = %v, want 0 before any write", health["remoteReadUntil"])
	}
	if _, ok := health["local"].(map[string]any); !ok {
		t.Error("health must embed the local cache report")
	}
	if _, ok := health["official"].(map[string]any); !ok {
		t.Error("health must embed the upstream report")
	}

	rt.markRecentWrite()
	if rt.GetHealth()["remoteReadUntil"].(float64) <= 0 {
		t.Error("remoteReadUntil must be set after a write")
	}
}
