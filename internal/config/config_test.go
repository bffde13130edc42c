package config

import (
	"log/slog"
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(slog.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportStdio {
		t.Errorf("Transport = %q, want stdio", cfg.Transport)
	}
	if cfg.URL != DefaultOfficialURL {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.NotionURL != DefaultNotionURL {
		t.Errorf("NotionURL = %q", cfg.NotionURL)
	}
	want := []string{"-y", "mcp-remote", DefaultOfficialURL}
	if !reflect.DeepEqual(cfg.Args, want) {
		t.Errorf("Args = %v, want %v", cfg.Args, want)
	}
	if cfg.CoherenceWindow != DefaultCoherenceWindow {
		t.Errorf("CoherenceWindow = %v", cfg.CoherenceWindow)
	}
	if cfg.IdleRefreshThreshold != DefaultIdleRefreshThreshold {
		t.Errorf("IdleRefreshThreshold = %v", cfg.IdleRefreshThreshold)
	}
	if cfg.WatchDB || cfg.LoadDocumentContent {
		t.Error("WatchDB and LoadDocumentContent must default off")
	}
}

func TestLoadInvalidTransport(t *testing.T) {
	t.Setenv("LINEAR_OFFICIAL_MCP_TRANSPORT", "websocket")
	if _, err := Load(slog.Default()); err == nil {
		t.Fatal("invalid transport must be a hard error")
	}
}

func TestLoadHTTPTransport(t *testing.T) {
	t.Setenv("LINEAR_OFFICIAL_MCP_TRANSPORT", "HTTP")
	t.Setenv("LINEAR_OFFICIAL_MCP_HEADERS", `{"Authorization":"Bearer x"}`)
	cfg, err := Load(slog.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %q, want http", cfg.Transport)
	}
	if cfg.Headers["Authorization"] != "Bearer x" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
}

func TestLoadInvalidJSONIsIgnored(t *testing.T) {
	t.Setenv("LINEAR_OFFICIAL_MCP_HEADERS", "{not json")
	cfg, err := Load(slog.Default())
	if err != nil {
		t.Fatalf("invalid JSON must not prevent startup: %v", err)
	}
	if cfg.Headers != nil {
		t.Errorf("Headers = %v, want nil", cfg.Headers)
	}
}

func TestLoadScopeCSV(t *testing.T) {
	t.Setenv("LINEAR_FAST_ACCOUNT_EMAILS", "a@x.com, b@x.com")
	t.Setenv("LINEAR_FAST_ACCOUNT_EMAIL", "c@x.com")
	cfg, err := Load(slog.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if !cfg.ScopeAccountEmails[email] {
			t.Errorf("missing scope email %q", email)
		}
	}
}

func TestParseArgs(t *testing.T) {
	log := slog.Default()
	url := "https://mcp.linear.app/mcp"

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"default", "", []string{"-y", "mcp-remote", url}},
		{"json array", `["-y","mcp-remote","https://example.com"]`, []string{"-y", "mcp-remote", "https://example.com"}},
		{"shell words", `-y mcp-remote "https://example.com/my mcp"`, []string{"-y", "mcp-remote", "https://example.com/my mcp"}},
		{"single quotes", `run 'a b' c`, []string{"run", "a b", "c"}},
		{"unterminated quote falls back", `run "broken`, []string{"-y", "mcp-remote", url}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseArgs(log, tt.raw, url); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgs(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCSVSet(t *testing.T) {
	if csvSet("", "") != nil {
		t.Error("all-empty input should return nil")
	}
	set := csvSet("a, b", "c")
	if len(set) != 3 || !set["a"] || !set["b"] || !set["c"] {
		t.Errorf("set = %v", set)
	}
}

func TestBlobPathFor(t *testing.T) {
	got := blobPathFor("/x/https_linear.app_0.indexeddb.leveldb")
	want := "/x/https_linear.app_0.indexeddb.blob"
	if got != want {
		t.Errorf("blobPathFor = %q, want %q", got, want)
	}
}
