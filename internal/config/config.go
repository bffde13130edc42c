// Package config resolves all runtime configuration from the environment.
// Every knob is optional; the only fatal misconfiguration is an unknown
// upstream transport kind. Invalid JSON values are logged and ignored so a
// bad env var never prevents startup.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	DefaultOfficialURL = "https://mcp.linear.app/mcp"
	DefaultNotionURL   = "https://mcp.notion.com/mcp"

	DefaultStdioCommand = "npx"

	DefaultCacheTTL             = 5 * time.Minute
	DefaultCoherenceWindow      = 30 * time.Second
	DefaultIdleRefreshThreshold = 60 * time.Second
)

// defaultStdioArgsPrefix is completed with the upstream URL: the stock
// command launches the mcp-remote OAuth bridge pointed at Linear.
var defaultStdioArgsPrefix = []string{"-y", "mcp-remote"}

// Config is the resolved runtime configuration.
type Config struct {
	// Upstream session.
	Transport string
	URL       string
	Headers   map[string]string
	Command   string
	Args      []string
	Env       map[string]string
	Cwd       string
	NotionURL string

	// Routing and cache behavior.
	CoherenceWindow      time.Duration
	IdleRefreshThreshold time.Duration
	CacheTTL             time.Duration
	LoadDocumentContent  bool
	WatchDB              bool

	// Account scope. Empty sets mean no scoping.
	ScopeAccountEmails map[string]bool
	ScopeAccountIDs    map[string]bool

	// Local database location.
	DBPath   string
	BlobPath string
}

// Load reads the environment and returns the resolved configuration.
// An invalid LINEAR_OFFICIAL_MCP_TRANSPORT is the only hard error.
func Load(log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	v := viper.New()
	bind := func(key, envVar string, def any) {
		_ = v.BindEnv(key, envVar)
		if def != nil {
			v.SetDefault(key, def)
		}
	}
	bind("official.transport", "LINEAR_OFFICIAL_MCP_TRANSPORT", TransportStdio)
	bind("official.url", "LINEAR_OFFICIAL_MCP_URL", DefaultOfficialURL)
	bind("official.headers", "LINEAR_OFFICIAL_MCP_HEADERS", nil)
	bind("official.command", "LINEAR_OFFICIAL_MCP_COMMAND", DefaultStdioCommand)
	bind("official.args", "LINEAR_OFFICIAL_MCP_ARGS", nil)
	bind("official.env", "LINEAR_OFFICIAL_MCP_ENV", nil)
	bind("official.cwd", "LINEAR_OFFICIAL_MCP_CWD", nil)
	bind("notion.url", "NOTION_OFFICIAL_MCP_URL", DefaultNotionURL)
	bind("router.coherence_window_seconds", "LINEAR_FAST_COHERENCE_WINDOW_SECONDS", int(DefaultCoherenceWindow/time.Second))
	bind("reader.idle_refresh_seconds", "LINEAR_FAST_IDLE_REFRESH_SECONDS", int(DefaultIdleRefreshThreshold/time.Second))
	bind("reader.load_document_content", "LINEAR_FAST_LOAD_DOCUMENT_CONTENT", "0")
	bind("reader.watch_db", "OML_WATCH_DB", "0")
	bind("reader.db_path", "OML_DB_PATH", defaultDBPath())
	bind("scope.emails", "LINEAR_FAST_ACCOUNT_EMAILS", nil)
	bind("scope.email", "LINEAR_FAST_ACCOUNT_EMAIL", nil)
	bind("scope.account_ids", "LINEAR_FAST_USER_ACCOUNT_IDS", nil)
	bind("scope.account_id", "LINEAR_FAST_USER_ACCOUNT_ID", nil)

	transport := strings.ToLower(v.GetString("official.transport"))
	if transport != TransportStdio && transport != TransportHTTP {
		return nil, fmt.Errorf("LINEAR_OFFICIAL_MCP_TRANSPORT must be one of: stdio, http (got %q)", transport)
	}

	url := v.GetString("official.url")
	dbPath := v.GetString("reader.db_path")

	cfg := &Config{
		Transport:            transport,
		URL:                  url,
		Headers:              parseJSONMap(log, "LINEAR_OFFICIAL_MCP_HEADERS", v.GetString("official.headers")),
		Command:              v.GetString("official.command"),
		Args:                 parseArgs(log, v.GetString("official.args"), url),
		Env:                  parseJSONMap(log, "LINEAR_OFFICIAL_MCP_ENV", v.GetString("official.env")),
		Cwd:                  v.GetString("official.cwd"),
		NotionURL:            v.GetString("notion.url"),
		CoherenceWindow:      time.Duration(v.GetInt("router.coherence_window_seconds")) * time.Second,
		IdleRefreshThreshold: time.Duration(v.GetInt("reader.idle_refresh_seconds")) * time.Second,
		CacheTTL:             DefaultCacheTTL,
		LoadDocumentContent:  v.GetString("reader.load_document_content") == "1",
		WatchDB:              v.GetString("reader.watch_db") == "1",
		ScopeAccountEmails:   csvSet(v.GetString("scope.emails"), v.GetString("scope.email")),
		ScopeAccountIDs:      csvSet(v.GetString("scope.account_ids"), v.GetString("scope.account_id")),
		DBPath:               dbPath,
		BlobPath:             blobPathFor(dbPath),
	}
	return cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "Library", "Application Support", "Linear",
		"IndexedDB", "https_linear.app_0.indexeddb.leveldb")
}

func blobPathFor(dbPath string) string {
	return strings.TrimSuffix(dbPath, ".leveldb") + ".blob"
}

func parseJSONMap(log *slog.Logger, envVar, raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Warn("ignoring invalid JSON env value", "var", envVar)
		return nil
	}
	out := make(map[string]string, len(parsed))
	for k, val := range parsed {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// parseArgs resolves the stdio bridge arguments. A JSON array wins for exact
// argument boundaries; otherwise shell-style splitting; otherwise defaults.
func parseArgs(log *slog.Logger, raw, url string) []string {
	if raw == "" {
		return append(append([]string{}, defaultStdioArgsPrefix...), url)
	}
	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		out := make([]string, len(arr))
		for i, item := range arr {
			out[i] = fmt.Sprint(item)
		}
		return out
	}
	if fields, err := splitShellWords(raw); err == nil {
		return fields
	}
	log.Warn("ignoring invalid LINEAR_OFFICIAL_MCP_ARGS value; using default args")
	return append(append([]string{}, defaultStdioArgsPrefix...), url)
}

// splitShellWords splits raw on whitespace while honoring single and double
// quotes. Unterminated quotes are an error.
func splitShellWords(raw string) ([]string, error) {
	var (
		out     []string
		current strings.Builder
		quote   rune
		inWord  bool
	)
	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				out = append(out, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", raw)
	}
	if inWord {
		out = append(out, current.String())
	}
	return out, nil
}

func csvSet(values ...string) map[string]bool {
	set := make(map[string]bool)
	for _, raw := range values {
		for _, item := range strings.Split(raw, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				set[item] = true
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
