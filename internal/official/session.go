// Package official maintains one long-lived client session to the upstream
// Linear MCP server, with lazy connect, single-retry semantics for transient
// failures, and OAuth token-cache management for re-authentication.
//
// The default transport launches the mcp-remote stdio bridge so existing
// OAuth flows are reused without custom token plumbing.
package official

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/version"
)

const (
	defaultReadTimeout = 30 * time.Second
	defaultHTTPTimeout = 30 * time.Second

	clientName = "oh-my-linear"
)

// SessionManager holds exactly one live upstream session. Calls are
// serialized by the session mutex: the underlying session is not safe for
// concurrent use, and serialization is simpler than per-call cloning.
type SessionManager struct {
	transport string
	url       string
	headers   map[string]string
	command   string
	args      []string
	env       map[string]string
	cwd       string

	readTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time

	// connect is swappable for tests.
	connect func(ctx context.Context) (toolSession, error)

	mu      sync.Mutex
	session toolSession

	failureCount    int
	lastError       string
	lastFailureAt   time.Time
	lastConnectedAt time.Time
}

// toolSession is the slice of the MCP client session the manager uses.
type toolSession interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	Close() error
}

// New builds a SessionManager from configuration. The session is not opened
// until the first call.
func New(cfg *config.Config, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	m := &SessionManager{
		transport:   cfg.Transport,
		url:         cfg.URL,
		headers:     cfg.Headers,
		command:     cfg.Command,
		args:        cfg.Args,
		env:         cfg.Env,
		cwd:         cfg.Cwd,
		readTimeout: defaultReadTimeout,
		log:         log,
		now:         time.Now,
	}
	m.connect = m.dial
	return m
}

func (m *SessionManager) dial(ctx context.Context) (toolSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: version.Version}, nil)

	var transport mcp.Transport
	if m.transport == config.TransportStdio {
		cmd := exec.Command(m.command, m.args...)
		cmd.Env = os.Environ()
		for k, v := range m.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		if m.cwd != "" {
			cmd.Dir = m.cwd
		}
		transport = &mcp.CommandTransport{Command: cmd}
	} else {
		httpClient := &http.Client{Timeout: 0} // streaming; per-call contexts bound the wait
		if len(m.headers) > 0 {
			httpClient.Transport = &headerRoundTripper{base: http.DefaultTransport, headers: m.headers}
		}
		transport = &mcp.StreamableClientTransport{Endpoint: m.url, HTTPClient: httpClient}
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// callTimeout bounds every blocking wait: the transport read timeout plus a
// grace period.
func (m *SessionManager) callTimeout() time.Duration {
	return m.readTimeout + 10*time.Second
}

// ensureConnected opens the session lazily. Caller must hold m.mu.
func (m *SessionManager) ensureConnected(ctx context.Context) error {
	if m.session != nil {
		return nil
	}
	session, err := m.connect(ctx)
	if err != nil {
		return err
	}
	m.session = session
	m.lastConnectedAt = m.now()
	return nil
}

// teardown drops the session so the next call reconnects. Caller must hold
// m.mu.
func (m *SessionManager) teardown() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.logCleanupError("official MCP session cleanup failed", err)
	}
	m.session = nil
}

// logCleanupError demotes the well-known cancel-scope teardown noise to
// debug.
func (m *SessionManager) logCleanupError(msg string, err error) {
	if strings.Contains(err.Error(), "exit cancel scope in a different task") {
		m.log.Debug(msg, "error", err)
		return
	}
	m.log.Warn(msg, "error", err)
}

func (m *SessionManager) recordFailure(err error) {
	m.failureCount++
	m.lastFailureAt = m.now()
	m.lastError = fmt.Sprintf("%T: %v", err, err)
	m.log.Warn("official MCP call failed", "error", err)
}

func (m *SessionManager) recordSuccess() {
	m.failureCount = 0
	m.lastError = ""
}

// CallTool invokes an upstream tool and returns the normalized result. A
// semantic upstream error (isError) is returned unchanged as a ToolError
// with CodeToolError; any other failure gets one reconnect-and-retry before
// surfacing as CodeUnavailable.
func (m *SessionManager) CallTool(name string, arguments map[string]any) (any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		value, err := m.callOnce(name, arguments)
		if err == nil {
			m.recordSuccess()
			return value, nil
		}
		if IsSemantic(err) {
			// Do not degrade semantic tool errors into transport failures.
			return nil, err
		}
		m.recordFailure(err)
		m.teardown()
		lastErr = err
	}
	return nil, &ToolError{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("official MCP call failed for tool %q: %v", name, lastErr),
	}
}

func (m *SessionManager) callOnce(name string, arguments map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout())
	defer cancel()

	if err := m.ensureConnected(ctx); err != nil {
		return nil, err
	}
	result, err := m.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	return normalizeResult(result)
}

// ListTools returns the names of the tools the upstream exposes.
func (m *SessionManager) ListTools() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout())
		err := m.ensureConnected(ctx)
		if err == nil {
			var result *mcp.ListToolsResult
			result, err = m.session.ListTools(ctx, &mcp.ListToolsParams{})
			if err == nil {
				cancel()
				m.recordSuccess()
				names := make([]string, 0, len(result.Tools))
				for _, tool := range result.Tools {
					if tool.Name != "" {
						names = append(names, tool.Name)
					}
				}
				return names, nil
			}
		}
		cancel()
		m.recordFailure(err)
		m.teardown()
		lastErr = err
	}
	return nil, &ToolError{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("official MCP list_tools failed: %v", lastErr),
	}
}

// Connect eagerly opens the session, retrying with exponential backoff. Used
// at startup when the reconnect sentinel is present, so the OAuth flow is
// triggered before the first tool call.
func (m *SessionManager) Connect(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		dialCtx, cancel := context.WithTimeout(ctx, m.callTimeout())
		defer cancel()
		if err := m.ensureConnected(dialCtx); err != nil {
			m.recordFailure(err)
			return err
		}
		return nil
	}, policy)
}

// GetHealth reports connection state for the health tool.
func (m *SessionManager) GetHealth() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := map[string]any{
		"transport":       m.transport,
		"url":             m.url,
		"connected":       m.session != nil,
		"failureCount":    m.failureCount,
		"lastError":       nilIfEmpty(m.lastError),
		"lastFailureAt":   epochOrNil(m.lastFailureAt),
		"lastConnectedAt": epochOrNil(m.lastConnectedAt),
	}
	if m.transport == config.TransportStdio {
		health["command"] = m.command
		health["args"] = m.args
	} else {
		health["hasHeaders"] = len(m.headers) > 0
	}
	return health
}

// Close tears down the session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
}

// normalizeResult converts a tool result into a JSON-compatible value. An
// isError result becomes a semantic ToolError carrying the concatenated
// text. Otherwise structuredContent wins; else text that parses as JSON;
// else the text wrapped as {"text": ...}; else the raw result marshaled.
func normalizeResult(result *mcp.CallToolResult) (any, error) {
	if result.IsError {
		text := extractText(result)
		if text == "" {
			text = "official MCP returned an error"
		}
		return nil, &ToolError{Code: CodeToolError, Message: text}
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	if text := extractText(result); text != "" {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			return parsed, nil
		}
		return map[string]any{"text": text}, nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return result, nil
	}
	var dumped any
	if err := json.Unmarshal(raw, &dumped); err != nil {
		return result, nil
	}
	return dumped, nil
}

func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, block := range result.Content {
		if tc, ok := block.(*mcp.TextContent); ok && tc.Text != "" {
			texts = append(texts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

func epochOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
