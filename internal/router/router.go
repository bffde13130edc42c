// Package router decides, per tool call, whether to serve from the local
// cache or the upstream Linear MCP server, and maintains the write→read
// coherence window that masks upstream read-your-writes lag.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/handlers"
	"github.com/ohmylinear/oml/internal/official"
	"github.com/ohmylinear/oml/internal/reader"
	"github.com/ohmylinear/oml/internal/telemetry"
)

// writeToolPrefixes classify upstream tool names as writes for coherence
// tracking.
var writeToolPrefixes = []string{
	"create_", "update_", "delete_", "archive_", "unarchive_",
	"set_", "add_", "remove_", "move_",
}

// Upstream is the slice of the session manager the router needs.
type Upstream interface {
	CallTool(name string, arguments map[string]any) (any, error)
	GetHealth() map[string]any
	Reauth() map[string]any
}

// Router routes tool calls between local cache handlers and the upstream
// server.
type Router struct {
	reader    *reader.Reader
	official  Upstream
	notionURL string
	window    time.Duration
	log       *slog.Logger
	now       func() time.Time

	// clearTokens is swappable for tests; defaults to the shared
	// mcp-remote token cache cleaner.
	clearTokens func(url string) map[string]any

	mu               sync.Mutex
	remoteReadsUntil time.Time

	reads     metric.Int64Counter
	fallbacks metric.Int64Counter
}

// New builds a Router.
func New(cfg *config.Config, rdr *reader.Reader, up Upstream, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	meter := telemetry.Meter("")
	reads, _ := meter.Int64Counter("oml.router.reads")
	fallbacks, _ := meter.Int64Counter("oml.router.fallbacks")
	return &Router{
		reader:      rdr,
		official:    up,
		notionURL:   cfg.NotionURL,
		window:      cfg.CoherenceWindow,
		log:         log,
		now:         time.Now,
		clearTokens: official.ClearTokenCacheForURL,
		reads:       reads,
		fallbacks:   fallbacks,
	}
}

func (rt *Router) markRecentWrite() {
	rt.mu.Lock()
	rt.remoteReadsUntil = rt.now().Add(rt.window)
	rt.mu.Unlock()
}

func (rt *Router) remoteFirst() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.now().Before(rt.remoteReadsUntil)
}

// isProbableWriteTool reports whether a tool name looks like a write. Local
// read handlers are never writes, whatever their prefix.
func (rt *Router) isProbableWriteTool(name string) bool {
	if handlers.Registered(name) {
		return false
	}
	for _, prefix := range writeToolPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// CallOfficial routes a call unconditionally upstream and, for write tools,
// opens the coherence window.
func (rt *Router) CallOfficial(name string, arguments map[string]any) (any, error) {
	result, err := rt.official.CallTool(name, arguments)
	if err != nil {
		return nil, err
	}
	if rt.isProbableWriteTool(name) {
		rt.markRecentWrite()
	}
	return result, nil
}

// callLocal dispatches to the local handler table.
func (rt *Router) callLocal(name string, arguments map[string]any, allowDegraded bool) (any, error) {
	handler, ok := handlers.Lookup(name)
	if !ok {
		return nil, &handlers.Fallback{
			Code:   handlers.CodeUnsupportedTool,
			Reason: "tool '" + name + "' not implemented in local cache",
		}
	}
	if rt.reader.IsDegraded() && !allowDegraded {
		return nil, &handlers.Fallback{
			Code:   handlers.CodeDegradedLocal,
			Reason: "local cache is degraded",
		}
	}
	return handler(rt.reader, arguments)
}

// CallRead routes a read, preferring local unless a recent write demands
// upstream coherence.
func (rt *Router) CallRead(name string, arguments map[string]any) (any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	rt.reader.EnsureFresh()

	var remoteErr *official.ToolError
	if rt.remoteFirst() {
		rt.count(rt.reads, "remote_first", name)
		result, err := rt.CallOfficial(name, arguments)
		if err == nil {
			return result, nil
		}
		if official.IsSemantic(err) {
			return nil, err
		}
		rt.log.Warn("remote-first read failed, falling back to local", "tool", name, "error", err)
		if te, ok := official.AsToolError(err); ok {
			remoteErr = te
		} else {
			remoteErr = &official.ToolError{Code: official.CodeUnavailable, Message: err.Error()}
		}
	} else {
		rt.count(rt.reads, "local_first", name)
	}

	result, err := rt.callLocal(name, arguments, false)
	if err == nil {
		return result, nil
	}

	var fb *handlers.Fallback
	if !errors.As(err, &fb) {
		// Unexpected local failure: the caller sees upstream behavior,
		// never the local crash.
		rt.log.Error("unexpected local handler error", "tool", name, "error", err)
		rt.count(rt.fallbacks, "local_error", name)
		return rt.CallOfficial(name, arguments)
	}

	if remoteErr != nil {
		if fb.Code == handlers.CodeDegradedLocal {
			rt.log.Warn("returning stale local because remote failed during remote-first window",
				"tool", name)
			rt.count(rt.fallbacks, "stale_local", name)
			return rt.staleLocal(name, arguments)
		}
		return nil, remoteErr
	}

	rt.count(rt.fallbacks, fb.Code, name)
	result, upErr := rt.CallOfficial(name, arguments)
	if upErr == nil {
		return result, nil
	}
	if official.IsSemantic(upErr) {
		return nil, upErr
	}
	if fb.Code == handlers.CodeDegradedLocal {
		// Remote unavailable: a stale local read beats a hard failure.
		rt.log.Warn("returning stale local because remote is unavailable and local is degraded",
			"tool", name)
		rt.count(rt.fallbacks, "stale_local", name)
		return rt.staleLocal(name, arguments)
	}
	return nil, upErr
}

func (rt *Router) staleLocal(name string, arguments map[string]any) (any, error) {
	result, err := rt.callLocal(name, arguments, true)
	if err != nil {
		return nil, err
	}
	return markStale(result), nil
}

// markStale decorates a degraded-local fallback value without mutating the
// original. Mappings get a _metadata key; lists are wrapped.
func markStale(value any) any {
	meta := map[string]any{"stale": true}
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v)+1)
		for k, val := range v {
			out[k] = val
		}
		out["_metadata"] = meta
		return out
	case []any:
		return map[string]any{"results": v, "_metadata": meta}
	default:
		return map[string]any{"result": v, "_metadata": meta}
	}
}

// RefreshLocalCache forces a local reload and reports local health.
func (rt *Router) RefreshLocalCache() map[string]any {
	if err := rt.reader.RefreshCache(true); err != nil {
		rt.log.Warn("forced cache refresh failed", "error", err)
	}
	return rt.reader.GetHealth()
}

// GetHealth merges local, upstream, and coherence state.
func (rt *Router) GetHealth() map[string]any {
	rt.mu.Lock()
	until := rt.remoteReadsUntil
	rt.mu.Unlock()

	var remoteReadUntil float64
	if !until.IsZero() {
		remoteReadUntil = float64(until.UnixNano()) / float64(time.Second)
	}
	return map[string]any{
		"local":                  rt.reader.GetHealth(),
		"official":               rt.official.GetHealth(),
		"remoteReadUntil":        remoteReadUntil,
		"coherenceWindowSeconds": int(rt.window / time.Second),
	}
}

// ReauthOfficial clears the Linear token cache and drops the session.
func (rt *Router) ReauthOfficial() map[string]any {
	return rt.official.Reauth()
}

// ReauthNotion clears the Notion token cache. Notion has no managed session
// here; only its mcp-remote tokens are shared state.
func (rt *Router) ReauthNotion() map[string]any {
	return rt.clearTokens(rt.notionURL)
}

// ReauthAll clears both services' token caches.
func (rt *Router) ReauthAll() map[string]any {
	return map[string]any{
		"linear": rt.ReauthOfficial(),
		"notion": rt.ReauthNotion(),
	}
}

func (rt *Router) count(counter metric.Int64Counter, kind, tool string) {
	if counter == nil {
		return
	}
	counter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("tool", tool),
		))
}
