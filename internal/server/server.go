// Package server exposes the gateway as an MCP stdio server: every local
// read handler becomes a tool routed through the router, plus management
// tools for health, cache refresh, re-auth, and a generic upstream proxy.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ohmylinear/oml/internal/official"
	"github.com/ohmylinear/oml/internal/router"
	"github.com/ohmylinear/oml/internal/version"
)

const instructions = "Fast, read-only access to Linear data from the local Linear.app cache. " +
	"Data freshness depends on Linear.app's last sync. " +
	"Write operations are proxied to the official Linear MCP server via call_tool."

// Session is the slice of the upstream session manager the server drives
// directly (eager reconnect at startup, token prep at shutdown).
type Session interface {
	Connect(ctx context.Context) error
	URL() string
}

// Server wires the router into an MCP stdio server.
type Server struct {
	rt      *router.Router
	session Session
	log     *slog.Logger
	mcp     *mcp.Server
}

// New builds the server and registers all tools.
func New(rt *router.Router, session Session, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		rt:      rt,
		session: session,
		log:     log,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "oh-my-linear",
			Version: version.Version,
		}, &mcp.ServerOptions{Instructions: instructions}),
	}
	s.register()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects. On
// SIGTERM the Linear token cache is cleared and the reconnect sentinel
// written so the next start re-runs the OAuth flow before serving.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if official.ConsumeReconnectSentinel() {
		s.log.Info("reconnect sentinel present, connecting upstream eagerly")
		if err := s.session.Connect(ctx); err != nil {
			s.log.Warn("eager upstream connect failed", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		if sig == syscall.SIGTERM {
			s.prepareReauthOnExit()
		}
		cancel()
	}()

	s.log.Info("serving MCP over stdio", "tools", len(readTools)+6)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) prepareReauthOnExit() {
	s.log.Info("sigterm received, clearing token cache and writing reconnect sentinel")
	official.ClearTokenCacheForURL(s.session.URL())
	if err := official.WriteReconnectSentinel(); err != nil {
		s.log.Warn("could not write reconnect sentinel", "error", err)
	}
}

func (s *Server) register() {
	for _, t := range readTools {
		t := t
		s.mcp.AddTool(&mcp.Tool{
			Name:        t.name,
			Description: t.desc,
			InputSchema: t.schema(),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := decodeArgs(req.Params.Arguments)
			if err != nil {
				return errorResult(err), nil
			}
			value, err := s.rt.CallRead(t.name, args)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(value)
		})
	}

	s.mcp.AddTool(&mcp.Tool{
		Name:        "call_tool",
		Description: "Call a tool on the official Linear MCP server (use for writes and anything the local cache cannot answer).",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"tool":      stringProp("Upstream tool name, e.g. 'create_comment'"),
			"arguments": {Type: "object", Description: "Arguments forwarded to the upstream tool"},
		}, "tool"),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArgs(req.Params.Arguments)
		if err != nil {
			return errorResult(err), nil
		}
		name, _ := args["tool"].(string)
		if name == "" {
			return errorResult(fmt.Errorf("call_tool requires a 'tool' argument")), nil
		}
		forwarded, _ := args["arguments"].(map[string]any)
		value, err := s.rt.CallOfficial(name, forwarded)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(value)
	})

	s.addPlainTool("linear_health",
		"Report gateway health: local cache state, upstream session state, and routing coherence.",
		func() any { return s.rt.GetHealth() })
	s.addPlainTool("refresh_cache",
		"Force a reload of the local Linear cache and report its health.",
		func() any { return s.rt.RefreshLocalCache() })
	s.addPlainTool("reauth_linear",
		"Clear cached Linear OAuth tokens and drop the upstream session so the next call re-authenticates.",
		func() any { return s.rt.ReauthOfficial() })
	s.addPlainTool("reauth_notion",
		"Clear cached Notion OAuth tokens.",
		func() any { return s.rt.ReauthNotion() })
	s.addPlainTool("reauth_all",
		"Clear cached OAuth tokens for both Linear and Notion.",
		func() any { return s.rt.ReauthAll() })
}

// addPlainTool registers a zero-argument management tool.
func (s *Server) addPlainTool(name, desc string, fn func() any) {
	s.mcp.AddTool(&mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: objectSchema(nil),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(fn())
	})
}

// decodeArgs normalizes the SDK's argument payload into a map.
func decodeArgs(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case json.RawMessage:
		if len(v) == 0 {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
		return out, nil
	}
}

// jsonResult serializes a handler value as the tool's text content.
func jsonResult(value any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// errorResult surfaces an error as a tool-level failure rather than a
// protocol error, matching upstream server behavior.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
