package server

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ohmylinear/oml/internal/handlers"
)

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    map[string]any
		wantErr bool
	}{
		{"nil", nil, map[string]any{}, false},
		{"map passthrough", map[string]any{"team": "ENG"}, map[string]any{"team": "ENG"}, false},
		{"raw json", json.RawMessage(`{"limit":5}`), map[string]any{"limit": float64(5)}, false},
		{"empty raw json", json.RawMessage(``), map[string]any{}, false},
		{"json null", json.RawMessage(`null`), map[string]any{}, false},
		{"invalid json", json.RawMessage(`{bad`), nil, true},
		{"marshalable struct", struct {
			Team string `json:"team"`
		}{"ENG"}, map[string]any{"team": "ENG"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeArgs(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeArgs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeArgs = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestJSONResult(t *testing.T) {
	result, err := jsonResult(map[string]any{"key": "ENG"})
	if err != nil {
		t.Fatalf("jsonResult: %v", err)
	}
	if result.IsError {
		t.Error("IsError must be false")
	}
	text := result.Content[0].(*mcp.TextContent).Text
	if text != `{"key":"ENG"}` {
		t.Errorf("text = %q", text)
	}
}

func TestErrorResult(t *testing.T) {
	result := errorResult(errors.New("boom"))
	if !result.IsError {
		t.Error("IsError must be set")
	}
	if result.Content[0].(*mcp.TextContent).Text != "boom" {
		t.Errorf("text = %q", result.Content[0].(*mcp.TextContent).Text)
	}
}

// The declared tool surface and the handler registry must agree exactly;
// a mismatch would route a declared tool upstream or hide a handler.
func TestReadToolsMatchHandlerRegistry(t *testing.T) {
	declared := make(map[string]bool, len(readTools))
	for _, tool := range readTools {
		if declared[tool.name] {
			t.Errorf("tool %q declared twice", tool.name)
		}
		declared[tool.name] = true
		if !handlers.Registered(tool.name) {
			t.Errorf("tool %q declared but has no local handler", tool.name)
		}
	}
	for _, name := range handlers.Names() {
		if !declared[name] {
			t.Errorf("handler %q has no declared tool", name)
		}
	}
}

func TestReadToolSchemas(t *testing.T) {
	for _, tool := range readTools {
		schema := tool.schema()
		if schema.Type != "object" {
			t.Errorf("%s: schema type = %q", tool.name, schema.Type)
		}
		for _, required := range tool.required {
			if _, ok := schema.Properties[required]; !ok {
				t.Errorf("%s: required arg %q missing from properties", tool.name, required)
			}
		}
		if tool.desc == "" {
			t.Errorf("%s: missing description", tool.name)
		}
	}
}
