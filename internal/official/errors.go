package official

import "errors"

// Error codes visible across the router boundary.
const (
	// CodeToolError marks a semantic error the upstream returned as a
	// successful RPC with isError set. Never retried, never masked.
	CodeToolError = "official_tool_error"
	// CodeUnavailable marks a transport failure after the internal retry
	// was exhausted.
	CodeUnavailable = "official_unavailable"
)

// ToolError is a tagged upstream failure.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// AsToolError unwraps err to a *ToolError when possible.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsSemantic reports whether err is a semantic upstream tool error that must
// be propagated unchanged.
func IsSemantic(err error) bool {
	te, ok := AsToolError(err)
	return ok && te.Code == CodeToolError
}
