// Package handlers implements the local read-only tool handlers backed by
// the cache reader. Each handler mirrors the shape of the corresponding
// official Linear MCP tool closely enough to substitute for it.
package handlers

import (
	"fmt"

	"github.com/ohmylinear/oml/internal/reader"
)

// Fallback codes. These never escape the router; they steer its fallback
// decisions.
const (
	CodeUnsupportedTool   = "unsupported_tool"
	CodeDegradedLocal     = "degraded_local"
	CodeUnsupportedFilter = "unsupported_filter"
)

// Fallback asks the router to route the call upstream instead of failing.
type Fallback struct {
	Code   string
	Reason string
}

func (f *Fallback) Error() string { return f.Reason }

func fallbackf(code, format string, args ...any) error {
	return &Fallback{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Func is a local read handler.
type Func func(r *reader.Reader, args map[string]any) (any, error)

// registry maps tool names to their local handlers.
var registry = map[string]Func{
	"list_issues":          listIssues,
	"get_issue":            getIssue,
	"search_issues":        searchIssues,
	"list_comments":        listComments,
	"list_issue_statuses":  listIssueStatuses,
	"list_issue_labels":    listIssueLabels,
	"list_teams":           listTeams,
	"get_team":             getTeam,
	"list_users":           listUsers,
	"get_user":             getUser,
	"list_projects":        listProjects,
	"get_project":          getProject,
	"list_initiatives":     listInitiatives,
	"get_initiative":       getInitiative,
	"list_cycles":          listCycles,
	"list_documents":       listDocuments,
	"get_document":         getDocument,
	"list_milestones":      listMilestones,
	"list_project_updates": listProjectUpdates,
}

// Lookup returns the handler for a tool name, if registered.
func Lookup(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Registered reports whether a tool has a local handler.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns all registered tool names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// Argument helpers. Tool arguments arrive as decoded JSON; numbers are
// float64.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// rejectUnknownArgs raises an unsupported_filter fallback for argument keys
// the local handler cannot honor, so the router reroutes upstream rather
// than silently ignoring a filter.
func rejectUnknownArgs(tool string, args map[string]any, supported ...string) error {
	ok := make(map[string]bool, len(supported))
	for _, key := range supported {
		ok[key] = true
	}
	for key := range args {
		if !ok[key] {
			return fallbackf(CodeUnsupportedFilter,
				"tool %q does not support filter %q in local cache", tool, key)
		}
	}
	return nil
}

// countsCopy copies a state-count map so handlers never hand out snapshot
// internals; nil maps become empty ones.
func countsCopy(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func progressRow(p *reader.Progress) map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"completed": p.CompletedIssueCount,
		"started":   p.StartedIssueCount,
		"unstarted": p.UnstartedIssueCount,
		"total":     p.ScopeCount,
	}
}
