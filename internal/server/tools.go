package server

import "github.com/google/jsonschema-go/jsonschema"

// readTool declares one locally-served read tool and its argument surface.
type readTool struct {
	name     string
	desc     string
	args     []toolArg
	required []string
}

type toolArg struct {
	name string
	typ  string
	desc string
}

func (t readTool) schema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(t.args))
	for _, a := range t.args {
		props[a.name] = &jsonschema.Schema{Type: a.typ, Description: a.desc}
	}
	return objectSchema(props, t.required...)
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func stringProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

// readTools is the locally-served tool surface. Names and argument keys must
// match the handler registry; the router falls back upstream for anything
// else.
var readTools = []readTool{
	{
		name: "list_issues",
		desc: "List issues from the local cache with optional filters.",
		args: []toolArg{
			{"assignee", "string", "Filter by assignee name, display name, or email"},
			{"team", "string", "Filter by team key or name"},
			{"state_type", "string", "Filter by state type: triage, backlog, unstarted, started, completed, canceled"},
			{"priority", "integer", "Filter by priority (1=urgent, 2=high, 3=normal, 4=low)"},
			{"limit", "integer", "Maximum number of issues to return (default 50)"},
		},
	},
	{
		name:     "get_issue",
		desc:     "Get issue details by identifier (e.g. 'ENG-123').",
		args:     []toolArg{{"identifier", "string", "Issue identifier such as 'ENG-123'"}},
		required: []string{"identifier"},
	},
	{
		name: "search_issues",
		desc: "Search issues by title and description text.",
		args: []toolArg{
			{"query", "string", "Search text"},
			{"limit", "integer", "Maximum number of results (default 50)"},
		},
		required: []string{"query"},
	},
	{
		name:     "list_comments",
		desc:     "List comments for a specific issue, oldest first.",
		args:     []toolArg{{"issue_id", "string", "Issue identifier such as 'ENG-123'"}},
		required: []string{"issue_id"},
	},
	{
		name:     "list_issue_statuses",
		desc:     "List available issue statuses for a team.",
		args:     []toolArg{{"team", "string", "Team key or name"}},
		required: []string{"team"},
	},
	{
		name: "list_issue_labels",
		desc: "List available issue labels, workspace-wide or for one team.",
		args: []toolArg{{"team", "string", "Team key or name (optional)"}},
	},
	{
		name: "list_teams",
		desc: "List all teams with issue counts.",
	},
	{
		name:     "get_team",
		desc:     "Get team details by key or name.",
		args:     []toolArg{{"team", "string", "Team key or name"}},
		required: []string{"team"},
	},
	{
		name: "list_users",
		desc: "List all users in the workspace.",
	},
	{
		name:     "get_user",
		desc:     "Get user details by name, display name, or email.",
		args:     []toolArg{{"name", "string", "User name, display name, or email"}},
		required: []string{"name"},
	},
	{
		name: "list_projects",
		desc: "List all projects with issue counts, optionally filtered by team.",
		args: []toolArg{{"team", "string", "Team key or name (optional)"}},
	},
	{
		name:     "get_project",
		desc:     "Get project details by name.",
		args:     []toolArg{{"name", "string", "Project name (partial match)"}},
		required: []string{"name"},
	},
	{
		name: "list_initiatives",
		desc: "List all initiatives.",
	},
	{
		name:     "get_initiative",
		desc:     "Get initiative details by name or slug.",
		args:     []toolArg{{"name", "string", "Initiative name or slug"}},
		required: []string{"name"},
	},
	{
		name:     "list_cycles",
		desc:     "List cycles for a team, newest first.",
		args:     []toolArg{{"team", "string", "Team key or name"}},
		required: []string{"team"},
	},
	{
		name: "list_documents",
		desc: "List documents, optionally filtered by project, newest first.",
		args: []toolArg{{"project", "string", "Project name (optional)"}},
	},
	{
		name:     "get_document",
		desc:     "Get document details by title or slug.",
		args:     []toolArg{{"name", "string", "Document title or slug"}},
		required: []string{"name"},
	},
	{
		name:     "list_milestones",
		desc:     "List milestones for a project with progress rollups.",
		args:     []toolArg{{"project", "string", "Project name"}},
		required: []string{"project"},
	},
	{
		name:     "list_project_updates",
		desc:     "List updates for a project, newest first.",
		args:     []toolArg{{"project", "string", "Project name"}},
		required: []string{"project"},
	},
}
