// Package detect classifies Linear's hash-named IndexedDB object stores by
// sampling one record per store and matching required-field predicates.
// Store names change between Linear versions; record shapes do not.
package detect

import (
	"strings"

	"github.com/ohmylinear/oml/internal/idb"
)

// Stores maps entity kinds to the object store name(s) that hold them.
// Users, workflow states, and labels can be split across per-team and
// per-workspace stores; everything else is a singleton.
type Stores struct {
	Issues          string
	Teams           string
	Users           []string
	WorkflowStates  []string
	Comments        string
	Projects        string
	IssueContent    string // Y.js encoded issue descriptions
	Labels          []string
	Initiatives     string
	ProjectStatuses string
	Cycles          string
	Documents       string
	DocumentContent string
	Milestones      string
	ProjectUpdates  string
}

// DetectedKinds reports which of the required entity kinds were found, for
// the reader's degraded-health check.
func (s *Stores) DetectedKinds() map[string]bool {
	kinds := make(map[string]bool)
	if s.Issues != "" {
		kinds["issues"] = true
	}
	if s.Teams != "" {
		kinds["teams"] = true
	}
	if len(s.Users) > 0 {
		kinds["users"] = true
	}
	if len(s.WorkflowStates) > 0 {
		kinds["workflow_states"] = true
	}
	if s.Projects != "" {
		kinds["projects"] = true
	}
	return kinds
}

var stateTypes = map[string]bool{
	"started":   true,
	"unstarted": true,
	"completed": true,
	"canceled":  true,
	"backlog":   true,
}

func hasKeys(rec map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := rec[k]; !ok {
			return false
		}
	}
	return true
}

func isIssue(rec map[string]any) bool {
	return hasKeys(rec, "number", "teamId", "stateId", "title")
}

func isTeam(rec map[string]any) bool {
	if !hasKeys(rec, "key", "name") {
		return false
	}
	key, ok := rec["key"].(string)
	if !ok || key == "" || len(key) > 10 {
		return false
	}
	for _, r := range key {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isUser(rec map[string]any) bool {
	return hasKeys(rec, "name", "displayName", "email")
}

func isWorkflowState(rec map[string]any) bool {
	if !hasKeys(rec, "name", "type", "color", "teamId") {
		return false
	}
	t, _ := rec["type"].(string)
	return stateTypes[t]
}

func isComment(rec map[string]any) bool {
	return hasKeys(rec, "issueId", "userId", "bodyData", "createdAt")
}

func isProject(rec map[string]any) bool {
	return hasKeys(rec, "name", "teamIds", "slugId", "statusId", "memberIds")
}

func isIssueContent(rec map[string]any) bool {
	return hasKeys(rec, "issueId", "contentState")
}

func isLabel(rec map[string]any) bool {
	return hasKeys(rec, "name", "color", "isGroup")
}

func isInitiative(rec map[string]any) bool {
	return hasKeys(rec, "name", "ownerId", "slugId", "frequencyResolution")
}

// isProjectStatus requires the absence of teamId to distinguish project
// statuses from workflow states.
func isProjectStatus(rec map[string]any) bool {
	if !hasKeys(rec, "name", "color", "position", "type", "indefinite") {
		return false
	}
	_, hasTeam := rec["teamId"]
	return !hasTeam
}

func isCycle(rec map[string]any) bool {
	return hasKeys(rec, "number", "teamId", "startsAt", "endsAt")
}

// isDocument requires the absence of number and stateId to distinguish
// documents from issues.
func isDocument(rec map[string]any) bool {
	if !hasKeys(rec, "title", "slugId", "projectId", "sortOrder") {
		return false
	}
	_, hasNumber := rec["number"]
	_, hasState := rec["stateId"]
	return !hasNumber && !hasState
}

func isDocumentContent(rec map[string]any) bool {
	return hasKeys(rec, "documentContentId", "contentData")
}

func isMilestone(rec map[string]any) bool {
	if !hasKeys(rec, "name", "projectId", "sortOrder") {
		return false
	}
	_, hasProgress := rec["currentProgress"]
	_, hasTarget := rec["targetDate"]
	return hasProgress || hasTarget
}

// isProjectUpdate requires body plus a project marker, and the absence of
// issueId so comments never match.
func isProjectUpdate(rec map[string]any) bool {
	if _, ok := rec["body"]; !ok {
		return false
	}
	_, hasProject := rec["projectId"]
	_, hasHealth := rec["health"]
	if !hasProject && !hasHealth {
		return false
	}
	_, hasIssue := rec["issueId"]
	return !hasIssue
}

// Detect samples the first record of each object store in db and classifies
// it. The predicate order below is a deliberate tie-breaker and must not be
// reordered. Stores whose name starts with "_" or contains "_partial" are
// skipped, as are stores that cannot be read.
func Detect(db idb.Database) *Stores {
	result := &Stores{}

	for _, storeName := range db.ObjectStoreNames() {
		if storeName == "" || strings.HasPrefix(storeName, "_") || strings.Contains(storeName, "_partial") {
			continue
		}
		store, err := db.Store(storeName)
		if err != nil {
			continue
		}

		var sample map[string]any
		_ = store.Records(func(rec idb.Record) bool {
			sample = rec.Value
			return false // first record only
		})
		if sample == nil {
			continue
		}

		switch {
		case isIssue(sample) && result.Issues == "":
			result.Issues = storeName
		case isTeam(sample) && result.Teams == "":
			result.Teams = storeName
		case isUser(sample):
			result.Users = appendUnique(result.Users, storeName)
		case isWorkflowState(sample):
			result.WorkflowStates = appendUnique(result.WorkflowStates, storeName)
		case isComment(sample) && result.Comments == "":
			result.Comments = storeName
		case isProject(sample) && result.Projects == "":
			result.Projects = storeName
		case isIssueContent(sample) && result.IssueContent == "":
			result.IssueContent = storeName
		case isLabel(sample):
			result.Labels = appendUnique(result.Labels, storeName)
		case isInitiative(sample) && result.Initiatives == "":
			result.Initiatives = storeName
		case isProjectStatus(sample) && result.ProjectStatuses == "":
			result.ProjectStatuses = storeName
		case isCycle(sample) && result.Cycles == "":
			result.Cycles = storeName
		case isDocument(sample) && result.Documents == "":
			result.Documents = storeName
		case isDocumentContent(sample) && result.DocumentContent == "":
			result.DocumentContent = storeName
		case isMilestone(sample) && result.Milestones == "":
			result.Milestones = storeName
		case isProjectUpdate(sample) && result.ProjectUpdates == "":
			result.ProjectUpdates = storeName
		}
	}

	return result
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
