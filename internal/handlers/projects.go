package handlers

import (
	"sort"
	"strings"

	"github.com/ohmylinear/oml/internal/reader"
)

// listProjects lists projects with issue counts, optionally filtered by
// team, sorted by name.
func listProjects(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_projects", args, "team"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	teamID := ""
	if team := argString(args, "team"); team != "" {
		teamObj, err := r.FindTeam(team)
		if err != nil {
			return nil, err
		}
		if teamObj == nil {
			return []any{}, nil
		}
		teamID = teamObj.ID
	}

	var projects []*reader.Project
	for _, project := range snap.Projects.Values() {
		if teamID != "" && !containsString(project.TeamIDs, teamID) {
			continue
		}
		projects = append(projects, project)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})

	results := make([]any, 0, len(projects))
	for _, project := range projects {
		results = append(results, map[string]any{
			"name":       project.Name,
			"state":      project.State,
			"issueCount": snap.IssueCountsByProject[project.ID],
			"startDate":  project.StartDate,
			"targetDate": project.TargetDate,
		})
	}
	return results, nil
}

// getProject returns project details by name (partial match) with per-state
// issue counts.
func getProject(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_project", args, "name"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(argString(args, "name"))
	var project *reader.Project
	for _, p := range snap.Projects.Values() {
		if strings.Contains(strings.ToLower(p.Name), name) {
			project = p
			break
		}
	}
	if project == nil {
		return nil, nil
	}

	return map[string]any{
		"id":            project.ID,
		"name":          project.Name,
		"description":   project.Description,
		"state":         project.State,
		"startDate":     project.StartDate,
		"targetDate":    project.TargetDate,
		"issueCount":    snap.IssueCountsByProject[project.ID],
		"issuesByState": countsCopy(snap.IssueStateCountsByProject[project.ID]),
	}, nil
}

// listDocuments lists documents, optionally filtered by project, newest
// first.
func listDocuments(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_documents", args, "project"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	projectID := ""
	if project := argString(args, "project"); project != "" {
		projectObj, err := r.FindProject(project)
		if err != nil {
			return nil, err
		}
		if projectObj == nil {
			return []any{}, nil
		}
		projectID = projectObj.ID
	}

	var docs []*reader.Document
	for _, doc := range snap.Documents.Values() {
		if projectID != "" && doc.ProjectID != projectID {
			continue
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt > docs[j].UpdatedAt
	})

	results := make([]any, 0, len(docs))
	for _, doc := range docs {
		results = append(results, map[string]any{
			"id":        doc.ID,
			"title":     doc.Title,
			"slugId":    doc.SlugID,
			"project":   snap.ProjectName(doc.ProjectID),
			"createdAt": doc.CreatedAt,
			"updatedAt": doc.UpdatedAt,
		})
	}
	return results, nil
}

// getDocument returns document details by title or slug.
func getDocument(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_document", args, "name"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	doc, err := r.FindDocument(argString(args, "name"))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	return map[string]any{
		"id":        doc.ID,
		"title":     doc.Title,
		"slugId":    doc.SlugID,
		"project":   snap.ProjectName(doc.ProjectID),
		"creator":   snap.UserName(doc.CreatorID),
		"createdAt": doc.CreatedAt,
		"updatedAt": doc.UpdatedAt,
		"url":       "https://linear.app/document/" + doc.SlugID,
	}, nil
}

// listMilestones lists a project's milestones in sort order with progress
// rollups.
func listMilestones(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_milestones", args, "project"); err != nil {
		return nil, err
	}
	project, err := r.FindProject(argString(args, "project"))
	if err != nil {
		return nil, err
	}
	if project == nil {
		return []any{}, nil
	}

	milestones, err := r.GetMilestonesForProject(project.ID)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(milestones))
	for _, milestone := range milestones {
		results = append(results, map[string]any{
			"id":         milestone.ID,
			"name":       milestone.Name,
			"targetDate": milestone.TargetDate,
			"progress":   progressRow(milestone.Progress),
		})
	}
	return results, nil
}

// listProjectUpdates lists a project's updates, newest first.
func listProjectUpdates(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_project_updates", args, "project"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	project, err := r.FindProject(argString(args, "project"))
	if err != nil {
		return nil, err
	}
	if project == nil {
		return []any{}, nil
	}

	updates, err := r.GetUpdatesForProject(project.ID)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(updates))
	for _, update := range updates {
		results = append(results, map[string]any{
			"id":        update.ID,
			"body":      update.Body,
			"health":    update.Health,
			"author":    snap.UserName(update.UserID),
			"createdAt": update.CreatedAt,
		})
	}
	return results, nil
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
