package handlers

import (
	"sort"

	"github.com/ohmylinear/oml/internal/reader"
)

func issueRow(snap *reader.Snapshot, issue *reader.Issue) map[string]any {
	return map[string]any{
		"identifier": issue.Identifier,
		"title":      issue.Title,
		"priority":   issue.Priority,
		"state":      snap.StateName(issue.StateID),
		"stateType":  snap.StateType(issue.StateID),
		"assignee":   snap.UserName(issue.AssigneeID),
		"dueDate":    issue.DueDate,
	}
}

// listIssues lists issues with optional assignee/team/state/priority
// filters, sorted by priority then updatedAt.
func listIssues(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_issues", args,
		"assignee", "team", "state_type", "priority", "limit"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	empty := map[string]any{"issues": []any{}, "totalCount": 0}

	assigneeID := ""
	if assignee := argString(args, "assignee"); assignee != "" {
		user, err := r.FindUser(assignee)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return empty, nil
		}
		assigneeID = user.ID
	}

	teamID := ""
	if team := argString(args, "team"); team != "" {
		teamObj, err := r.FindTeam(team)
		if err != nil {
			return nil, err
		}
		if teamObj == nil {
			return empty, nil
		}
		teamID = teamObj.ID
	}

	stateType := argString(args, "state_type")
	priority, hasPriority := argInt(args, "priority")
	limit, hasLimit := argInt(args, "limit")

	all := snap.Issues.Values()
	sort.SliceStable(all, func(i, j int) bool {
		pi, pj := all[i].Priority, all[j].Priority
		if pi == 0 {
			pi = 4
		}
		if pj == 0 {
			pj = 4
		}
		if pi != pj {
			return pi < pj
		}
		return all[i].UpdatedAt < all[j].UpdatedAt
	})

	var filtered []*reader.Issue
	for _, issue := range all {
		if assigneeID != "" && issue.AssigneeID != assigneeID {
			continue
		}
		if teamID != "" && issue.TeamID != teamID {
			continue
		}
		if stateType != "" && snap.StateType(issue.StateID) != stateType {
			continue
		}
		if hasPriority && issue.Priority != priority {
			continue
		}
		filtered = append(filtered, issue)
	}

	totalCount := len(filtered)
	page := filtered
	if hasLimit && limit > 0 && limit < len(page) {
		page = page[:limit]
	}

	results := make([]any, 0, len(page))
	for _, issue := range page {
		results = append(results, issueRow(snap, issue))
	}
	return map[string]any{"issues": results, "totalCount": totalCount}, nil
}

// getIssue returns full issue details with comments, by identifier.
func getIssue(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_issue", args, "identifier"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	issue, err := r.GetIssueByIdentifier(argString(args, "identifier"))
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, nil
	}

	comments, err := r.GetCommentsForIssue(issue.ID)
	if err != nil {
		return nil, err
	}
	enriched := make([]any, 0, len(comments))
	for _, comment := range comments {
		enriched = append(enriched, map[string]any{
			"author":    snap.UserName(comment.UserID),
			"body":      comment.Body,
			"createdAt": comment.CreatedAt,
		})
	}

	return map[string]any{
		"identifier":  issue.Identifier,
		"title":       issue.Title,
		"description": issue.Description,
		"priority":    issue.Priority,
		"estimate":    issue.Estimate,
		"state":       snap.StateName(issue.StateID),
		"stateType":   snap.StateType(issue.StateID),
		"assignee":    snap.UserName(issue.AssigneeID),
		"project":     snap.ProjectName(issue.ProjectID),
		"dueDate":     issue.DueDate,
		"createdAt":   issue.CreatedAt,
		"updatedAt":   issue.UpdatedAt,
		"comments":    enriched,
		"url":         "https://linear.app/issue/" + issue.Identifier,
	}, nil
}

// searchIssues does a case-insensitive substring search on issue titles.
func searchIssues(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("search_issues", args, "query", "limit"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	limit, ok := argInt(args, "limit")
	if !ok || limit <= 0 {
		limit = 50
	}
	issues, err := r.SearchIssues(argString(args, "query"), limit)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(issues))
	for _, issue := range issues {
		results = append(results, issueRow(snap, issue))
	}
	return map[string]any{"issues": results, "totalCount": len(results)}, nil
}

// listComments lists an issue's comments with author names.
func listComments(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_comments", args, "issue_id"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	issue, err := r.GetIssueByIdentifier(argString(args, "issue_id"))
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return []any{}, nil
	}
	comments, err := r.GetCommentsForIssue(issue.ID)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(comments))
	for _, comment := range comments {
		results = append(results, map[string]any{
			"id":        comment.ID,
			"author":    snap.UserName(comment.UserID),
			"body":      comment.Body,
			"createdAt": comment.CreatedAt,
			"updatedAt": comment.UpdatedAt,
		})
	}
	return results, nil
}

// listIssueStatuses lists a team's workflow states sorted by position.
func listIssueStatuses(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_issue_statuses", args, "team"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	team, err := r.FindTeam(argString(args, "team"))
	if err != nil {
		return nil, err
	}
	if team == nil {
		return []any{}, nil
	}

	var states []*reader.WorkflowState
	for _, state := range snap.States.Values() {
		if state.TeamID == team.ID {
			states = append(states, state)
		}
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Position < states[j].Position
	})

	results := make([]any, 0, len(states))
	for _, state := range states {
		results = append(results, map[string]any{
			"id":       state.ID,
			"name":     state.Name,
			"type":     state.Type,
			"color":    state.Color,
			"position": state.Position,
		})
	}
	return results, nil
}

// listIssueLabels lists workspace labels plus, optionally, one team's
// labels.
func listIssueLabels(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_issue_labels", args, "team"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	teamID := ""
	if team := argString(args, "team"); team != "" {
		if teamObj, err := r.FindTeam(team); err != nil {
			return nil, err
		} else if teamObj != nil {
			teamID = teamObj.ID
		}
	}

	var labels []*reader.Label
	for _, label := range snap.Labels.Values() {
		if teamID != "" && label.TeamID != "" && label.TeamID != teamID {
			continue
		}
		labels = append(labels, label)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Name < labels[j].Name
	})

	results := make([]any, 0, len(labels))
	for _, label := range labels {
		results = append(results, map[string]any{
			"id":      label.ID,
			"name":    label.Name,
			"color":   label.Color,
			"isGroup": label.IsGroup,
		})
	}
	return results, nil
}
