package reader

import (
	"errors"
	"strings"
)

var (
	errScopeNoAccount = errors.New("account scope configured but no matching userAccountId found")
	errScopeNoOrg     = errors.New("account scope configured but no matching organizationId found")
)

// applyAccountScope restricts the snapshot to organizations belonging to the
// configured account(s). Filtering is conservative: a scope that resolves to
// nothing is a hard error, never a silent passthrough.
func (r *Reader) applyAccountScope(snap *Snapshot) error {
	if len(r.scopeEmails) == 0 && len(r.scopeAccountIDs) == 0 {
		return nil
	}

	allowedAccountIDs := make(map[string]bool, len(r.scopeAccountIDs))
	for id := range r.scopeAccountIDs {
		allowedAccountIDs[id] = true
	}
	if len(r.scopeEmails) > 0 {
		for _, user := range snap.Users.Values() {
			email := strings.ToLower(strings.TrimSpace(user.Email))
			accountID := strings.TrimSpace(user.UserAccountID)
			if r.scopeEmails[email] && accountID != "" {
				allowedAccountIDs[accountID] = true
			}
		}
	}
	if len(allowedAccountIDs) == 0 {
		return errScopeNoAccount
	}

	allowedOrgIDs := make(map[string]bool)
	for _, user := range snap.Users.Values() {
		if allowedAccountIDs[strings.TrimSpace(user.UserAccountID)] {
			if org := strings.TrimSpace(user.OrganizationID); org != "" {
				allowedOrgIDs[org] = true
			}
		}
	}
	if len(allowedOrgIDs) == 0 {
		return errScopeNoOrg
	}

	snap.Users.filter(func(_ string, u *User) bool {
		return allowedOrgIDs[strings.TrimSpace(u.OrganizationID)]
	})
	allowedUserIDs := toSet(snap.Users.ids())

	snap.Teams.filter(func(_ string, t *Team) bool {
		return allowedOrgIDs[strings.TrimSpace(t.OrganizationID)]
	})
	allowedTeamIDs := toSet(snap.Teams.ids())

	snap.States.filter(func(_ string, s *WorkflowState) bool {
		return allowedTeamIDs[s.TeamID]
	})

	snap.Issues.filter(func(_ string, i *Issue) bool {
		return allowedTeamIDs[i.TeamID]
	})
	allowedIssueIDs := toSet(snap.Issues.ids())

	for issueID := range snap.IssueContent {
		if !allowedIssueIDs[issueID] {
			delete(snap.IssueContent, issueID)
		}
	}

	snap.Comments.filter(func(_ string, c *Comment) bool {
		return allowedIssueIDs[c.IssueID]
	})
	snap.CommentsByIssue = make(map[string][]string)
	for _, comment := range snap.Comments.Values() {
		if comment.IssueID != "" {
			snap.CommentsByIssue[comment.IssueID] = append(snap.CommentsByIssue[comment.IssueID], comment.ID)
		}
	}

	snap.Projects.filter(func(_ string, p *Project) bool {
		return projectAllowed(p, allowedTeamIDs, allowedUserIDs)
	})
	allowedProjectIDs := toSet(snap.Projects.ids())

	snap.Labels.filter(func(_ string, l *Label) bool {
		return l.TeamID == "" || allowedTeamIDs[l.TeamID]
	})

	snap.Initiatives.filter(func(_ string, in *Initiative) bool {
		return initiativeAllowed(in, allowedTeamIDs, allowedUserIDs)
	})

	snap.Cycles.filter(func(_ string, c *Cycle) bool {
		return allowedTeamIDs[c.TeamID]
	})

	snap.Documents.filter(func(_ string, d *Document) bool {
		if d.ProjectID != "" {
			return allowedProjectIDs[d.ProjectID]
		}
		return allowedUserIDs[d.CreatorID]
	})

	snap.Milestones.filter(func(_ string, m *Milestone) bool {
		return allowedProjectIDs[m.ProjectID]
	})

	snap.ProjectUpdates.filter(func(_ string, u *ProjectUpdate) bool {
		return allowedProjectIDs[u.ProjectID]
	})

	referencedStatusIDs := make(map[string]bool)
	for _, project := range snap.Projects.Values() {
		if project.StatusID != "" {
			referencedStatusIDs[project.StatusID] = true
		}
	}
	snap.ProjectStatuses.filter(func(id string, _ *ProjectStatus) bool {
		return referencedStatusIDs[id]
	})

	return nil
}

// projectAllowed keeps a project when any of its teams is allowed; projects
// without teams fall back to lead/member membership.
func projectAllowed(p *Project, teams, users map[string]bool) bool {
	hasTeam := false
	for _, teamID := range p.TeamIDs {
		if teamID == "" {
			continue
		}
		hasTeam = true
		if teams[teamID] {
			return true
		}
	}
	if hasTeam {
		return false
	}
	if p.LeadID != "" && users[p.LeadID] {
		return true
	}
	for _, memberID := range p.MemberIDs {
		if memberID != "" && users[memberID] {
			return true
		}
	}
	return false
}

func initiativeAllowed(in *Initiative, teams, users map[string]bool) bool {
	hasTeam := false
	for _, teamID := range in.TeamIDs {
		if teamID == "" {
			continue
		}
		hasTeam = true
		if teams[teamID] {
			return true
		}
	}
	if hasTeam {
		return false
	}
	return in.OwnerID != "" && users[in.OwnerID]
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
