package reader

import (
	"sort"
	"strings"
)

// Finder scores. Candidates collect an integer score, highest wins, ties
// break by insertion order. Anything without a substring match is rejected.
const (
	scoreExactID       = 100
	scoreExactName     = 90
	scoreProjectPrefix = 80
	scoreNamePrefix    = 70
	scoreExactSlug     = 70
	scoreTokenPrefix   = 50
	scoreDisplayPrefix = 40
	scoreSubstring     = 10
)

// pick returns the first (insertion order) highest scoring candidate. score
// returns 0 to reject.
func pick[T any](items []T, score func(T) int) (T, bool) {
	var best T
	bestScore := 0
	for _, item := range items {
		if s := score(item); s > bestScore {
			best, bestScore = item, s
		}
	}
	return best, bestScore > 0
}

// FindUser returns the best matching user by name or display name.
func (r *Reader) FindUser(search string) (*User, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(search)
	user, ok := pick(snap.Users.Values(), func(u *User) int {
		name := strings.ToLower(u.Name)
		display := strings.ToLower(u.DisplayName)
		switch {
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreNamePrefix
		case strings.Contains(" "+name, " "+q):
			return scoreTokenPrefix
		case strings.HasPrefix(display, q):
			return scoreDisplayPrefix
		case strings.Contains(name, q) || strings.Contains(display, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return user, nil
}

// FindTeam returns the best matching team by key or name.
func (r *Reader) FindTeam(search string) (*Team, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(search)
	upper := strings.ToUpper(search)
	team, ok := pick(snap.Teams.Values(), func(t *Team) int {
		name := strings.ToLower(t.Name)
		switch {
		case t.Key == upper:
			return scoreExactID
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreNamePrefix
		case strings.Contains(" "+name, " "+q):
			return scoreTokenPrefix
		case strings.Contains(name, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return team, nil
}

// FindProject returns the best matching project by name or slug.
func (r *Reader) FindProject(search string) (*Project, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(search)
	project, ok := pick(snap.Projects.Values(), func(p *Project) int {
		name := strings.ToLower(p.Name)
		slug := strings.ToLower(p.SlugID)
		switch {
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreProjectPrefix
		case slug == q:
			return scoreExactSlug
		case strings.Contains(" "+name, " "+q):
			return scoreTokenPrefix
		case strings.Contains(name, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return project, nil
}

// FindInitiative returns the best matching initiative by name or slug.
func (r *Reader) FindInitiative(search string) (*Initiative, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(search)
	initiative, ok := pick(snap.Initiatives.Values(), func(in *Initiative) int {
		name := strings.ToLower(in.Name)
		switch {
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreNamePrefix
		case strings.ToLower(in.SlugID) == q:
			return scoreExactSlug
		case strings.Contains(" "+name, " "+q):
			return scoreTokenPrefix
		case strings.Contains(name, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return initiative, nil
}

// FindDocument returns the best matching document by title or slug.
func (r *Reader) FindDocument(search string) (*Document, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(search)
	doc, ok := pick(snap.Documents.Values(), func(d *Document) int {
		title := strings.ToLower(d.Title)
		switch {
		case title == q:
			return scoreExactName
		case strings.HasPrefix(title, q):
			return scoreNamePrefix
		case strings.ToLower(d.SlugID) == q:
			return scoreExactSlug
		case strings.Contains(" "+title, " "+q):
			return scoreTokenPrefix
		case strings.Contains(title, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return doc, nil
}

// FindMilestone returns the best matching milestone within a project.
func (r *Reader) FindMilestone(projectID, query string) (*Milestone, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	milestone, ok := pick(snap.Milestones.Values(), func(m *Milestone) int {
		if m.ProjectID != projectID {
			return 0
		}
		name := strings.ToLower(m.Name)
		switch {
		case strings.ToLower(m.ID) == q:
			return scoreExactID
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreNamePrefix
		case strings.Contains(name, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return milestone, nil
}

// FindIssueStatus returns the best matching workflow state within a team.
func (r *Reader) FindIssueStatus(teamID, query string) (*WorkflowState, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	state, ok := pick(snap.States.Values(), func(s *WorkflowState) int {
		if s.TeamID != teamID {
			return 0
		}
		name := strings.ToLower(s.Name)
		switch {
		case strings.ToLower(s.ID) == q:
			return scoreExactID
		case name == q:
			return scoreExactName
		case strings.HasPrefix(name, q):
			return scoreNamePrefix
		case strings.Contains(name, q):
			return scoreSubstring
		}
		return 0
	})
	if !ok {
		return nil, nil
	}
	return state, nil
}

// GetIssueByIdentifier scans for an issue by its "KEY-number" identifier,
// case-insensitively.
func (r *Reader) GetIssueByIdentifier(identifier string) (*Issue, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(identifier)
	for _, issue := range snap.Issues.Values() {
		if strings.ToUpper(issue.Identifier) == upper {
			return issue, nil
		}
	}
	return nil, nil
}

// SearchIssues returns up to limit issues whose title contains query,
// case-insensitively, in insertion order.
func (r *Reader) SearchIssues(query string, limit int) ([]*Issue, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var results []*Issue
	for _, issue := range snap.Issues.Values() {
		if strings.Contains(strings.ToLower(issue.Title), q) {
			results = append(results, issue)
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// GetCommentsForIssue returns an issue's comments sorted ascending by
// createdAt.
func (r *Reader) GetCommentsForIssue(issueID string) ([]*Comment, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var comments []*Comment
	for _, commentID := range snap.CommentsByIssue[issueID] {
		if c, ok := snap.Comments.get(commentID); ok {
			comments = append(comments, c)
		}
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt < comments[j].CreatedAt
	})
	return comments, nil
}

// GetIssuesForUser returns all issues assigned to a user, in insertion
// order.
func (r *Reader) GetIssuesForUser(userID string) ([]*Issue, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var issues []*Issue
	for _, issue := range snap.Issues.Values() {
		if issue.AssigneeID == userID {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// GetCyclesForTeam returns a team's cycles sorted by number descending.
func (r *Reader) GetCyclesForTeam(teamID string) ([]*Cycle, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var cycles []*Cycle
	for _, cycle := range snap.Cycles.Values() {
		if cycle.TeamID == teamID {
			cycles = append(cycles, cycle)
		}
	}
	sort.SliceStable(cycles, func(i, j int) bool {
		return cycles[i].Number > cycles[j].Number
	})
	return cycles, nil
}

// GetDocumentsForProject returns a project's documents in insertion order.
func (r *Reader) GetDocumentsForProject(projectID string) ([]*Document, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var docs []*Document
	for _, doc := range snap.Documents.Values() {
		if doc.ProjectID == projectID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// GetMilestonesForProject returns a project's milestones sorted by sortOrder
// ascending.
func (r *Reader) GetMilestonesForProject(projectID string) ([]*Milestone, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var milestones []*Milestone
	for _, m := range snap.Milestones.Values() {
		if m.ProjectID == projectID {
			milestones = append(milestones, m)
		}
	}
	sort.SliceStable(milestones, func(i, j int) bool {
		return milestones[i].SortOrder < milestones[j].SortOrder
	})
	return milestones, nil
}

// GetUpdatesForProject returns a project's updates sorted by createdAt
// descending.
func (r *Reader) GetUpdatesForProject(projectID string) ([]*ProjectUpdate, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	var updates []*ProjectUpdate
	for _, u := range snap.ProjectUpdates.Values() {
		if u.ProjectID == projectID {
			updates = append(updates, u)
		}
	}
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].CreatedAt > updates[j].CreatedAt
	})
	return updates, nil
}

// GetIssueCountForTeam returns the indexed issue count for a team.
func (r *Reader) GetIssueCountForTeam(teamID string) (int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return 0, err
	}
	return snap.IssueCountsByTeam[teamID], nil
}

// GetIssueCountForProject returns the indexed issue count for a project.
func (r *Reader) GetIssueCountForProject(projectID string) (int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return 0, err
	}
	return snap.IssueCountsByProject[projectID], nil
}

// GetIssueCountForUser returns the indexed issue count for an assignee.
func (r *Reader) GetIssueCountForUser(userID string) (int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return 0, err
	}
	return snap.IssueCountsByUser[userID], nil
}

// GetIssueStateCountsForTeam returns a copy of the per-state-type issue
// counts for a team.
func (r *Reader) GetIssueStateCountsForTeam(teamID string) (map[string]int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return copyCounts(snap.IssueStateCountsByTeam[teamID]), nil
}

// GetIssueStateCountsForProject returns a copy of the per-state-type issue
// counts for a project.
func (r *Reader) GetIssueStateCountsForProject(projectID string) (map[string]int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return copyCounts(snap.IssueStateCountsByProject[projectID]), nil
}

// GetIssueStateCountsForUser returns a copy of the per-state-type issue
// counts for an assignee.
func (r *Reader) GetIssueStateCountsForUser(userID string) (map[string]int, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return copyCounts(snap.IssueStateCountsByUser[userID]), nil
}

func copyCounts(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
