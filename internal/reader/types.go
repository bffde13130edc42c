package reader

import "time"

// Entities are denormalized plain records keyed by string ids. Cross-entity
// relations stay id-valued and resolve through the snapshot's tables; no
// entity holds a pointer to another. All timestamps are the ISO-8601 strings
// Linear stores, which compare correctly as strings.

type Team struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId,omitempty"`
}

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DisplayName    string `json:"displayName,omitempty"`
	Email          string `json:"email,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	UserAccountID  string `json:"userAccountId,omitempty"`
	Active         bool   `json:"active"`
}

type WorkflowState struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"` // started, unstarted, completed, canceled, backlog
	Color    string  `json:"color,omitempty"`
	TeamID   string  `json:"teamId,omitempty"`
	Position float64 `json:"position"`
}

type Issue struct {
	ID          string   `json:"id"`
	Identifier  string   `json:"identifier"` // derived "{teamKey}-{number}", never read from the record
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Number      int      `json:"number"`
	Priority    int      `json:"priority"` // 0 = none, 1 = urgent … 4 = low
	Estimate    float64  `json:"estimate,omitempty"`
	TeamID      string   `json:"teamId,omitempty"`
	StateID     string   `json:"stateId,omitempty"`
	AssigneeID  string   `json:"assigneeId,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	IssueID   string `json:"issueId"`
	UserID    string `json:"userId,omitempty"`
	Body      string `json:"body"` // flattened plain text
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SlugID      string   `json:"slugId,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Color       string   `json:"color,omitempty"`
	State       string   `json:"state,omitempty"` // resolved from the project status, never the raw record
	StatusID    string   `json:"statusId,omitempty"`
	Priority    int      `json:"priority"`
	TeamIDs     []string `json:"teamIds,omitempty"`
	MemberIDs   []string `json:"memberIds,omitempty"`
	LeadID      string   `json:"leadId,omitempty"`
	StartDate   string   `json:"startDate,omitempty"`
	TargetDate  string   `json:"targetDate,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

type Label struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	IsGroup  bool   `json:"isGroup"`
	ParentID string `json:"parentId,omitempty"`
	TeamID   string `json:"teamId,omitempty"` // empty means workspace-level
}

type Initiative struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	SlugID    string   `json:"slugId,omitempty"`
	Color     string   `json:"color,omitempty"`
	Status    string   `json:"status,omitempty"`
	OwnerID   string   `json:"ownerId,omitempty"`
	TeamIDs   []string `json:"teamIds,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// Progress carries cycle/milestone rollup counters as Linear stores them.
type Progress struct {
	CompletedIssueCount int `json:"completedIssueCount"`
	StartedIssueCount   int `json:"startedIssueCount"`
	UnstartedIssueCount int `json:"unstartedIssueCount"`
	ScopeCount          int `json:"scopeCount"`
}

type Cycle struct {
	ID          string    `json:"id"`
	Number      int       `json:"number"`
	TeamID      string    `json:"teamId,omitempty"`
	StartsAt    string    `json:"startsAt,omitempty"`
	EndsAt      string    `json:"endsAt,omitempty"`
	CompletedAt string    `json:"completedAt,omitempty"`
	Progress    *Progress `json:"currentProgress,omitempty"`
}

type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SlugID    string `json:"slugId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	CreatorID string `json:"creatorId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type DocumentContent struct {
	ID                string `json:"id,omitempty"`
	DocumentContentID string `json:"documentContentId"`
	ContentData       string `json:"contentData,omitempty"`
}

type Milestone struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ProjectID  string    `json:"projectId,omitempty"`
	TargetDate string    `json:"targetDate,omitempty"`
	SortOrder  float64   `json:"sortOrder"`
	Progress   *Progress `json:"currentProgress,omitempty"`
}

type ProjectUpdate struct {
	ID        string `json:"id"`
	Body      string `json:"body,omitempty"`
	Health    string `json:"health,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type ProjectStatus struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Snapshot is one fully-loaded, denormalized view of the local store. It is
// immutable once installed; the reader swaps the whole value on reload.
type Snapshot struct {
	Teams           *table[*Team]
	Users           *table[*User]
	States          *table[*WorkflowState]
	Issues          *table[*Issue]
	Comments        *table[*Comment]
	Projects        *table[*Project]
	Labels          *table[*Label]
	Initiatives     *table[*Initiative]
	Cycles          *table[*Cycle]
	Documents       *table[*Document]
	DocumentContent *table[*DocumentContent]
	Milestones      *table[*Milestone]
	ProjectUpdates  *table[*ProjectUpdate]
	ProjectStatuses *table[*ProjectStatus]

	IssueContent    map[string]string   // issueId -> extracted description
	CommentsByIssue map[string][]string // issueId -> comment ids, insertion order

	IssueCountsByTeam    map[string]int
	IssueCountsByProject map[string]int
	IssueCountsByUser    map[string]int

	IssueStateCountsByTeam    map[string]map[string]int
	IssueStateCountsByProject map[string]map[string]int
	IssueStateCountsByUser    map[string]map[string]int

	LoadedAt time.Time
}

func newSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		Teams:           newTable[*Team](),
		Users:           newTable[*User](),
		States:          newTable[*WorkflowState](),
		Issues:          newTable[*Issue](),
		Comments:        newTable[*Comment](),
		Projects:        newTable[*Project](),
		Labels:          newTable[*Label](),
		Initiatives:     newTable[*Initiative](),
		Cycles:          newTable[*Cycle](),
		Documents:       newTable[*Document](),
		DocumentContent: newTable[*DocumentContent](),
		Milestones:      newTable[*Milestone](),
		ProjectUpdates:  newTable[*ProjectUpdate](),
		ProjectStatuses: newTable[*ProjectStatus](),

		IssueContent:    make(map[string]string),
		CommentsByIssue: make(map[string][]string),

		IssueCountsByTeam:    make(map[string]int),
		IssueCountsByProject: make(map[string]int),
		IssueCountsByUser:    make(map[string]int),

		IssueStateCountsByTeam:    make(map[string]map[string]int),
		IssueStateCountsByProject: make(map[string]map[string]int),
		IssueStateCountsByUser:    make(map[string]map[string]int),

		LoadedAt: now,
	}
}

func (s *Snapshot) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LoadedAt) > ttl
}

// StateType resolves an issue's state id to one of the five workflow state
// types, or "unknown".
func (s *Snapshot) StateType(stateID string) string {
	if st, ok := s.States.get(stateID); ok && st.Type != "" {
		return st.Type
	}
	return "unknown"
}

// StateName resolves a state id to its display name, or "Unknown".
func (s *Snapshot) StateName(stateID string) string {
	if st, ok := s.States.get(stateID); ok && st.Name != "" {
		return st.Name
	}
	return "Unknown"
}

// TeamKey resolves a team id to its short key, or "???".
func (s *Snapshot) TeamKey(teamID string) string {
	if t, ok := s.Teams.get(teamID); ok && t.Key != "" {
		return t.Key
	}
	return "???"
}

// UserName resolves a user id to a display string. Empty ids mean the issue
// is unassigned.
func (s *Snapshot) UserName(userID string) string {
	if userID == "" {
		return "Unassigned"
	}
	u, ok := s.Users.get(userID)
	if !ok {
		return "Unknown"
	}
	if u.Name != "" {
		return u.Name
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return "Unknown"
}

// ProjectName resolves a project id to its name, or "".
func (s *Snapshot) ProjectName(projectID string) string {
	if projectID == "" {
		return ""
	}
	if p, ok := s.Projects.get(projectID); ok {
		return p.Name
	}
	return ""
}

// LabelName resolves a label id to its name, or "".
func (s *Snapshot) LabelName(labelID string) string {
	if labelID == "" {
		return ""
	}
	if l, ok := s.Labels.get(labelID); ok {
		return l.Name
	}
	return ""
}
