package reader

import (
	"fmt"

	"github.com/ohmylinear/oml/internal/detect"
	"github.com/ohmylinear/oml/internal/idb"
	"github.com/ohmylinear/oml/internal/richtext"
)

// Record field helpers. Raw records come from the IndexedDB decoder as
// map[string]any with float64 numbers; missing or mistyped fields read as
// zero values.

func getStr(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return ""
	}
}

func getInt(rec map[string]any, key string) int {
	if f, ok := rec[key].(float64); ok {
		return int(f)
	}
	return 0
}

func getFloat(rec map[string]any, key string) float64 {
	if f, ok := rec[key].(float64); ok {
		return f
	}
	return 0
}

func getBool(rec map[string]any, key string) bool {
	b, _ := rec[key].(bool)
	return b
}

func getStrs(rec map[string]any, key string) []string {
	arr, ok := rec[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getProgress(rec map[string]any, key string) *Progress {
	m, ok := rec[key].(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return &Progress{
		CompletedIssueCount: getInt(m, "completedIssueCount"),
		StartedIssueCount:   getInt(m, "startedIssueCount"),
		UnstartedIssueCount: getInt(m, "unstartedIssueCount"),
		ScopeCount:          getInt(m, "scopeCount"),
	}
}

// loadStore iterates every record of the named store, appending any store
// level failure to errs. Records without an object value are skipped.
func loadStore(db idb.Database, name string, errs *[]string, fn func(map[string]any)) {
	store, err := db.Store(name)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", name, err))
		return
	}
	err = store.Records(func(rec idb.Record) bool {
		if len(rec.Value) > 0 {
			fn(rec.Value)
		}
		return true
	})
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", name, err))
	}
}

// loadFromDB merges one database's detected stores into the snapshot under
// construction. issue_content read errors are soft: that store is routinely
// absent and must not degrade health.
func (r *Reader) loadFromDB(db idb.Database, stores *detect.Stores, snap *Snapshot, hardErrs, softErrs *[]string) {
	if stores.Teams != "" {
		loadStore(db, stores.Teams, hardErrs, func(rec map[string]any) {
			snap.Teams.replace(getStr(rec, "id"), &Team{
				ID:             getStr(rec, "id"),
				Key:            getStr(rec, "key"),
				Name:           getStr(rec, "name"),
				OrganizationID: getStr(rec, "organizationId"),
			})
		})
	}

	for _, storeName := range stores.Users {
		loadStore(db, storeName, hardErrs, func(rec map[string]any) {
			snap.Users.put(getStr(rec, "id"), &User{
				ID:             getStr(rec, "id"),
				Name:           getStr(rec, "name"),
				DisplayName:    getStr(rec, "displayName"),
				Email:          getStr(rec, "email"),
				OrganizationID: getStr(rec, "organizationId"),
				UserAccountID:  getStr(rec, "userAccountId"),
				Active:         getBool(rec, "active"),
			})
		})
	}

	for _, storeName := range stores.WorkflowStates {
		loadStore(db, storeName, hardErrs, func(rec map[string]any) {
			snap.States.put(getStr(rec, "id"), &WorkflowState{
				ID:       getStr(rec, "id"),
				Name:     getStr(rec, "name"),
				Type:     getStr(rec, "type"),
				Color:    getStr(rec, "color"),
				TeamID:   getStr(rec, "teamId"),
				Position: getFloat(rec, "position"),
			})
		})
	}

	if stores.Issues != "" {
		loadStore(db, stores.Issues, hardErrs, func(rec map[string]any) {
			id := getStr(rec, "id")
			description := getStr(rec, "description")
			if description == "" && rec["descriptionData"] != nil {
				description = richtext.FlattenTree(rec["descriptionData"])
			}
			snap.Issues.replace(id, &Issue{
				ID:          id,
				Identifier:  fmt.Sprintf("%s-%d", snap.TeamKey(getStr(rec, "teamId")), getInt(rec, "number")),
				Title:       getStr(rec, "title"),
				Description: description,
				Number:      getInt(rec, "number"),
				Priority:    getInt(rec, "priority"),
				Estimate:    getFloat(rec, "estimate"),
				TeamID:      getStr(rec, "teamId"),
				StateID:     getStr(rec, "stateId"),
				AssigneeID:  getStr(rec, "assigneeId"),
				ProjectID:   getStr(rec, "projectId"),
				LabelIDs:    getStrs(rec, "labelIds"),
				DueDate:     getStr(rec, "dueDate"),
				CreatedAt:   getStr(rec, "createdAt"),
				UpdatedAt:   getStr(rec, "updatedAt"),
			})
		})
	}

	if stores.Comments != "" {
		loadStore(db, stores.Comments, hardErrs, func(rec map[string]any) {
			commentID := getStr(rec, "id")
			issueID := getStr(rec, "issueId")
			if commentID == "" || issueID == "" {
				return
			}
			snap.Comments.replace(commentID, &Comment{
				ID:        commentID,
				IssueID:   issueID,
				UserID:    getStr(rec, "userId"),
				Body:      richtext.FlattenTree(rec["bodyData"]),
				CreatedAt: getStr(rec, "createdAt"),
				UpdatedAt: getStr(rec, "updatedAt"),
			})
			snap.CommentsByIssue[issueID] = append(snap.CommentsByIssue[issueID], commentID)
		})
	}

	if stores.Projects != "" {
		loadStore(db, stores.Projects, hardErrs, func(rec map[string]any) {
			snap.Projects.replace(getStr(rec, "id"), &Project{
				ID:          getStr(rec, "id"),
				Name:        getStr(rec, "name"),
				Description: getStr(rec, "description"),
				SlugID:      getStr(rec, "slugId"),
				Icon:        getStr(rec, "icon"),
				Color:       getStr(rec, "color"),
				StatusID:    getStr(rec, "statusId"),
				Priority:    getInt(rec, "priority"),
				TeamIDs:     getStrs(rec, "teamIds"),
				MemberIDs:   getStrs(rec, "memberIds"),
				LeadID:      getStr(rec, "leadId"),
				StartDate:   getStr(rec, "startDate"),
				TargetDate:  getStr(rec, "targetDate"),
				CreatedAt:   getStr(rec, "createdAt"),
				UpdatedAt:   getStr(rec, "updatedAt"),
			})
		})
	}

	if stores.IssueContent != "" {
		loadStore(db, stores.IssueContent, softErrs, func(rec map[string]any) {
			issueID := getStr(rec, "issueId")
			contentState := getStr(rec, "contentState")
			if issueID == "" || contentState == "" {
				return
			}
			if extracted := richtext.ExtractEncodedState(contentState); extracted != "" {
				snap.IssueContent[issueID] = extracted
			}
		})
	}

	// Backfill issue descriptions from extracted content.
	for issueID, desc := range snap.IssueContent {
		if issue, ok := snap.Issues.get(issueID); ok && issue.Description == "" {
			issue.Description = desc
		}
	}

	for _, storeName := range stores.Labels {
		loadStore(db, storeName, hardErrs, func(rec map[string]any) {
			snap.Labels.put(getStr(rec, "id"), &Label{
				ID:       getStr(rec, "id"),
				Name:     getStr(rec, "name"),
				Color:    getStr(rec, "color"),
				IsGroup:  getBool(rec, "isGroup"),
				ParentID: getStr(rec, "parentId"),
				TeamID:   getStr(rec, "teamId"),
			})
		})
	}

	if stores.Initiatives != "" {
		loadStore(db, stores.Initiatives, hardErrs, func(rec map[string]any) {
			snap.Initiatives.replace(getStr(rec, "id"), &Initiative{
				ID:        getStr(rec, "id"),
				Name:      getStr(rec, "name"),
				SlugID:    getStr(rec, "slugId"),
				Color:     getStr(rec, "color"),
				Status:    getStr(rec, "status"),
				OwnerID:   getStr(rec, "ownerId"),
				TeamIDs:   getStrs(rec, "teamIds"),
				CreatedAt: getStr(rec, "createdAt"),
				UpdatedAt: getStr(rec, "updatedAt"),
			})
		})
	}

	if stores.Cycles != "" {
		loadStore(db, stores.Cycles, hardErrs, func(rec map[string]any) {
			snap.Cycles.replace(getStr(rec, "id"), &Cycle{
				ID:          getStr(rec, "id"),
				Number:      getInt(rec, "number"),
				TeamID:      getStr(rec, "teamId"),
				StartsAt:    getStr(rec, "startsAt"),
				EndsAt:      getStr(rec, "endsAt"),
				CompletedAt: getStr(rec, "completedAt"),
				Progress:    getProgress(rec, "currentProgress"),
			})
		})
	}

	if stores.Documents != "" {
		loadStore(db, stores.Documents, hardErrs, func(rec map[string]any) {
			docID := getStr(rec, "id")
			updatedAt := getStr(rec, "updatedAt")
			// Documents reappear across databases; lexically greatest
			// updatedAt wins.
			if existing, ok := snap.Documents.get(docID); ok && existing.UpdatedAt >= updatedAt {
				return
			}
			snap.Documents.replace(docID, &Document{
				ID:        docID,
				Title:     getStr(rec, "title"),
				SlugID:    getStr(rec, "slugId"),
				ProjectID: getStr(rec, "projectId"),
				CreatorID: getStr(rec, "creatorId"),
				CreatedAt: getStr(rec, "createdAt"),
				UpdatedAt: updatedAt,
			})
		})
	}

	if r.loadDocumentContent && stores.DocumentContent != "" {
		loadStore(db, stores.DocumentContent, hardErrs, func(rec map[string]any) {
			contentID := getStr(rec, "documentContentId")
			if contentID == "" {
				return
			}
			snap.DocumentContent.replace(contentID, &DocumentContent{
				ID:                getStr(rec, "id"),
				DocumentContentID: contentID,
				ContentData:       getStr(rec, "contentData"),
			})
		})
	}

	if stores.Milestones != "" {
		loadStore(db, stores.Milestones, hardErrs, func(rec map[string]any) {
			snap.Milestones.replace(getStr(rec, "id"), &Milestone{
				ID:         getStr(rec, "id"),
				Name:       getStr(rec, "name"),
				ProjectID:  getStr(rec, "projectId"),
				TargetDate: getStr(rec, "targetDate"),
				SortOrder:  getFloat(rec, "sortOrder"),
				Progress:   getProgress(rec, "currentProgress"),
			})
		})
	}

	if stores.ProjectStatuses != "" {
		loadStore(db, stores.ProjectStatuses, hardErrs, func(rec map[string]any) {
			snap.ProjectStatuses.put(getStr(rec, "id"), &ProjectStatus{
				ID:    getStr(rec, "id"),
				Name:  getStr(rec, "name"),
				Color: getStr(rec, "color"),
				Type:  getStr(rec, "type"),
			})
		})
	}

	if stores.ProjectUpdates != "" {
		loadStore(db, stores.ProjectUpdates, hardErrs, func(rec map[string]any) {
			snap.ProjectUpdates.replace(getStr(rec, "id"), &ProjectUpdate{
				ID:        getStr(rec, "id"),
				Body:      getStr(rec, "body"),
				Health:    getStr(rec, "health"),
				ProjectID: getStr(rec, "projectId"),
				UserID:    getStr(rec, "userId"),
				CreatedAt: getStr(rec, "createdAt"),
				UpdatedAt: getStr(rec, "updatedAt"),
			})
		})
	}
}

// buildIssueIndexes rebuilds the per-team/project/user count indexes from
// the issues currently in the snapshot.
func buildIssueIndexes(snap *Snapshot) {
	snap.IssueCountsByTeam = make(map[string]int)
	snap.IssueCountsByProject = make(map[string]int)
	snap.IssueCountsByUser = make(map[string]int)
	snap.IssueStateCountsByTeam = make(map[string]map[string]int)
	snap.IssueStateCountsByProject = make(map[string]map[string]int)
	snap.IssueStateCountsByUser = make(map[string]map[string]int)

	for _, issue := range snap.Issues.Values() {
		stateType := snap.StateType(issue.StateID)

		bump(snap.IssueCountsByTeam, issue.TeamID)
		bump(snap.IssueCountsByProject, issue.ProjectID)
		bump(snap.IssueCountsByUser, issue.AssigneeID)

		bumpNested(snap.IssueStateCountsByTeam, issue.TeamID, stateType)
		bumpNested(snap.IssueStateCountsByProject, issue.ProjectID, stateType)
		bumpNested(snap.IssueStateCountsByUser, issue.AssigneeID, stateType)
	}
}

func bump(counter map[string]int, key string) {
	if key == "" {
		return
	}
	counter[key]++
}

func bumpNested(counter map[string]map[string]int, key, state string) {
	if key == "" {
		return
	}
	inner, ok := counter[key]
	if !ok {
		inner = make(map[string]int)
		counter[key] = inner
	}
	inner[state]++
}
