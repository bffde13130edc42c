package handlers

import (
	"sort"

	"github.com/ohmylinear/oml/internal/reader"
)

// listTeams lists all teams with issue counts, sorted by key.
func listTeams(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_teams", args); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	teams := snap.Teams.Values()
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Key < teams[j].Key })

	results := make([]any, 0, len(teams))
	for _, team := range teams {
		results = append(results, map[string]any{
			"key":        team.Key,
			"name":       team.Name,
			"issueCount": snap.IssueCountsByTeam[team.ID],
		})
	}
	return results, nil
}

// getTeam returns team details with per-state issue counts.
func getTeam(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_team", args, "team"); err != nil {
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
		return nil, nil
	}

	return map[string]any{
		"id":            team.ID,
		"key":           team.Key,
		"name":          team.Name,
		"issueCount":    snap.IssueCountsByTeam[team.ID],
		"issuesByState": countsCopy(snap.IssueStateCountsByTeam[team.ID]),
	}, nil
}

// listUsers lists all users with assigned issue counts, sorted by name.
func listUsers(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_users", args); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	users := snap.Users.Values()
	sort.SliceStable(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	results := make([]any, 0, len(users))
	for _, user := range users {
		results = append(results, map[string]any{
			"id":                 user.ID,
			"name":               user.Name,
			"email":              user.Email,
			"displayName":        user.DisplayName,
			"assignedIssueCount": snap.IssueCountsByUser[user.ID],
		})
	}
	return results, nil
}

// getUser returns user details with per-state assigned issue counts.
func getUser(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_user", args, "name"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	user, err := r.FindUser(argString(args, "name"))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	stateCounts := countsCopy(snap.IssueStateCountsByUser[user.ID])
	total := 0
	for _, n := range stateCounts {
		total += n
	}
	return map[string]any{
		"id":                 user.ID,
		"name":               user.Name,
		"email":              user.Email,
		"displayName":        user.DisplayName,
		"assignedIssueCount": total,
		"issuesByState":      stateCounts,
	}, nil
}

// listInitiatives lists all initiatives sorted by name.
func listInitiatives(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_initiatives", args); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}

	initiatives := snap.Initiatives.Values()
	sort.SliceStable(initiatives, func(i, j int) bool {
		return initiatives[i].Name < initiatives[j].Name
	})

	results := make([]any, 0, len(initiatives))
	for _, in := range initiatives {
		results = append(results, map[string]any{
			"id":     in.ID,
			"name":   in.Name,
			"slugId": in.SlugID,
			"color":  in.Color,
			"status": in.Status,
			"owner":  snap.UserName(in.OwnerID),
		})
	}
	return results, nil
}

// getInitiative returns initiative details by name or slug.
func getInitiative(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("get_initiative", args, "name"); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	in, err := r.FindInitiative(argString(args, "name"))
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, nil
	}

	return map[string]any{
		"id":        in.ID,
		"name":      in.Name,
		"slugId":    in.SlugID,
		"color":     in.Color,
		"status":    in.Status,
		"owner":     snap.UserName(in.OwnerID),
		"teamIds":   in.TeamIDs,
		"createdAt": in.CreatedAt,
		"updatedAt": in.UpdatedAt,
	}, nil
}

// listCycles lists a team's cycles, newest first, with progress rollups.
func listCycles(r *reader.Reader, args map[string]any) (any, error) {
	if err := rejectUnknownArgs("list_cycles", args, "team"); err != nil {
		return nil, err
	}
	team, err := r.FindTeam(argString(args, "team"))
	if err != nil {
		return nil, err
	}
	if team == nil {
		return []any{}, nil
	}

	cycles, err := r.GetCyclesForTeam(team.ID)
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(cycles))
	for _, cycle := range cycles {
		results = append(results, map[string]any{
			"id":          cycle.ID,
			"number":      cycle.Number,
			"startsAt":    cycle.StartsAt,
			"endsAt":      cycle.EndsAt,
			"completedAt": cycle.CompletedAt,
			"progress":    progressRow(cycle.Progress),
		})
	}
	return results, nil
}
