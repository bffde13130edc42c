package reader

import (
	"errors"
	"testing"
)

func TestScopeByEmail(t *testing.T) {
	cfg := testCfg()
	cfg.ScopeAccountEmails = map[string]bool{"alice@example.com": true}
	r := newTestReader(t, cfg, fixtureDB())

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.Teams.len() != 1 {
		t.Fatalf("teams = %d, want only the o1 team", snap.Teams.len())
	}
	if _, ok := snap.Teams.get("t1"); !ok {
		t.Error("t1 must survive the scope")
	}
	if _, ok := snap.Users.get("u2"); ok {
		t.Error("u2 belongs to o2 and must be filtered")
	}

	// Issues follow their team; the foreign-team and orphan issues go.
	for _, id := range []string{"i3", "i4"} {
		if _, ok := snap.Issues.get(id); ok {
			t.Errorf("issue %s must be filtered", id)
		}
	}
	if snap.Issues.len() != 2 {
		t.Errorf("issues = %d, want 2", snap.Issues.len())
	}

	if _, ok := snap.Projects.get("p2"); ok {
		t.Error("p2 is a t2 project and must be filtered")
	}
	if _, ok := snap.States.get("s4"); ok {
		t.Error("s4 is a t2 state and must be filtered")
	}

	// Workspace-level labels survive; team-scoped ones follow their team.
	if _, ok := snap.Labels.get("l1"); !ok {
		t.Error("workspace label l1 must survive")
	}
	if _, ok := snap.Labels.get("l2"); ok {
		t.Error("t2 label l2 must be filtered")
	}

	// Everything hanging off p1 stays.
	if _, ok := snap.Documents.get("d1"); !ok {
		t.Error("d1 belongs to the allowed project")
	}
	if snap.Milestones.len() != 2 || snap.ProjectUpdates.len() != 2 {
		t.Errorf("milestones = %d, updates = %d", snap.Milestones.len(), snap.ProjectUpdates.len())
	}
	if len(snap.CommentsByIssue["i1"]) != 2 {
		t.Errorf("comments for i1 = %v", snap.CommentsByIssue["i1"])
	}
	if _, ok := snap.Initiatives.get("in1"); !ok {
		t.Error("in1 targets the allowed team")
	}
}

func TestScopeByAccountID(t *testing.T) {
	cfg := testCfg()
	cfg.ScopeAccountIDs = map[string]bool{"acc2": true}
	r := newTestReader(t, cfg, fixtureDB())

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if _, ok := snap.Teams.get("t2"); !ok || snap.Teams.len() != 1 {
		t.Errorf("want only t2, teams = %d", snap.Teams.len())
	}
	if snap.Issues.len() != 1 {
		t.Errorf("issues = %d, want just the t2 issue", snap.Issues.len())
	}
	if snap.Comments.len() != 0 {
		t.Error("comments on filtered issues must go")
	}
	if _, ok := snap.Projects.get("p1"); ok {
		t.Error("p1 must be filtered")
	}
	if snap.Documents.len() != 0 {
		t.Error("d1 hangs off the filtered p1")
	}
}

func TestScopeNoMatchingAccount(t *testing.T) {
	cfg := testCfg()
	cfg.ScopeAccountEmails = map[string]bool{"nobody@example.com": true}
	r := newTestReader(t, cfg, fixtureDB())

	_, err := r.Snapshot()
	if !errors.Is(err, errScopeNoAccount) {
		t.Errorf("err = %v, want errScopeNoAccount", err)
	}
	if !r.IsDegraded() {
		t.Error("a failed scope must degrade health")
	}
}

func TestScopeNoMatchingOrg(t *testing.T) {
	cfg := testCfg()
	cfg.ScopeAccountIDs = map[string]bool{"ghost-account": true}
	r := newTestReader(t, cfg, fixtureDB())

	_, err := r.Snapshot()
	if !errors.Is(err, errScopeNoOrg) {
		t.Errorf("err = %v, want errScopeNoOrg", err)
	}
}
