package editorial

import "testing"

var allActions = []Action{
	ActionStoryCreate,
	ActionStoryRead,
	ActionStoryAssign,
	ActionNoteRaise,
	ActionNoteResolve,
	ActionTaskRead,
	ActionTaskUpdate,
	ActionAuditRead,
}

func TestAllowed_MatchesGrantTable(t *testing.T) {
	for _, role := range AllRoles() {
		granted := make(map[Action]bool, len(actionGrants[role]))
		for _, action := range actionGrants[role] {
			granted[action] = true
		}
		for _, action := range allActions {
			got := Allowed(role, action)
			if got != granted[action] {
				t.Errorf("Allowed(%s, %s) = %v; want %v", role, action, got, granted[action])
			}
		}
	}
}

func TestAllowed_FailClosed(t *testing.T) {
	if Allowed("INTERN", ActionStoryRead) {
		t.Error("unknown role must deny every action")
	}
	if Allowed(RoleAdmin, "story.delete") {
		t.Error("unknown action must deny even for admin")
	}
	if Allowed("", "") {
		t.Error("empty role and action must deny")
	}
}

func TestAllowedTransition_MatchesGrantTable(t *testing.T) {
	stages := AllStages()
	for _, role := range AllRoles() {
		for _, from := range stages {
			for _, to := range stages {
				granted := false
				for _, r := range transitionGrants[transitionEdge{From: from, To: to}] {
					if r == role {
						granted = true
						break
					}
				}
				got := AllowedTransition(role, from, to)
				if got != granted {
					t.Errorf("AllowedTransition(%s, %s, %s) = %v; want %v", role, from, to, got, granted)
				}
			}
		}
	}
}

func TestAllowedTransition_FailClosed(t *testing.T) {
	// a role never grants edges absent from the graph, admin included
	if AllowedTransition(RoleAdmin, StageDraft, StagePublished) {
		t.Error("stage-skipping edge must deny for every role")
	}
	if AllowedTransition("INTERN", StageDraft, StageNeedsReview) {
		t.Error("unknown role must deny every edge")
	}
	if AllowedTransition(RoleAdmin, "LIMBO", StageDraft) {
		t.Error("unknown stage must deny")
	}
}

func TestTransitionGrants_CoverExactlyTheGraph(t *testing.T) {
	// every edge in the stage graph has at least one granted role, and the
	// grant table names no edge outside the graph
	for from, to := range forwardEdges {
		if len(transitionGrants[transitionEdge{From: from, To: to}]) == 0 {
			t.Errorf("forward edge %s->%s has no granted roles", from, to)
		}
	}
	for from, to := range rejectionEdges {
		if len(transitionGrants[transitionEdge{From: from, To: to}]) == 0 {
			t.Errorf("rejection edge %s->%s has no granted roles", from, to)
		}
	}
	for from, to := range unpublishEdges {
		if len(transitionGrants[transitionEdge{From: from, To: to}]) == 0 {
			t.Errorf("unpublish edge %s->%s has no granted roles", from, to)
		}
	}
	for edge := range transitionGrants {
		if !IsKnownEdge(edge.From, edge.To) {
			t.Errorf("grant table names edge %s->%s which is not in the stage graph", edge.From, edge.To)
		}
	}
}

func TestRoleHierarchy(t *testing.T) {
	if !RoleAtLeast(RoleAdmin, RoleEditor) {
		t.Error("admin must rank at or above editor")
	}
	if !RoleAtLeast(RoleEditor, RoleEditor) {
		t.Error("a role must rank at or above itself")
	}
	if RoleAtLeast(RoleJournalist, RoleReviewer) {
		t.Error("journalist must not rank at or above reviewer")
	}
	if RoleAtLeast("INTERN", RoleJournalist) {
		t.Error("unknown role must fail every hierarchy check")
	}
	if RoleRank("INTERN") != 0 {
		t.Error("unknown role must rank 0")
	}
}
