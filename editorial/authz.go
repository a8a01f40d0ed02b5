package editorial

// The authorization matrix is data, not branching logic. Both tables are
// built once at package init and never mutated; callers go through
// Allowed/AllowedTransition and never compare role strings themselves.
// Unknown roles, actions, and edges deny.

type transitionEdge struct {
	From Stage
	To   Stage
}

// actionGrants lists, per role, the generic actions the role may perform.
var actionGrants = map[Role][]Action{
	RoleJournalist: {
		ActionStoryCreate,
		ActionStoryRead,
		ActionNoteRaise,
		ActionNoteResolve, // further narrowed to own stories, see revision.go
		ActionTaskRead,
		ActionTaskUpdate,
	},
	RoleTranslator: {
		ActionStoryRead,
		ActionTaskRead,
		ActionTaskUpdate,
	},
	RoleReviewer: {
		ActionStoryCreate,
		ActionStoryRead,
		ActionNoteRaise,
		ActionNoteResolve,
		ActionTaskRead,
		ActionTaskUpdate,
	},
	RoleApprover: {
		ActionStoryCreate,
		ActionStoryRead,
		ActionNoteRaise,
		ActionNoteResolve,
		ActionTaskRead,
		ActionTaskUpdate,
	},
	RoleEditor: {
		ActionStoryCreate,
		ActionStoryRead,
		ActionStoryAssign,
		ActionNoteRaise,
		ActionNoteResolve,
		ActionTaskRead,
		ActionTaskUpdate,
		ActionAuditRead,
	},
	RoleAdmin: {
		ActionStoryCreate,
		ActionStoryRead,
		ActionStoryAssign,
		ActionNoteRaise,
		ActionNoteResolve,
		ActionTaskRead,
		ActionTaskUpdate,
		ActionAuditRead,
	},
}

// transitionGrants lists, per edge, the roles that may execute it.
// Rejection and unpublish edges belong to review/approval authority.
var transitionGrants = map[transitionEdge][]Role{
	{StageDraft, StageNeedsReview}:          {RoleJournalist, RoleReviewer, RoleEditor, RoleAdmin},
	{StageNeedsReview, StageNeedsApproval}:  {RoleReviewer, RoleEditor, RoleAdmin},
	{StageNeedsApproval, StageApproved}:     {RoleApprover, RoleEditor, RoleAdmin},
	{StageApproved, StageTranslated}:        {RoleTranslator, RoleEditor, RoleAdmin},
	{StageTranslated, StagePublished}:       {RoleEditor, RoleAdmin},
	{StageNeedsReview, StageDraft}:          {RoleReviewer, RoleApprover, RoleEditor, RoleAdmin},
	{StageNeedsApproval, StageDraft}:        {RoleReviewer, RoleApprover, RoleEditor, RoleAdmin},
	{StageTranslated, StageApproved}:        {RoleApprover, RoleEditor, RoleAdmin},
	{StagePublished, StageApproved}:         {RoleEditor, RoleAdmin},
}

var (
	actionMatrix     map[Role]map[Action]struct{}
	transitionMatrix map[transitionEdge]map[Role]struct{}
)

func init() {
	actionMatrix = make(map[Role]map[Action]struct{}, len(actionGrants))
	for role, actions := range actionGrants {
		set := make(map[Action]struct{}, len(actions))
		for _, action := range actions {
			set[action] = struct{}{}
		}
		actionMatrix[role] = set
	}
	transitionMatrix = make(map[transitionEdge]map[Role]struct{}, len(transitionGrants))
	for edge, roles := range transitionGrants {
		set := make(map[Role]struct{}, len(roles))
		for _, role := range roles {
			set[role] = struct{}{}
		}
		transitionMatrix[edge] = set
	}
}

// Allowed reports whether the role may perform the generic action.
// Fail-closed: unknown roles and unknown actions deny.
func Allowed(role Role, action Action) bool {
	actions, ok := actionMatrix[role]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// AllowedTransition reports whether the role may execute the from->to
// stage transition. Edges not in the table deny for every role.
func AllowedTransition(role Role, from, to Stage) bool {
	roles, ok := transitionMatrix[transitionEdge{From: from, To: to}]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// AllRoles returns every role the matrix knows about. Used by tests to
// assert the matrix exhaustively.
func AllRoles() []Role {
	return []Role{RoleJournalist, RoleTranslator, RoleReviewer, RoleApprover, RoleEditor, RoleAdmin}
}

// AllStages returns every stage in forward order.
func AllStages() []Stage {
	return []Stage{StageDraft, StageNeedsReview, StageNeedsApproval, StageApproved, StageTranslated, StagePublished}
}
