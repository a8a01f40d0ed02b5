package editorial

import "github.com/pkg/errors"

var (
	// Caller-facing error taxonomy. Every service method returns one of
	// these as its cause; classify with errors.Is, never string matching.
	ErrForbidden         = errors.New("actor role is not allowed to perform this action")
	ErrBlocked           = errors.New("story is blocked by unresolved revision notes")
	ErrInvalidTransition = errors.New("requested stage is not reachable from the current stage")
	ErrNotFound          = errors.New("record not found")
	// ErrConflict: a concurrent transition on the same story won the race.
	// Safe to retry once with freshly read state.
	ErrConflict = errors.New("concurrent transition conflict")
	// ErrStoreUnavailable: transient store failure. The engine retries a
	// bounded number of times before surfacing it.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrParamInvalid     = errors.New("invalid parameters")
)

// IsRetryable reports whether the caller may retry the failed call.
// ErrConflict is retryable once with fresh state; ErrStoreUnavailable has
// already exhausted the engine's own retry budget but remains transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	return errors.Is(causeErr, ErrConflict) || errors.Is(causeErr, ErrStoreUnavailable)
}

// Stage is a discrete position of a story in the editorial pipeline.
type Stage = string

const (
	StageDraft         Stage = "DRAFT"
	StageNeedsReview   Stage = "NEEDS_REVIEW"
	StageNeedsApproval Stage = "NEEDS_APPROVAL"
	StageApproved      Stage = "APPROVED"
	StageTranslated    Stage = "TRANSLATED"
	StagePublished     Stage = "PUBLISHED"
)

// stageOrder fixes the forward order of the pipeline. Lower index means
// earlier stage; used to tell forward edges from backward ones.
var stageOrder = map[Stage]int{
	StageDraft:         0,
	StageNeedsReview:   1,
	StageNeedsApproval: 2,
	StageApproved:      3,
	StageTranslated:    4,
	StagePublished:     5,
}

// forwardEdges: each stage maps to the single next stage. No skipping.
var forwardEdges = map[Stage]Stage{
	StageDraft:         StageNeedsReview,
	StageNeedsReview:   StageNeedsApproval,
	StageNeedsApproval: StageApproved,
	StageApproved:      StageTranslated,
	StageTranslated:    StagePublished,
}

// rejectionEdges: backward edges that send work back and always open a
// RevisionNote carrying the rejection reason.
var rejectionEdges = map[Stage]Stage{
	StageNeedsReview:   StageDraft,
	StageNeedsApproval: StageDraft,
	StageTranslated:    StageApproved,
}

// unpublishEdges: administrative backward edges. They clear publish
// metadata but do not open a RevisionNote.
var unpublishEdges = map[Stage]Stage{
	StagePublished: StageApproved,
}

func IsKnownStage(s Stage) bool {
	_, ok := stageOrder[s]
	return ok
}

// IsForwardEdge reports whether from->to is the pipeline's forward edge
// for the given stage.
func IsForwardEdge(from, to Stage) bool {
	next, ok := forwardEdges[from]
	return ok && next == to
}

func IsRejectionEdge(from, to Stage) bool {
	back, ok := rejectionEdges[from]
	return ok && back == to
}

func IsUnpublishEdge(from, to Stage) bool {
	back, ok := unpublishEdges[from]
	return ok && back == to
}

// IsKnownEdge reports whether from->to exists in the transition graph at
// all. Pairs outside the graph are client errors, not authorization
// denials.
func IsKnownEdge(from, to Stage) bool {
	return IsForwardEdge(from, to) || IsRejectionEdge(from, to) || IsUnpublishEdge(from, to)
}

// Role is the caller's editorial role as resolved by the identity layer.
type Role = string

const (
	RoleJournalist Role = "JOURNALIST"
	RoleTranslator Role = "TRANSLATOR"
	RoleReviewer   Role = "REVIEWER"
	RoleApprover   Role = "APPROVER"
	RoleEditor     Role = "EDITOR"
	RoleAdmin      Role = "ADMIN"
)

// roleRanks orders roles for hierarchy checks. Unknown roles rank 0 and
// fail every at-or-above comparison.
var roleRanks = map[Role]int{
	RoleJournalist: 1,
	RoleTranslator: 1,
	RoleReviewer:   2,
	RoleApprover:   3,
	RoleEditor:     4,
	RoleAdmin:      5,
}

// RoleRank returns the hierarchy rank of a role, 0 for unknown roles.
func RoleRank(role Role) int {
	return roleRanks[role]
}

// RoleAtLeast reports whether role ranks at or above min. Unknown roles
// never pass.
func RoleAtLeast(role Role, min Role) bool {
	r, ok := roleRanks[role]
	if !ok {
		return false
	}
	return r >= roleRanks[min]
}

// Actor is a caller identity handed to the engine by the identity layer.
// The engine trusts it and performs no credential checks of its own.
type Actor struct {
	ID   int64 `json:"id" validate:"gt=0"`
	Role Role  `json:"role" validate:"required"`
}

// TaskType classifies a derived work item.
type TaskType = string

const (
	TaskTypeCreate    TaskType = "CREATE"
	TaskTypeReview    TaskType = "REVIEW"
	TaskTypeApprove   TaskType = "APPROVE"
	TaskTypeTranslate TaskType = "TRANSLATE"
	TaskTypePublish   TaskType = "PUBLISH"
	TaskTypeFollowUp  TaskType = "FOLLOW_UP"
)

type TaskStatus = string

const (
	TaskStatusPending TaskStatus = "PENDING"
	// PENDING_ASSIGNMENT: the deriving stage had no assignee on the story.
	// AssignStoryRole moves the task to PENDING when someone is assigned.
	TaskStatusPendingAssignment TaskStatus = "PENDING_ASSIGNMENT"
	TaskStatusInProgress        TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted         TaskStatus = "COMPLETED"
	TaskStatusCancelled         TaskStatus = "CANCELLED"
	TaskStatusBlocked           TaskStatus = "BLOCKED"
)

// IsTerminalTaskStatus reports whether a task status is final. Only
// non-terminal tasks count against the derivation idempotency check.
func IsTerminalTaskStatus(status TaskStatus) bool {
	return status == TaskStatusCompleted || status == TaskStatusCancelled
}

// NonTerminalTaskStatuses lists every open status, for store queries.
func NonTerminalTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusPendingAssignment,
		TaskStatusInProgress,
		TaskStatusBlocked,
	}
}

type TaskPriority = string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityNormal TaskPriority = "NORMAL"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// Audit actions recorded by the engine.
const (
	AuditActionStoryCreated   = "story.created"
	AuditActionStageChanged   = "story.stage_changed"
	AuditActionStoryAssigned  = "story.assigned"
	AuditActionNoteRaised     = "note.raised"
	AuditActionNoteResolved   = "note.resolved"
	AuditActionNoteUnresolved = "note.unresolved"
	AuditActionTaskCompleted  = "task.completed"
	AuditActionTaskCancelled  = "task.cancelled"
)

// Audit target types.
const (
	TargetTypeStory = "story"
	TargetTypeNote  = "revision_note"
	TargetTypeTask  = "task"
)

// ChangeEvent types relayed through the broadcaster.
const (
	EventStoryCreated      = "story:created"
	EventStoryStageChanged = "story:stage_changed"
	EventStoryAssigned     = "story:assigned"
	EventNoteRaised        = "story:note_raised"
	EventNoteResolved      = "story:note_resolved"
	EventTaskUpdated       = "task:updated"
)

// Action names checked against the authorization matrix for
// non-transition operations.
type Action = string

const (
	ActionStoryCreate = "story.create"
	ActionStoryRead   = "story.read"
	ActionStoryAssign = "story.assign"
	ActionNoteRaise   = "note.raise"
	ActionNoteResolve = "note.resolve"
	ActionTaskRead    = "task.read"
	ActionTaskUpdate  = "task.update"
	ActionAuditRead   = "audit.read"
)
