package editorial

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validatorUtil = validator.New()

// pointer helpers for optional param fields
func String(s string) *string { return &s }
func Bool(b bool) *bool       { return &b }
func Int64(i int64) *int64    { return &i }

// EditorialService is the engine's public surface. Every mutating call
// takes the acting identity, is authorized against the matrix, executes
// transactionally, is audited, and emits a best-effort change event.
type EditorialService interface {
	// CreateStory saves a first draft at DRAFT and derives the author's
	// CREATE task.
	CreateStory(ctx context.Context, params *CreateStoryParams) (*Story, error)
	GetStory(ctx context.Context, storyID int64) (*Story, error)
	ListStories(ctx context.Context, params *QueryStoryParams) ([]*Story, error)
	CountStories(ctx context.Context, params *QueryStoryParams) (int64, error)

	// TransitionStory moves a story along one edge of the stage graph.
	// Stage write, rejection note, derived tasks and the audit entry
	// commit atomically; the change event is dispatched after commit.
	// Errors: ErrNotFound, ErrInvalidTransition (edge not in the graph),
	// ErrForbidden (role lacks the edge), ErrBlocked (unresolved notes,
	// ids via BlockedNoteIDs), ErrConflict (lost a concurrent race),
	// ErrStoreUnavailable (retries exhausted).
	TransitionStory(ctx context.Context, params *TransitionStoryParams) (*TransitionResult, error)

	// AssignStoryRole sets the story's reviewer or approver and claims the
	// matching PENDING_ASSIGNMENT task if one is open.
	AssignStoryRole(ctx context.Context, params *AssignStoryRoleParams) error

	RaiseRevisionNote(ctx context.Context, params *RaiseRevisionNoteParams) (*RevisionNote, error)
	ResolveRevisionNote(ctx context.Context, params *ResolveNoteParams) error
	UnresolveRevisionNote(ctx context.Context, params *ResolveNoteParams) error
	GetRevisionNotes(ctx context.Context, storyID int64) ([]*RevisionNote, error)
	// CanAdvance reports whether any unresolved note raised at fromStage
	// still blocks the story. The stage machine consults the same check.
	CanAdvance(ctx context.Context, storyID int64, fromStage Stage) (bool, error)

	ListTasksFor(ctx context.Context, actor Actor, page *Pager) ([]*Task, error)
	CompleteTask(ctx context.Context, params *TaskStatusParams) error
	CancelTask(ctx context.Context, params *TaskStatusParams) error

	ListAuditEntries(ctx context.Context, actor Actor, filter *AuditFilter) ([]*AuditEntry, error)
	CountAuditEntries(ctx context.Context, actor Actor, filter *AuditFilter) (int64, error)
}

// Identity resolves a request into an acting identity. The engine trusts
// the result and performs no credential checks itself.
type Identity interface {
	Resolve(ctx context.Context) (*Actor, error)
}

// StaticIdentity always resolves to a fixed actor; for embeddings that do
// their own authentication, and for tests.
type StaticIdentity struct {
	Actor Actor
}

func (s StaticIdentity) Resolve(ctx context.Context) (*Actor, error) {
	if err := validatorUtil.Struct(s.Actor); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "StaticIdentity holds an invalid actor, err: %v", err)
	}
	actor := s.Actor
	return &actor, nil
}

// Story is the engine's view of a content unit.
type Story struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Stage              Stage  `json:"stage"`
	Language           string `json:"language"`
	AuthorID           int64  `json:"author_id"`
	AssignedReviewerID *int64 `json:"assigned_reviewer_id"`
	AssignedApproverID *int64 `json:"assigned_approver_id"`
	PublishedAt        *int64 `json:"published_at"`
	PublishedByID      *int64 `json:"published_by_id"`
	CategoryID         int64  `json:"category_id"`
	Urgent             bool   `json:"urgent"`
	NeedsFollowUp      bool   `json:"needs_follow_up"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

type RevisionNote struct {
	ID           int64  `json:"id"`
	StoryID      int64  `json:"story_id"`
	Stage        Stage  `json:"stage"`
	AuthorID     int64  `json:"author_id"`
	Content      string `json:"content"`
	Resolved     bool   `json:"resolved"`
	ResolvedByID *int64 `json:"resolved_by_id"`
	ResolvedAt   *int64 `json:"resolved_at"`
	CreatedAt    int64  `json:"created_at"`
}

type Task struct {
	ID             int64        `json:"id"`
	Type           TaskType     `json:"type"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	AssigneeID     *int64       `json:"assignee_id"`
	RelatedStoryID *int64       `json:"related_story_id"`
	Language       *string      `json:"language"`
	DueDate        *int64       `json:"due_date"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
}

type AuditEntry struct {
	ID         int64     `json:"id"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   int64     `json:"target_id"`
	Metadata   *Metadata `json:"metadata"`
	CreatedAt  int64     `json:"created_at"`
}

type CreateStoryParams struct {
	Actor              Actor  `json:"actor" validate:"required"`
	Title              string `json:"title" validate:"required"`
	Language           string `json:"language" validate:"required"`
	CategoryID         int64  `json:"category_id"`
	Urgent             bool   `json:"urgent"`
	NeedsFollowUp      bool   `json:"needs_follow_up"`
	AssignedReviewerID *int64 `json:"assigned_reviewer_id"`
	AssignedApproverID *int64 `json:"assigned_approver_id"`
}

type TransitionStoryParams struct {
	StoryID int64 `json:"story_id" validate:"gt=0"`
	ToStage Stage `json:"to_stage" validate:"required"`
	Actor   Actor `json:"actor" validate:"required"`
	// Reason becomes the RevisionNote content on rejection edges.
	Reason string `json:"reason"`
}

// TransitionResult reports what the committed transition changed.
type TransitionResult struct {
	Story        *Story  `json:"story"`
	FromStage    Stage   `json:"from_stage"`
	CreatedTasks []*Task `json:"created_tasks"`
	// OpenedNote is set when a rejection edge raised a revision note.
	OpenedNote *RevisionNote `json:"opened_note"`
}

// AssignableRole names the story assignment slots.
type AssignableRole = string

const (
	AssignReviewer AssignableRole = "REVIEWER"
	AssignApprover AssignableRole = "APPROVER"
)

type AssignStoryRoleParams struct {
	StoryID    int64          `json:"story_id" validate:"gt=0"`
	Role       AssignableRole `json:"role" validate:"required,oneof=REVIEWER APPROVER"`
	AssigneeID int64          `json:"assignee_id" validate:"gt=0"`
	Actor      Actor          `json:"actor" validate:"required"`
}

type RaiseRevisionNoteParams struct {
	StoryID int64  `json:"story_id" validate:"gt=0"`
	Content string `json:"content" validate:"required"`
	Actor   Actor  `json:"actor" validate:"required"`
}

type ResolveNoteParams struct {
	NoteID int64 `json:"note_id" validate:"gt=0"`
	Actor  Actor `json:"actor" validate:"required"`
}

type TaskStatusParams struct {
	TaskID int64 `json:"task_id" validate:"gt=0"`
	Actor  Actor `json:"actor" validate:"required"`
}

type AuditFilter struct {
	ActorID       *int64  `json:"actor_id"`
	ActionPrefix  *string `json:"action_prefix"`
	TargetType    *string `json:"target_type"`
	TargetID      *int64  `json:"target_id"`
	CreatedAfter  *int64  `json:"created_after"`
	CreatedBefore *int64  `json:"created_before"`
	Page          *Pager  `json:"page"`
}

// BlockedNotesError carries the ids of the unresolved notes that blocked a
// forward transition. It matches ErrBlocked under errors.Is.
type BlockedNotesError struct {
	StoryID int64
	Stage   Stage
	NoteIDs []int64
}

func (e *BlockedNotesError) Error() string {
	return fmt.Sprintf("story %d is blocked at %s by unresolved revision notes %v", e.StoryID, e.Stage, e.NoteIDs)
}

func (e *BlockedNotesError) Unwrap() error {
	return ErrBlocked
}

// BlockedNoteIDs extracts the blocking note ids from a transition error,
// nil when the error is not a blocked transition.
func BlockedNoteIDs(err error) []int64 {
	var blocked *BlockedNotesError
	if errors.As(err, &blocked) {
		return blocked.NoteIDs
	}
	return nil
}

// EditorialServiceImpl wires the engine together.
type EditorialServiceImpl struct {
	repo        Store
	executeLock ExecLock
	broadcaster Broadcaster
	cfg         *Config
}

// NewEditorialService builds the engine. A nil broadcaster disables event
// publication; a nil config uses DefaultConfig.
func NewEditorialService(repo Store, executeLock ExecLock, broadcaster Broadcaster, cfg *Config) (EditorialService, error) {
	if repo == nil {
		return nil, errors.Wrap(ErrParamInvalid, "nil Store")
	}
	if executeLock == nil {
		return nil, errors.Wrap(ErrParamInvalid, "nil ExecLock")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &EditorialServiceImpl{
		repo:        repo,
		executeLock: executeLock,
		broadcaster: broadcaster,
		cfg:         cfg,
	}, nil
}

func storyFromPo(po *StoryPo) *Story {
	return &Story{
		ID:                 po.ID,
		Title:              po.Title,
		Stage:              po.Stage,
		Language:           po.Language,
		AuthorID:           po.AuthorID,
		AssignedReviewerID: po.AssignedReviewerID,
		AssignedApproverID: po.AssignedApproverID,
		PublishedAt:        po.PublishedAt,
		PublishedByID:      po.PublishedByID,
		CategoryID:         po.CategoryID,
		Urgent:             po.Urgent,
		NeedsFollowUp:      po.NeedsFollowUp,
		CreatedAt:          po.CreatedAt,
		UpdatedAt:          po.UpdatedAt,
	}
}

func noteFromPo(po *RevisionNotePo) *RevisionNote {
	return &RevisionNote{
		ID:           po.ID,
		StoryID:      po.StoryID,
		Stage:        po.Stage,
		AuthorID:     po.AuthorID,
		Content:      po.Content,
		Resolved:     po.Resolved,
		ResolvedByID: po.ResolvedByID,
		ResolvedAt:   po.ResolvedAt,
		CreatedAt:    po.CreatedAt,
	}
}

func taskFromPo(po *TaskPo) *Task {
	return &Task{
		ID:             po.ID,
		Type:           po.Type,
		Status:         po.Status,
		Priority:       po.Priority,
		AssigneeID:     po.AssigneeID,
		RelatedStoryID: po.RelatedStoryID,
		Language:       po.Language,
		DueDate:        po.DueDate,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
}

func auditEntryFromPo(po *AuditEntryPo) *AuditEntry {
	return &AuditEntry{
		ID:         po.ID,
		ActorID:    po.ActorID,
		Action:     po.Action,
		TargetType: po.TargetType,
		TargetID:   po.TargetID,
		Metadata:   NewMetadata(po.Metadata),
		CreatedAt:  po.CreatedAt,
	}
}
