package editorial

import (
	"context"
)

// Store is the engine's transactional persistence boundary. Implementations
// must make Transaction compose: calls made with the ctx passed to fn join
// the same transaction, and GetStoryForUpdate must lock the story row for
// the remainder of it.
type Store interface {
	CreateStory(ctx context.Context, story *StoryPo) (*StoryPo, error)
	QueryStory(ctx context.Context, param *QueryStoryParams) ([]*StoryPo, error)
	CountStory(ctx context.Context, param *QueryStoryParams) (int64, error)
	GetStoryForUpdate(ctx context.Context, storyID int64) (*StoryPo, error)
	// UpdateStory returns the number of rows matched so callers can detect
	// a lost stage-guarded race.
	UpdateStory(ctx context.Context, param *UpdateStoryParams) (int64, error)

	CreateRevisionNote(ctx context.Context, note *RevisionNotePo) (*RevisionNotePo, error)
	QueryRevisionNote(ctx context.Context, param *QueryRevisionNoteParams) ([]*RevisionNotePo, error)
	UpdateRevisionNote(ctx context.Context, param *UpdateRevisionNoteParams) error

	CreateTask(ctx context.Context, task *TaskPo) (*TaskPo, error)
	QueryTask(ctx context.Context, param *QueryTaskParams) ([]*TaskPo, error)
	UpdateTask(ctx context.Context, param *UpdateTaskParams) error

	CreateAuditEntry(ctx context.Context, entry *AuditEntryPo) (*AuditEntryPo, error)
	QueryAuditEntry(ctx context.Context, param *QueryAuditEntryParams) ([]*AuditEntryPo, error)
	CountAuditEntry(ctx context.Context, param *QueryAuditEntryParams) (int64, error)

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
