package tests

import (
	"context"
	"testing"

	"github.com/newsdesk/editorial-workflow/editorial"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	journalist = editorial.Actor{ID: 1, Role: editorial.RoleJournalist}
	reviewer   = editorial.Actor{ID: 2, Role: editorial.RoleReviewer}
	approver   = editorial.Actor{ID: 3, Role: editorial.RoleApprover}
	translator = editorial.Actor{ID: 4, Role: editorial.RoleTranslator}
	editor     = editorial.Actor{ID: 5, Role: editorial.RoleEditor}
	admin      = editorial.Actor{ID: 6, Role: editorial.RoleAdmin}
)

func setupService(t *testing.T) editorial.EditorialService {
	svc, _ := setupServiceFull(t, ":memory:", nil)
	return svc
}

func setupServiceFull(t *testing.T, dsn string, cfg *editorial.Config) (editorial.EditorialService, *editorial.LocalBroadcaster) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&editorial.StoryPo{},
		&editorial.RevisionNotePo{},
		&editorial.TaskPo{},
		&editorial.AuditEntryPo{},
	)
	require.NoError(t, err)

	broadcaster := editorial.NewLocalBroadcaster()
	svc, err := editorial.NewEditorialService(
		editorial.NewEditorialStore(db),
		editorial.NewLocalExecLock(),
		broadcaster,
		cfg,
	)
	require.NoError(t, err)
	return svc, broadcaster
}

func createDraft(t *testing.T, svc editorial.EditorialService, author editorial.Actor) *editorial.Story {
	t.Helper()
	story, err := svc.CreateStory(context.Background(), &editorial.CreateStoryParams{
		Actor:    author,
		Title:    "harbor expansion hearing",
		Language: "en",
	})
	require.NoError(t, err)
	return story
}

func transition(t *testing.T, svc editorial.EditorialService, storyID int64, actor editorial.Actor, to editorial.Stage) *editorial.TransitionResult {
	t.Helper()
	result, err := svc.TransitionStory(context.Background(), &editorial.TransitionStoryParams{
		StoryID: storyID,
		ToStage: to,
		Actor:   actor,
	})
	require.NoError(t, err)
	return result
}

func TestCreateStory(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	t.Run("first draft starts at DRAFT with a CREATE task", func(t *testing.T) {
		story, err := svc.CreateStory(ctx, &editorial.CreateStoryParams{
			Actor:    journalist,
			Title:    "city budget vote",
			Language: "en",
			Urgent:   true,
		})
		require.NoError(t, err)
		assert.Greater(t, story.ID, int64(0))
		assert.Equal(t, editorial.StageDraft, story.Stage)
		assert.Equal(t, journalist.ID, story.AuthorID)
		assert.Nil(t, story.PublishedAt)

		tasks, err := svc.ListTasksFor(ctx, journalist, nil)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, editorial.TaskTypeCreate, tasks[0].Type)
		assert.Equal(t, editorial.TaskStatusInProgress, tasks[0].Status)
		assert.Equal(t, editorial.TaskPriorityUrgent, tasks[0].Priority)

		entries, err := svc.ListAuditEntries(ctx, admin, &editorial.AuditFilter{
			TargetType: editorial.String(editorial.TargetTypeStory),
			TargetID:   editorial.Int64(story.ID),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, editorial.AuditActionStoryCreated, entries[0].Action)
		assert.Equal(t, journalist.ID, entries[0].ActorID)
	})

	t.Run("translator may not create stories", func(t *testing.T) {
		_, err := svc.CreateStory(ctx, &editorial.CreateStoryParams{
			Actor:    translator,
			Title:    "nope",
			Language: "en",
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
	})

	t.Run("missing title is rejected", func(t *testing.T) {
		_, err := svc.CreateStory(ctx, &editorial.CreateStoryParams{
			Actor:    journalist,
			Language: "en",
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrParamInvalid))
	})
}

func TestTransitionBasics(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	t.Run("submit for review with no reviewer assigned", func(t *testing.T) {
		story := createDraft(t, svc, journalist)

		result := transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)
		assert.Equal(t, editorial.StageDraft, result.FromStage)
		assert.Equal(t, editorial.StageNeedsReview, result.Story.Stage)

		require.Len(t, result.CreatedTasks, 1)
		task := result.CreatedTasks[0]
		assert.Equal(t, editorial.TaskTypeReview, task.Type)
		assert.Equal(t, editorial.TaskStatusPendingAssignment, task.Status)
		assert.Nil(t, task.AssigneeID)
		assert.NotNil(t, task.DueDate)

		entries, err := svc.ListAuditEntries(ctx, admin, &editorial.AuditFilter{
			ActionPrefix: editorial.String(editorial.AuditActionStageChanged),
			TargetID:     editorial.Int64(story.ID),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		from, _ := entries[0].Metadata.GetString("before", "stage")
		to, _ := entries[0].Metadata.GetString("after", "stage")
		assert.Equal(t, editorial.StageDraft, from)
		assert.Equal(t, editorial.StageNeedsReview, to)
	})

	t.Run("assigned reviewer yields a PENDING task", func(t *testing.T) {
		story, err := svc.CreateStory(ctx, &editorial.CreateStoryParams{
			Actor:              journalist,
			Title:              "transit strike",
			Language:           "en",
			AssignedReviewerID: editorial.Int64(reviewer.ID),
		})
		require.NoError(t, err)

		result := transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)
		require.Len(t, result.CreatedTasks, 1)
		assert.Equal(t, editorial.TaskStatusPending, result.CreatedTasks[0].Status)
		require.NotNil(t, result.CreatedTasks[0].AssigneeID)
		assert.Equal(t, reviewer.ID, *result.CreatedTasks[0].AssigneeID)
	})

	t.Run("skipping stages is an invalid transition", func(t *testing.T) {
		story := createDraft(t, svc, journalist)
		_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
			StoryID: story.ID,
			ToStage: editorial.StagePublished,
			Actor:   admin,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrInvalidTransition))
	})

	t.Run("role without the edge is forbidden", func(t *testing.T) {
		story := createDraft(t, svc, journalist)
		transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)

		// a journalist cannot pass their own story through review
		_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
			StoryID: story.ID,
			ToStage: editorial.StageNeedsApproval,
			Actor:   journalist,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
	})

	t.Run("unknown story", func(t *testing.T) {
		_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
			StoryID: 999999,
			ToStage: editorial.StageNeedsReview,
			Actor:   admin,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrNotFound))
	})

	t.Run("unknown target stage", func(t *testing.T) {
		story := createDraft(t, svc, journalist)
		_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
			StoryID: story.ID,
			ToStage: "LIMBO",
			Actor:   admin,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrInvalidTransition))
	})

	t.Run("rejection without a reason is rejected", func(t *testing.T) {
		story := createDraft(t, svc, journalist)
		transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)

		_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
			StoryID: story.ID,
			ToStage: editorial.StageDraft,
			Actor:   reviewer,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrParamInvalid))
	})
}

func TestAssignStoryRole(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	story := createDraft(t, svc, journalist)
	result := transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)
	require.Len(t, result.CreatedTasks, 1)
	assert.Equal(t, editorial.TaskStatusPendingAssignment, result.CreatedTasks[0].Status)

	t.Run("journalist may not assign", func(t *testing.T) {
		err := svc.AssignStoryRole(ctx, &editorial.AssignStoryRoleParams{
			StoryID:    story.ID,
			Role:       editorial.AssignReviewer,
			AssigneeID: reviewer.ID,
			Actor:      journalist,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
	})

	t.Run("editor assigns a reviewer and the task is claimed", func(t *testing.T) {
		err := svc.AssignStoryRole(ctx, &editorial.AssignStoryRoleParams{
			StoryID:    story.ID,
			Role:       editorial.AssignReviewer,
			AssigneeID: reviewer.ID,
			Actor:      editor,
		})
		require.NoError(t, err)

		updated, err := svc.GetStory(ctx, story.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.AssignedReviewerID)
		assert.Equal(t, reviewer.ID, *updated.AssignedReviewerID)

		tasks, err := svc.ListTasksFor(ctx, reviewer, nil)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, editorial.TaskTypeReview, tasks[0].Type)
		assert.Equal(t, editorial.TaskStatusPending, tasks[0].Status)
	})
}

func TestTaskLifecycle(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	story := createDraft(t, svc, journalist)
	result := transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)
	taskID := result.CreatedTasks[0].ID

	t.Run("stranger may not close the task", func(t *testing.T) {
		err := svc.CompleteTask(ctx, &editorial.TaskStatusParams{
			TaskID: taskID,
			Actor:  reviewer, // not the assignee, not editor-level
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
	})

	t.Run("editor completes it", func(t *testing.T) {
		err := svc.CompleteTask(ctx, &editorial.TaskStatusParams{
			TaskID: taskID,
			Actor:  editor,
		})
		require.NoError(t, err)

		entries, err := svc.ListAuditEntries(ctx, admin, &editorial.AuditFilter{
			TargetType: editorial.String(editorial.TargetTypeTask),
			TargetID:   editorial.Int64(taskID),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, editorial.AuditActionTaskCompleted, entries[0].Action)
	})

	t.Run("closing twice is invalid", func(t *testing.T) {
		err := svc.CancelTask(ctx, &editorial.TaskStatusParams{
			TaskID: taskID,
			Actor:  editor,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrInvalidTransition))
	})

	t.Run("unknown task", func(t *testing.T) {
		err := svc.CompleteTask(ctx, &editorial.TaskStatusParams{
			TaskID: 424242,
			Actor:  editor,
		})
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrNotFound))
	})
}

func TestAuditAccess(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	story := createDraft(t, svc, journalist)
	transition(t, svc, story.ID, journalist, editorial.StageNeedsReview)

	t.Run("journalist may not read the audit trail", func(t *testing.T) {
		_, err := svc.ListAuditEntries(ctx, journalist, nil)
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
		_, err = svc.CountAuditEntries(ctx, journalist, nil)
		assert.True(t, errors.Is(errors.Cause(err), editorial.ErrForbidden))
	})

	t.Run("editor filters by action prefix", func(t *testing.T) {
		entries, err := svc.ListAuditEntries(ctx, editor, &editorial.AuditFilter{
			ActionPrefix: editorial.String("story."),
		})
		require.NoError(t, err)
		assert.Len(t, entries, 2) // created + stage_changed

		count, err := svc.CountAuditEntries(ctx, editor, &editorial.AuditFilter{
			ActionPrefix: editorial.String("story."),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}
