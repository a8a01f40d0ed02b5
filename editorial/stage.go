package editorial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

const storyOpLockMaxHold = 30 * time.Second

func storyOpLockKey(storyID int64) string {
	return fmt.Sprintf("editorial_story_op_%d", storyID)
}

// publishAsync dispatches a change event after commit. Best-effort by
// policy: the broadcaster's failure is logged and never reaches the
// caller of the operation that produced the event.
func (s *EditorialServiceImpl) publishAsync(event *ChangeEvent) {
	if s.broadcaster == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.broadcaster.Publish(ctx, event); err != nil {
			slog.WarnContext(ctx, "change event dropped", "type", event.Type, "entity_id", event.EntityID, "err", err)
		}
	}()
}

// withStoreRetry re-runs fn on transient store failures, up to the
// configured bound with linear backoff. Every other error stops the loop.
func (s *EditorialServiceImpl) withStoreRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(errors.Cause(err), ErrStoreUnavailable) {
			return err
		}
		if attempt >= s.cfg.StoreRetryCount {
			return err
		}
		slog.WarnContext(ctx, "transient store failure, retrying", "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.cfg.StoreRetryDelay * time.Duration(attempt+1)):
		}
	}
}

func (s *EditorialServiceImpl) getStoryPo(ctx context.Context, storyID int64) (*StoryPo, error) {
	stories, err := s.repo.QueryStory(ctx, &QueryStoryParams{
		StoryID: &storyID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryStory failed, storyID: %d", storyID)
	}
	if len(stories) == 0 {
		return nil, errors.WithMessagef(ErrNotFound, "story not found, storyID: %d", storyID)
	}
	return stories[0], nil
}

func (s *EditorialServiceImpl) CreateStory(ctx context.Context, params *CreateStoryParams) (*Story, error) {
	if err := validatorUtil.Struct(params); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "CreateStory failed, params: %v, err: %v", params, err)
	}
	if !Allowed(params.Actor.Role, ActionStoryCreate) {
		return nil, errors.WithMessagef(ErrForbidden, "role %s may not create stories", params.Actor.Role)
	}

	var storyPo *StoryPo
	err := s.withStoreRetry(ctx, func() error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			var err error
			storyPo, err = s.repo.CreateStory(ctx, &StoryPo{
				Title:              params.Title,
				Stage:              StageDraft,
				Language:           params.Language,
				AuthorID:           params.Actor.ID,
				AssignedReviewerID: params.AssignedReviewerID,
				AssignedApproverID: params.AssignedApproverID,
				CategoryID:         params.CategoryID,
				Urgent:             params.Urgent,
				NeedsFollowUp:      params.NeedsFollowUp,
			})
			if err != nil {
				return errors.WithMessage(err, "CreateStory failed")
			}
			if _, err := s.insertDerivedTasks(ctx, storyPo, params.Actor, []*TaskSpec{creationTaskSpec(storyPo)}); err != nil {
				return errors.WithMessagef(err, "insertDerivedTasks failed, storyID: %d", storyPo.ID)
			}
			meta := NewMetadataFromMap(map[string]any{
				"stage":    StageDraft,
				"language": storyPo.Language,
				"title":    storyPo.Title,
			})
			return s.recordAudit(ctx, params.Actor, AuditActionStoryCreated, TargetTypeStory, storyPo.ID, meta)
		})
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateStory failed, title: %s", params.Title)
	}

	s.publishAsync(NewChangeEvent(EventStoryCreated, storyPo.ID, params.Actor.ID, map[string]any{
		"stage": StageDraft,
	}))
	return storyFromPo(storyPo), nil
}

func (s *EditorialServiceImpl) GetStory(ctx context.Context, storyID int64) (*Story, error) {
	if storyID <= 0 {
		return nil, errors.Wrapf(ErrParamInvalid, "GetStory failed, storyID: %d", storyID)
	}
	po, err := s.getStoryPo(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return storyFromPo(po), nil
}

func (s *EditorialServiceImpl) ListStories(ctx context.Context, params *QueryStoryParams) ([]*Story, error) {
	if params == nil {
		return nil, errors.Wrap(ErrParamInvalid, "nil QueryStoryParams")
	}
	pos, err := s.repo.QueryStory(ctx, params)
	if err != nil {
		return nil, errors.WithMessage(err, "QueryStory failed")
	}
	stories := make([]*Story, 0, len(pos))
	for _, po := range pos {
		stories = append(stories, storyFromPo(po))
	}
	return stories, nil
}

func (s *EditorialServiceImpl) CountStories(ctx context.Context, params *QueryStoryParams) (int64, error) {
	if params == nil {
		return 0, errors.Wrap(ErrParamInvalid, "nil QueryStoryParams")
	}
	count, err := s.repo.CountStory(ctx, params)
	if err != nil {
		return 0, errors.WithMessage(err, "CountStory failed")
	}
	return count, nil
}

func (s *EditorialServiceImpl) TransitionStory(ctx context.Context, params *TransitionStoryParams) (*TransitionResult, error) {
	if err := validatorUtil.Struct(params); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "TransitionStory failed, params: %v, err: %v", params, err)
	}
	if !IsKnownStage(params.ToStage) {
		return nil, errors.WithMessagef(ErrInvalidTransition, "unknown stage: %s", params.ToStage)
	}

	var result *TransitionResult
	err := s.withStoreRetry(ctx, func() error {
		var err error
		result, err = s.transitionOnce(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishAsync(NewChangeEvent(EventStoryStageChanged, result.Story.ID, params.Actor.ID, map[string]any{
		"from": result.FromStage,
		"to":   result.Story.Stage,
	}))
	return result, nil
}

func (s *EditorialServiceImpl) transitionOnce(ctx context.Context, params *TransitionStoryParams) (*TransitionResult, error) {
	// Unlocked read first: this fixes the stage the caller believes the
	// story is at. A mismatch under the lock means a concurrent transition
	// won and the caller must retry with fresh state.
	storyBefore, err := s.getStoryPo(ctx, params.StoryID)
	if err != nil {
		return nil, err
	}
	fromStage := storyBefore.Stage
	toStage := params.ToStage

	if !IsKnownEdge(fromStage, toStage) {
		return nil, errors.WithMessagef(ErrInvalidTransition, "no edge %s -> %s", fromStage, toStage)
	}
	if !AllowedTransition(params.Actor.Role, fromStage, toStage) {
		return nil, errors.WithMessagef(ErrForbidden, "role %s may not transition %s -> %s", params.Actor.Role, fromStage, toStage)
	}
	if IsRejectionEdge(fromStage, toStage) && params.Reason == "" {
		return nil, errors.Wrapf(ErrParamInvalid, "rejection %s -> %s requires a reason", fromStage, toStage)
	}

	var result *TransitionResult
	lockErr := s.executeLock.NonBlockingSynchronized(ctx,
		storyOpLockKey(params.StoryID),
		storyOpLockMaxHold,
		func(ctx context.Context) error {
			txErr := s.repo.Transaction(ctx, func(ctx context.Context) error {
				var err error
				result, err = s.applyTransition(ctx, params, fromStage)
				return err
			})
			return txErr
		})
	if lockErr != nil {
		if errors.Is(errors.Cause(lockErr), LockFailedError) {
			return nil, errors.WithMessagef(ErrConflict, "story %d is being transitioned concurrently", params.StoryID)
		}
		return nil, errors.WithMessagef(lockErr, "transition failed, storyID: %d", params.StoryID)
	}
	return result, nil
}

// applyTransition does the locked, transactional part: stage write with
// its side effects, rejection note, derived tasks, audit entry. Committed
// together or not at all.
func (s *EditorialServiceImpl) applyTransition(ctx context.Context, params *TransitionStoryParams, expectedFrom Stage) (*TransitionResult, error) {
	story, err := s.repo.GetStoryForUpdate(ctx, params.StoryID)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetStoryForUpdate failed, storyID: %d", params.StoryID)
	}
	if story.Stage != expectedFrom {
		return nil, errors.WithMessagef(ErrConflict, "story %d moved from %s to %s before the lock was taken", story.ID, expectedFrom, story.Stage)
	}
	toStage := params.ToStage

	// Forward progress is gated on the ledger; rejection and unpublish
	// edges go back regardless of open notes.
	if IsForwardEdge(expectedFrom, toStage) {
		blockingIDs, err := s.unresolvedNoteIDs(ctx, story.ID, expectedFrom)
		if err != nil {
			return nil, errors.WithMessagef(err, "unresolvedNoteIDs failed, storyID: %d", story.ID)
		}
		if len(blockingIDs) > 0 {
			return nil, &BlockedNotesError{
				StoryID: story.ID,
				Stage:   expectedFrom,
				NoteIDs: blockingIDs,
			}
		}
	}

	now := time.Now()
	fields := &UpdateStoryField{
		Stage: String(toStage),
	}
	if toStage == StagePublished {
		fields.PublishedAt = Int64(now.Unix())
		fields.PublishedByID = Int64(params.Actor.ID)
	}
	if expectedFrom == StagePublished {
		fields.ClearPublished = Bool(true)
	}

	// The stage column in the WHERE clause is the last line of defense
	// against a racer that slipped past the lock (e.g. another process
	// with a different lock backend).
	rows, err := s.repo.UpdateStory(ctx, &UpdateStoryParams{
		Where: &UpdateStoryWhere{
			IDIn:    []int64{story.ID},
			StageIn: []string{expectedFrom},
		},
		Fields:   fields,
		LimitMax: 1,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "UpdateStory failed, storyID: %d", story.ID)
	}
	if rows == 0 {
		return nil, errors.WithMessagef(ErrConflict, "story %d left stage %s mid-transition", story.ID, expectedFrom)
	}

	result := &TransitionResult{
		FromStage:    expectedFrom,
		CreatedTasks: make([]*Task, 0),
	}

	if IsRejectionEdge(expectedFrom, toStage) {
		// The note is raised at the stage the story lands in: that is
		// where the rework happens and what it blocks until resolved.
		notePo, err := s.repo.CreateRevisionNote(ctx, &RevisionNotePo{
			StoryID:  story.ID,
			Stage:    toStage,
			AuthorID: params.Actor.ID,
			Content:  params.Reason,
			Resolved: false,
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "CreateRevisionNote failed, storyID: %d", story.ID)
		}
		result.OpenedNote = noteFromPo(notePo)
	}

	storyAfter := *story
	storyAfter.Stage = toStage
	if toStage == StagePublished {
		storyAfter.PublishedAt = Int64(now.Unix())
		storyAfter.PublishedByID = Int64(params.Actor.ID)
	}
	if expectedFrom == StagePublished {
		storyAfter.PublishedAt = nil
		storyAfter.PublishedByID = nil
	}
	storyAfter.UpdatedAt = now.Unix()

	specs := deriveTasks(&storyAfter, toStage, s.cfg, now)
	createdTasks, err := s.insertDerivedTasks(ctx, &storyAfter, params.Actor, specs)
	if err != nil {
		return nil, errors.WithMessagef(err, "insertDerivedTasks failed, storyID: %d", story.ID)
	}
	for _, po := range createdTasks {
		result.CreatedTasks = append(result.CreatedTasks, taskFromPo(po))
	}

	meta := NewMetadataFromMap(map[string]any{
		"before": map[string]any{"stage": expectedFrom},
		"after":  map[string]any{"stage": toStage},
	})
	if params.Reason != "" {
		meta.Set([]string{"reason"}, params.Reason)
	}
	if result.OpenedNote != nil {
		meta.Set([]string{"opened_note_id"}, result.OpenedNote.ID)
	}
	if err := s.recordAudit(ctx, params.Actor, AuditActionStageChanged, TargetTypeStory, story.ID, meta); err != nil {
		return nil, errors.WithMessagef(err, "recordAudit failed, storyID: %d", story.ID)
	}

	result.Story = storyFromPo(&storyAfter)
	return result, nil
}

func (s *EditorialServiceImpl) AssignStoryRole(ctx context.Context, params *AssignStoryRoleParams) error {
	if err := validatorUtil.Struct(params); err != nil {
		return errors.Wrapf(ErrParamInvalid, "AssignStoryRole failed, params: %v, err: %v", params, err)
	}
	if !Allowed(params.Actor.Role, ActionStoryAssign) {
		return errors.WithMessagef(ErrForbidden, "role %s may not assign stories", params.Actor.Role)
	}

	err := s.executeLock.NonBlockingSynchronized(ctx,
		storyOpLockKey(params.StoryID),
		storyOpLockMaxHold,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				story, err := s.repo.GetStoryForUpdate(ctx, params.StoryID)
				if err != nil {
					return errors.WithMessagef(err, "GetStoryForUpdate failed, storyID: %d", params.StoryID)
				}

				fields := &UpdateStoryField{}
				claimType := TaskTypeReview
				if params.Role == AssignReviewer {
					fields.AssignedReviewerID = Int64(params.AssigneeID)
				} else {
					fields.AssignedApproverID = Int64(params.AssigneeID)
					claimType = TaskTypeApprove
				}
				if _, err := s.repo.UpdateStory(ctx, &UpdateStoryParams{
					Where: &UpdateStoryWhere{
						IDIn: []int64{story.ID},
					},
					Fields:   fields,
					LimitMax: 1,
				}); err != nil {
					return errors.WithMessagef(err, "UpdateStory failed, storyID: %d", story.ID)
				}

				if err := s.claimPendingAssignmentTask(ctx, story.ID, claimType, params.AssigneeID); err != nil {
					return errors.WithMessagef(err, "claimPendingAssignmentTask failed, storyID: %d", story.ID)
				}

				meta := NewMetadataFromMap(map[string]any{
					"role":        params.Role,
					"assignee_id": params.AssigneeID,
				})
				return s.recordAudit(ctx, params.Actor, AuditActionStoryAssigned, TargetTypeStory, story.ID, meta)
			})
		})
	if err != nil {
		if errors.Is(errors.Cause(err), LockFailedError) {
			return errors.WithMessagef(ErrConflict, "story %d is being modified concurrently", params.StoryID)
		}
		return errors.WithMessagef(err, "AssignStoryRole failed, storyID: %d", params.StoryID)
	}

	s.publishAsync(NewChangeEvent(EventStoryAssigned, params.StoryID, params.Actor.ID, map[string]any{
		"role":        params.Role,
		"assignee_id": params.AssigneeID,
	}))
	return nil
}

// claimPendingAssignmentTask moves an open PENDING_ASSIGNMENT task of the
// given type onto the new assignee. Nothing to claim is not an error.
func (s *EditorialServiceImpl) claimPendingAssignmentTask(ctx context.Context, storyID int64, taskType TaskType, assigneeID int64) error {
	tasks, err := s.repo.QueryTask(ctx, &QueryTaskParams{
		Type:           &taskType,
		RelatedStoryID: &storyID,
		StatusIn:       []string{TaskStatusPendingAssignment},
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return errors.WithMessage(err, "QueryTask failed")
	}
	if len(tasks) == 0 {
		return nil
	}
	return s.repo.UpdateTask(ctx, &UpdateTaskParams{
		Where: &UpdateTaskWhere{
			IDIn:     []int64{tasks[0].ID},
			StatusIn: []string{TaskStatusPendingAssignment},
		},
		Fields: &UpdateTaskField{
			Status:     String(TaskStatusPending),
			AssigneeID: Int64(assigneeID),
		},
		LimitMax: 1,
	})
}
