package editorial

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TaskSpec describes a work item the deriver wants to exist. Insertion is
// idempotent: a spec is skipped when a non-terminal task with the same
// identity (type + story, plus language for TRANSLATE) is already open.
type TaskSpec struct {
	Type       TaskType
	Status     TaskStatus
	Priority   TaskPriority
	AssigneeID *int64
	Language   *string
	DueDate    *int64
}

type deriveFunc func(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec

// taskDerivationRules maps a stage being entered to the tasks it derives.
// The table is the whole policy; the stage machine only walks it.
var taskDerivationRules = map[Stage]deriveFunc{
	StageNeedsReview:   deriveReviewTask,
	StageNeedsApproval: deriveApprovalTask,
	StageApproved:      deriveTranslationTasks,
	StageTranslated:    derivePublishTask,
	StagePublished:     deriveFollowUpTask,
}

// deriveTasks computes the task specs for a story entering a stage. Pure:
// no store access, no clock reads beyond the passed-in now.
func deriveTasks(story *StoryPo, entered Stage, cfg *Config, now time.Time) []*TaskSpec {
	rule, ok := taskDerivationRules[entered]
	if !ok {
		return nil
	}
	return rule(story, cfg, now)
}

func storyPriority(story *StoryPo) TaskPriority {
	if story.Urgent {
		return TaskPriorityUrgent
	}
	return TaskPriorityNormal
}

// assignmentStatus returns PENDING when an assignee is known, otherwise
// PENDING_ASSIGNMENT per the derivation policy for unstaffed stages.
func assignmentStatus(assigneeID *int64) TaskStatus {
	if assigneeID != nil && *assigneeID > 0 {
		return TaskStatusPending
	}
	return TaskStatusPendingAssignment
}

func dueAt(now time.Time, offset time.Duration) *int64 {
	if offset <= 0 {
		return nil
	}
	ts := now.Add(offset).Unix()
	return &ts
}

func deriveReviewTask(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec {
	return []*TaskSpec{{
		Type:       TaskTypeReview,
		Status:     assignmentStatus(story.AssignedReviewerID),
		Priority:   storyPriority(story),
		AssigneeID: story.AssignedReviewerID,
		DueDate:    dueAt(now, cfg.ReviewDue),
	}}
}

func deriveApprovalTask(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec {
	return []*TaskSpec{{
		Type:       TaskTypeApprove,
		Status:     assignmentStatus(story.AssignedApproverID),
		Priority:   storyPriority(story),
		AssigneeID: story.AssignedApproverID,
		DueDate:    dueAt(now, cfg.ApprovalDue),
	}}
}

// deriveTranslationTasks fans out one TRANSLATE task per configured target
// language, but only for stories written in the primary language.
func deriveTranslationTasks(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec {
	if story.Language != cfg.PrimaryLanguage {
		return nil
	}
	specs := make([]*TaskSpec, 0, len(cfg.TargetLanguages))
	for _, target := range cfg.TargetLanguages {
		if target == cfg.PrimaryLanguage {
			continue
		}
		lang := target
		specs = append(specs, &TaskSpec{
			Type:     TaskTypeTranslate,
			Status:   TaskStatusPendingAssignment,
			Priority: storyPriority(story),
			Language: &lang,
		})
	}
	return specs
}

func derivePublishTask(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec {
	return []*TaskSpec{{
		Type:     TaskTypePublish,
		Status:   TaskStatusPendingAssignment,
		Priority: storyPriority(story),
	}}
}

func deriveFollowUpTask(story *StoryPo, cfg *Config, now time.Time) []*TaskSpec {
	if !story.NeedsFollowUp {
		return nil
	}
	authorID := story.AuthorID
	return []*TaskSpec{{
		Type:       TaskTypeFollowUp,
		Status:     TaskStatusPending,
		Priority:   TaskPriorityNormal,
		AssigneeID: &authorID,
		DueDate:    dueAt(now, cfg.FollowUpDue),
	}}
}

// creationTaskSpec is the CREATE work item opened alongside a first draft.
func creationTaskSpec(story *StoryPo) *TaskSpec {
	authorID := story.AuthorID
	return &TaskSpec{
		Type:       TaskTypeCreate,
		Status:     TaskStatusInProgress,
		Priority:   storyPriority(story),
		AssigneeID: &authorID,
	}
}

// insertDerivedTasks writes the specs that pass the idempotency check.
// Runs inside the ambient transaction of the transition.
func (s *EditorialServiceImpl) insertDerivedTasks(ctx context.Context, story *StoryPo, actor Actor, specs []*TaskSpec) ([]*TaskPo, error) {
	created := make([]*TaskPo, 0, len(specs))
	for _, spec := range specs {
		exists, err := s.openTaskExists(ctx, story.ID, spec)
		if err != nil {
			return nil, errors.WithMessagef(err, "openTaskExists failed, storyID: %d, type: %s", story.ID, spec.Type)
		}
		if exists {
			// a revision round re-entered this stage; keep the open task
			continue
		}
		storyID := story.ID
		po, err := s.repo.CreateTask(ctx, &TaskPo{
			Type:           spec.Type,
			Status:         spec.Status,
			Priority:       spec.Priority,
			AssigneeID:     spec.AssigneeID,
			RelatedStoryID: &storyID,
			Language:       spec.Language,
			CreatedByID:    actor.ID,
			DueDate:        spec.DueDate,
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "CreateTask failed, storyID: %d, type: %s", story.ID, spec.Type)
		}
		created = append(created, po)
	}
	return created, nil
}

func (s *EditorialServiceImpl) openTaskExists(ctx context.Context, storyID int64, spec *TaskSpec) (bool, error) {
	taskType := spec.Type
	param := &QueryTaskParams{
		Type:           &taskType,
		RelatedStoryID: &storyID,
		StatusIn:       NonTerminalTaskStatuses(),
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	}
	if spec.Language != nil {
		param.Language = spec.Language
	}
	tasks, err := s.repo.QueryTask(ctx, param)
	if err != nil {
		return false, errors.WithMessage(err, "QueryTask failed")
	}
	return len(tasks) > 0, nil
}

func (s *EditorialServiceImpl) ListTasksFor(ctx context.Context, actor Actor, page *Pager) ([]*Task, error) {
	if err := validatorUtil.Struct(actor); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "ListTasksFor failed, actor: %v, err: %v", actor, err)
	}
	if !Allowed(actor.Role, ActionTaskRead) {
		return nil, errors.WithMessagef(ErrForbidden, "role %s may not read tasks", actor.Role)
	}
	pos, err := s.repo.QueryTask(ctx, &QueryTaskParams{
		AssigneeID:   &actor.ID,
		StatusIn:     NonTerminalTaskStatuses(),
		OrderbyIDAsc: Bool(true),
		Page:         page,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryTask failed, assigneeID: %d", actor.ID)
	}
	tasks := make([]*Task, 0, len(pos))
	for _, po := range pos {
		tasks = append(tasks, taskFromPo(po))
	}
	return tasks, nil
}

func (s *EditorialServiceImpl) CompleteTask(ctx context.Context, params *TaskStatusParams) error {
	return s.closeTask(ctx, params, TaskStatusCompleted, AuditActionTaskCompleted)
}

func (s *EditorialServiceImpl) CancelTask(ctx context.Context, params *TaskStatusParams) error {
	return s.closeTask(ctx, params, TaskStatusCancelled, AuditActionTaskCancelled)
}

func (s *EditorialServiceImpl) closeTask(ctx context.Context, params *TaskStatusParams, toStatus TaskStatus, auditAction string) error {
	if err := validatorUtil.Struct(params); err != nil {
		return errors.Wrapf(ErrParamInvalid, "closeTask failed, params: %v, err: %v", params, err)
	}
	if !Allowed(params.Actor.Role, ActionTaskUpdate) {
		return errors.WithMessagef(ErrForbidden, "role %s may not update tasks", params.Actor.Role)
	}
	tasks, err := s.repo.QueryTask(ctx, &QueryTaskParams{
		TaskID: &params.TaskID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return errors.WithMessagef(err, "QueryTask failed, taskID: %d", params.TaskID)
	}
	if len(tasks) == 0 {
		return errors.WithMessagef(ErrNotFound, "task not found, taskID: %d", params.TaskID)
	}
	task := tasks[0]
	if IsTerminalTaskStatus(task.Status) {
		return errors.WithMessagef(ErrInvalidTransition, "task %d is already %s", task.ID, task.Status)
	}
	// only the assignee or editor-level roles may close someone's task
	isAssignee := task.AssigneeID != nil && *task.AssigneeID == params.Actor.ID
	if !isAssignee && !RoleAtLeast(params.Actor.Role, RoleEditor) {
		return errors.WithMessagef(ErrForbidden, "actor %d may not close task %d", params.Actor.ID, task.ID)
	}

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		err := s.repo.UpdateTask(ctx, &UpdateTaskParams{
			Where: &UpdateTaskWhere{
				IDIn:     []int64{task.ID},
				StatusIn: NonTerminalTaskStatuses(),
			},
			Fields: &UpdateTaskField{
				Status: String(toStatus),
			},
			LimitMax: 1,
		})
		if err != nil {
			return errors.WithMessagef(err, "UpdateTask failed, taskID: %d", task.ID)
		}
		meta := NewMetadataFromMap(map[string]any{
			"before": map[string]any{"status": task.Status},
			"after":  map[string]any{"status": toStatus},
			"type":   task.Type,
		})
		return s.recordAudit(ctx, params.Actor, auditAction, TargetTypeTask, task.ID, meta)
	})
	if err != nil {
		return errors.WithMessagef(err, "closeTask failed, taskID: %d", task.ID)
	}

	storyID := int64(0)
	if task.RelatedStoryID != nil {
		storyID = *task.RelatedStoryID
	}
	s.publishAsync(NewChangeEvent(EventTaskUpdated, task.ID, params.Actor.ID, map[string]any{
		"status":   toStatus,
		"type":     task.Type,
		"story_id": storyID,
	}))
	return nil
}
