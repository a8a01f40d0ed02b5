package editorial

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// The revision ledger tracks blocking revision notes. Notes are never
// deleted: they toggle between resolved and unresolved, and both toggles
// are audited.

func (s *EditorialServiceImpl) RaiseRevisionNote(ctx context.Context, params *RaiseRevisionNoteParams) (*RevisionNote, error) {
	if err := validatorUtil.Struct(params); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "RaiseRevisionNote failed, params: %v, err: %v", params, err)
	}
	if !Allowed(params.Actor.Role, ActionNoteRaise) {
		return nil, errors.WithMessagef(ErrForbidden, "role %s may not raise revision notes", params.Actor.Role)
	}
	story, err := s.getStoryPo(ctx, params.StoryID)
	if err != nil {
		return nil, errors.WithMessagef(err, "getStoryPo failed, storyID: %d", params.StoryID)
	}

	var notePo *RevisionNotePo
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		var err error
		notePo, err = s.repo.CreateRevisionNote(ctx, &RevisionNotePo{
			StoryID:  story.ID,
			Stage:    story.Stage, // blocks forward progress out of the current stage
			AuthorID: params.Actor.ID,
			Content:  params.Content,
			Resolved: false,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateRevisionNote failed, storyID: %d", story.ID)
		}
		meta := NewMetadataFromMap(map[string]any{
			"story_id": story.ID,
			"stage":    story.Stage,
		})
		return s.recordAudit(ctx, params.Actor, AuditActionNoteRaised, TargetTypeNote, notePo.ID, meta)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "RaiseRevisionNote failed, storyID: %d", params.StoryID)
	}

	s.publishAsync(NewChangeEvent(EventNoteRaised, story.ID, params.Actor.ID, map[string]any{
		"note_id": notePo.ID,
		"stage":   story.Stage,
	}))
	return noteFromPo(notePo), nil
}

func (s *EditorialServiceImpl) ResolveRevisionNote(ctx context.Context, params *ResolveNoteParams) error {
	return s.toggleRevisionNote(ctx, params, true)
}

func (s *EditorialServiceImpl) UnresolveRevisionNote(ctx context.Context, params *ResolveNoteParams) error {
	return s.toggleRevisionNote(ctx, params, false)
}

func (s *EditorialServiceImpl) toggleRevisionNote(ctx context.Context, params *ResolveNoteParams, resolved bool) error {
	if err := validatorUtil.Struct(params); err != nil {
		return errors.Wrapf(ErrParamInvalid, "toggleRevisionNote failed, params: %v, err: %v", params, err)
	}
	if !Allowed(params.Actor.Role, ActionNoteResolve) {
		return errors.WithMessagef(ErrForbidden, "role %s may not resolve revision notes", params.Actor.Role)
	}
	notes, err := s.repo.QueryRevisionNote(ctx, &QueryRevisionNoteParams{
		NoteID: &params.NoteID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return errors.WithMessagef(err, "QueryRevisionNote failed, noteID: %d", params.NoteID)
	}
	if len(notes) == 0 {
		return errors.WithMessagef(ErrNotFound, "revision note not found, noteID: %d", params.NoteID)
	}
	note := notes[0]
	story, err := s.getStoryPo(ctx, note.StoryID)
	if err != nil {
		return errors.WithMessagef(err, "getStoryPo failed, storyID: %d", note.StoryID)
	}
	if !canResolveNote(story, params.Actor) {
		return errors.WithMessagef(ErrForbidden, "actor %d may not resolve note %d", params.Actor.ID, note.ID)
	}
	if note.Resolved == resolved {
		// toggle is idempotent for the state itself, skip the audit noise
		return nil
	}

	auditAction := AuditActionNoteResolved
	fields := &UpdateRevisionNoteField{
		Resolved:     Bool(true),
		ResolvedByID: Int64(params.Actor.ID),
		ResolvedAt:   Int64(time.Now().Unix()),
	}
	if !resolved {
		auditAction = AuditActionNoteUnresolved
		fields = &UpdateRevisionNoteField{
			Resolved:        Bool(false),
			ClearResolution: Bool(true),
		}
	}

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		err := s.repo.UpdateRevisionNote(ctx, &UpdateRevisionNoteParams{
			Where: &UpdateRevisionNoteWhere{
				IDIn: []int64{note.ID},
			},
			Fields:   fields,
			LimitMax: 1,
		})
		if err != nil {
			return errors.WithMessagef(err, "UpdateRevisionNote failed, noteID: %d", note.ID)
		}
		meta := NewMetadataFromMap(map[string]any{
			"story_id": note.StoryID,
			"stage":    note.Stage,
			"before":   map[string]any{"resolved": note.Resolved},
			"after":    map[string]any{"resolved": resolved},
		})
		return s.recordAudit(ctx, params.Actor, auditAction, TargetTypeNote, note.ID, meta)
	})
	if err != nil {
		return errors.WithMessagef(err, "toggleRevisionNote failed, noteID: %d", note.ID)
	}

	s.publishAsync(NewChangeEvent(EventNoteResolved, note.StoryID, params.Actor.ID, map[string]any{
		"note_id":  note.ID,
		"resolved": resolved,
	}))
	return nil
}

// canResolveNote: the story's author, the currently assigned reviewer or
// approver, or any role at or above EDITOR.
func canResolveNote(story *StoryPo, actor Actor) bool {
	if actor.ID == story.AuthorID {
		return true
	}
	if story.AssignedReviewerID != nil && *story.AssignedReviewerID == actor.ID {
		return true
	}
	if story.AssignedApproverID != nil && *story.AssignedApproverID == actor.ID {
		return true
	}
	return RoleAtLeast(actor.Role, RoleEditor)
}

func (s *EditorialServiceImpl) GetRevisionNotes(ctx context.Context, storyID int64) ([]*RevisionNote, error) {
	if storyID <= 0 {
		return nil, errors.Wrapf(ErrParamInvalid, "GetRevisionNotes failed, storyID: %d", storyID)
	}
	pos, err := s.repo.QueryRevisionNote(ctx, &QueryRevisionNoteParams{
		StoryID:      &storyID,
		OrderbyIDAsc: Bool(true),
		Page: &Pager{
			IsNoLimit: Bool(true),
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryRevisionNote failed, storyID: %d", storyID)
	}
	notes := make([]*RevisionNote, 0, len(pos))
	for _, po := range pos {
		notes = append(notes, noteFromPo(po))
	}
	return notes, nil
}

// CanAdvance reports whether the story may leave fromStage: false while
// any note raised at that stage remains unresolved.
func (s *EditorialServiceImpl) CanAdvance(ctx context.Context, storyID int64, fromStage Stage) (bool, error) {
	ids, err := s.unresolvedNoteIDs(ctx, storyID, fromStage)
	if err != nil {
		return false, err
	}
	return len(ids) == 0, nil
}

// unresolvedNoteIDs is the single blocking query the stage machine
// consults before a forward edge.
func (s *EditorialServiceImpl) unresolvedNoteIDs(ctx context.Context, storyID int64, stage Stage) ([]int64, error) {
	if storyID <= 0 {
		return nil, errors.Wrapf(ErrParamInvalid, "unresolvedNoteIDs failed, storyID: %d", storyID)
	}
	pos, err := s.repo.QueryRevisionNote(ctx, &QueryRevisionNoteParams{
		StoryID:      &storyID,
		Stage:        &stage,
		Resolved:     Bool(false),
		OrderbyIDAsc: Bool(true),
		Page: &Pager{
			IsNoLimit: Bool(true),
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryRevisionNote failed, storyID: %d, stage: %s", storyID, stage)
	}
	ids := make([]int64, 0, len(pos))
	for _, po := range pos {
		ids = append(ids, po.ID)
	}
	return ids, nil
}
