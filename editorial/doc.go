// Package editorial implements the newsroom workflow engine: it moves
// stories through the editorial pipeline, derives follow-on work items,
// enforces role-based authorization on every transition, tracks blocking
// revision requests, records an append-only audit trail and broadcasts
// change events to interested subscribers.
//
// Main properties:
//   - Fixed pipeline: DRAFT -> NEEDS_REVIEW -> NEEDS_APPROVAL -> APPROVED
//     -> TRANSLATED -> PUBLISHED, plus rejection and unpublish edges. The
//     graph and the role grants are data tables, not scattered branches.
//   - Atomic transitions: stage write, rejection note, derived tasks and
//     audit entry commit together or not at all; concurrent transitions on
//     one story resolve to one success and one ErrConflict.
//   - Blocking revisions: a forward edge is refused while an unresolved
//     revision note raised at the current stage exists.
//   - Best-effort events: change events are published after commit and a
//     broadcast failure never fails the transition; subscribers reconnect
//     automatically and fall back to polling when the channel is unhealthy.
//   - Persistence through GORM: MySQL, PostgreSQL and SQLite all work;
//     per-story serialization via a local or Redis-backed lock.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("editorial.db"), &gorm.Config{})
//	db.AutoMigrate(&editorial.StoryPo{}, &editorial.RevisionNotePo{},
//		&editorial.TaskPo{}, &editorial.AuditEntryPo{})
//
//	store := editorial.NewEditorialStore(db)
//	svc, _ := editorial.NewEditorialService(store,
//		editorial.NewLocalExecLock(), editorial.NewLocalBroadcaster(),
//		editorial.DefaultConfig())
//
//	author := editorial.Actor{ID: 1, Role: editorial.RoleJournalist}
//	story, _ := svc.CreateStory(ctx, &editorial.CreateStoryParams{
//		Actor:    author,
//		Title:    "Harbor expansion approved",
//		Language: "en",
//	})
//	_, err := svc.TransitionStory(ctx, &editorial.TransitionStoryParams{
//		StoryID: story.ID,
//		ToStage: editorial.StageNeedsReview,
//		Actor:   author,
//	})
//
// Multi-node deployments swap in editorial.NewRedisExecLock and
// editorial.NewRedisBroadcaster over a shared Redis.
package editorial
