package editorial

import (
	"testing"
	"time"
)

func testStory() *StoryPo {
	return &StoryPo{
		ID:       1,
		Title:    "port strike",
		Stage:    StageDraft,
		Language: "en",
		AuthorID: 10,
	}
}

func TestDeriveTasks_ReviewStage(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	t.Run("unassigned reviewer yields PENDING_ASSIGNMENT", func(t *testing.T) {
		specs := deriveTasks(testStory(), StageNeedsReview, cfg, now)
		if len(specs) != 1 {
			t.Fatalf("got %d specs; want 1", len(specs))
		}
		spec := specs[0]
		if spec.Type != TaskTypeReview {
			t.Errorf("type = %s; want %s", spec.Type, TaskTypeReview)
		}
		if spec.Status != TaskStatusPendingAssignment {
			t.Errorf("status = %s; want %s", spec.Status, TaskStatusPendingAssignment)
		}
		if spec.AssigneeID != nil {
			t.Errorf("assigneeID = %v; want nil", *spec.AssigneeID)
		}
		if spec.DueDate == nil {
			t.Fatal("due date missing")
		}
		want := now.Add(cfg.ReviewDue).Unix()
		if *spec.DueDate != want {
			t.Errorf("due date = %d; want %d", *spec.DueDate, want)
		}
	})

	t.Run("assigned reviewer yields PENDING", func(t *testing.T) {
		story := testStory()
		story.AssignedReviewerID = Int64(20)
		specs := deriveTasks(story, StageNeedsReview, cfg, now)
		if len(specs) != 1 {
			t.Fatalf("got %d specs; want 1", len(specs))
		}
		if specs[0].Status != TaskStatusPending {
			t.Errorf("status = %s; want %s", specs[0].Status, TaskStatusPending)
		}
		if specs[0].AssigneeID == nil || *specs[0].AssigneeID != 20 {
			t.Errorf("assigneeID = %v; want 20", specs[0].AssigneeID)
		}
	})

	t.Run("urgent story raises priority", func(t *testing.T) {
		story := testStory()
		story.Urgent = true
		specs := deriveTasks(story, StageNeedsReview, cfg, now)
		if specs[0].Priority != TaskPriorityUrgent {
			t.Errorf("priority = %s; want %s", specs[0].Priority, TaskPriorityUrgent)
		}
	})
}

func TestDeriveTasks_ApprovalStage(t *testing.T) {
	story := testStory()
	story.AssignedApproverID = Int64(30)
	specs := deriveTasks(story, StageNeedsApproval, DefaultConfig(), time.Now())
	if len(specs) != 1 {
		t.Fatalf("got %d specs; want 1", len(specs))
	}
	if specs[0].Type != TaskTypeApprove || specs[0].Status != TaskStatusPending {
		t.Errorf("spec = %s/%s; want %s/%s", specs[0].Type, specs[0].Status, TaskTypeApprove, TaskStatusPending)
	}
}

func TestDeriveTasks_TranslationFanOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetLanguages = []string{"de", "fr", "en"}
	now := time.Now()

	t.Run("primary-language story fans out per target", func(t *testing.T) {
		specs := deriveTasks(testStory(), StageApproved, cfg, now)
		if len(specs) != 2 {
			t.Fatalf("got %d specs; want 2 (the primary language is skipped)", len(specs))
		}
		languages := make(map[string]bool)
		for _, spec := range specs {
			if spec.Type != TaskTypeTranslate {
				t.Errorf("type = %s; want %s", spec.Type, TaskTypeTranslate)
			}
			if spec.Status != TaskStatusPendingAssignment {
				t.Errorf("status = %s; want %s", spec.Status, TaskStatusPendingAssignment)
			}
			if spec.Language == nil {
				t.Fatal("translate spec missing language")
			}
			languages[*spec.Language] = true
		}
		if !languages["de"] || !languages["fr"] {
			t.Errorf("languages = %v; want de and fr", languages)
		}
	})

	t.Run("non-primary story derives nothing", func(t *testing.T) {
		story := testStory()
		story.Language = "de"
		if specs := deriveTasks(story, StageApproved, cfg, now); len(specs) != 0 {
			t.Errorf("got %d specs; want 0", len(specs))
		}
	})

	t.Run("no targets configured derives nothing", func(t *testing.T) {
		if specs := deriveTasks(testStory(), StageApproved, DefaultConfig(), now); len(specs) != 0 {
			t.Errorf("got %d specs; want 0", len(specs))
		}
	})
}

func TestDeriveTasks_PublishAndFollowUp(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	t.Run("entering TRANSLATED derives a PUBLISH task", func(t *testing.T) {
		specs := deriveTasks(testStory(), StageTranslated, cfg, now)
		if len(specs) != 1 || specs[0].Type != TaskTypePublish {
			t.Fatalf("specs = %v; want one PUBLISH task", specs)
		}
		if specs[0].Status != TaskStatusPendingAssignment {
			t.Errorf("status = %s; want %s", specs[0].Status, TaskStatusPendingAssignment)
		}
	})

	t.Run("follow-up only when flagged", func(t *testing.T) {
		if specs := deriveTasks(testStory(), StagePublished, cfg, now); len(specs) != 0 {
			t.Errorf("got %d specs for unflagged story; want 0", len(specs))
		}
		story := testStory()
		story.NeedsFollowUp = true
		specs := deriveTasks(story, StagePublished, cfg, now)
		if len(specs) != 1 || specs[0].Type != TaskTypeFollowUp {
			t.Fatalf("specs = %v; want one FOLLOW_UP task", specs)
		}
		spec := specs[0]
		if spec.AssigneeID == nil || *spec.AssigneeID != story.AuthorID {
			t.Errorf("assigneeID = %v; want author %d", spec.AssigneeID, story.AuthorID)
		}
		if spec.Status != TaskStatusPending {
			t.Errorf("status = %s; want %s", spec.Status, TaskStatusPending)
		}
		if spec.DueDate == nil || *spec.DueDate != now.Add(cfg.FollowUpDue).Unix() {
			t.Errorf("due date = %v; want now+%v", spec.DueDate, cfg.FollowUpDue)
		}
	})
}

func TestDeriveTasks_NoRuleStages(t *testing.T) {
	cfg := DefaultConfig()
	if specs := deriveTasks(testStory(), StageDraft, cfg, time.Now()); specs != nil {
		t.Errorf("DRAFT must derive nothing, got %v", specs)
	}
	if specs := deriveTasks(testStory(), "LIMBO", cfg, time.Now()); specs != nil {
		t.Errorf("unknown stage must derive nothing, got %v", specs)
	}
}

func TestCreationTaskSpec(t *testing.T) {
	story := testStory()
	story.Urgent = true
	spec := creationTaskSpec(story)
	if spec.Type != TaskTypeCreate {
		t.Errorf("type = %s; want %s", spec.Type, TaskTypeCreate)
	}
	if spec.Status != TaskStatusInProgress {
		t.Errorf("status = %s; want %s", spec.Status, TaskStatusInProgress)
	}
	if spec.AssigneeID == nil || *spec.AssigneeID != story.AuthorID {
		t.Errorf("assigneeID = %v; want author %d", spec.AssigneeID, story.AuthorID)
	}
	if spec.Priority != TaskPriorityUrgent {
		t.Errorf("priority = %s; want %s", spec.Priority, TaskPriorityUrgent)
	}
}
