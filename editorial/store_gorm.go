package editorial

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoryPo struct {
	ID                 int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title              string  `gorm:"column:title" json:"title"`
	Stage              Stage   `gorm:"column:stage;index" json:"stage"`
	Language           string  `gorm:"column:language" json:"language"`
	AuthorID           int64   `gorm:"column:author_id;index" json:"author_id"`
	AssignedReviewerID *int64  `gorm:"column:assigned_reviewer_id" json:"assigned_reviewer_id"`
	AssignedApproverID *int64  `gorm:"column:assigned_approver_id" json:"assigned_approver_id"`
	// PublishedAt/PublishedByID are set iff stage == PUBLISHED.
	PublishedAt   *int64 `gorm:"column:published_at" json:"published_at"`
	PublishedByID *int64 `gorm:"column:published_by_id" json:"published_by_id"`
	CategoryID    int64  `gorm:"column:category_id" json:"category_id"`
	Urgent        bool   `gorm:"column:urgent" json:"urgent"`
	NeedsFollowUp bool   `gorm:"column:needs_follow_up" json:"needs_follow_up"`
	CreatedAt     int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (StoryPo) TableName() string {
	return "story"
}

type RevisionNotePo struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StoryID int64  `gorm:"column:story_id;index" json:"story_id"`
	// Stage the note was raised at; notes block forward progress out of it
	// while unresolved.
	Stage        Stage  `gorm:"column:stage" json:"stage"`
	AuthorID     int64  `gorm:"column:author_id" json:"author_id"`
	Content      string `gorm:"column:content" json:"content"`
	Resolved     bool   `gorm:"column:resolved" json:"resolved"`
	ResolvedByID *int64 `gorm:"column:resolved_by_id" json:"resolved_by_id"`
	ResolvedAt   *int64 `gorm:"column:resolved_at" json:"resolved_at"`
	CreatedAt    int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (RevisionNotePo) TableName() string {
	return "revision_note"
}

type TaskPo struct {
	ID             int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type           TaskType     `gorm:"column:type;index" json:"type"`
	Status         TaskStatus   `gorm:"column:status;index" json:"status"`
	Priority       TaskPriority `gorm:"column:priority" json:"priority"`
	AssigneeID     *int64       `gorm:"column:assignee_id;index" json:"assignee_id"`
	RelatedStoryID *int64       `gorm:"column:related_story_id;index" json:"related_story_id"`
	// Language is set on TRANSLATE tasks only; it distinguishes the
	// per-target-language fan-out for the idempotency check.
	Language    *string `gorm:"column:language" json:"language"`
	CreatedByID int64   `gorm:"column:created_by_id" json:"created_by_id"`
	DueDate     *int64  `gorm:"column:due_date" json:"due_date"`
	CreatedAt   int64   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   int64   `gorm:"column:updated_at" json:"updated_at"`
}

func (TaskPo) TableName() string {
	return "task"
}

type AuditEntryPo struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ActorID    int64  `gorm:"column:actor_id;index" json:"actor_id"`
	Action     string `gorm:"column:action;index" json:"action"`
	TargetType string `gorm:"column:target_type" json:"target_type"`
	TargetID   int64  `gorm:"column:target_id;index" json:"target_id"`
	Metadata   []byte `gorm:"column:metadata" json:"metadata"` // sanitized JSON payload
	CreatedAt  int64  `gorm:"column:created_at" json:"created_at"`
}

func (AuditEntryPo) TableName() string {
	return "audit_entry"
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type QueryStoryParams struct {
	StoryID      *int64   `json:"story_id"`
	StageIn      []string `json:"stage_in"`
	AuthorID     *int64   `json:"author_id"`
	CategoryID   *int64   `json:"category_id"`
	Language     *string  `json:"language"`
	OrderbyIDAsc *bool    `json:"orderby_id_asc"`
	Page         *Pager   `json:"page"`
}

type UpdateStoryParams struct {
	Where    *UpdateStoryWhere `json:"where" validate:"required"`
	Fields   *UpdateStoryField `json:"field" validate:"required"`
	LimitMax int               `json:"limit_max" validate:"required"`
}

type UpdateStoryWhere struct {
	IDIn []int64 `json:"id_in"`
	// StageIn guards the update against concurrent transitions: zero rows
	// matched means the story already left the expected stage.
	StageIn []string `json:"stage_in"`
}

type UpdateStoryField struct {
	Stage              *string `json:"stage"`
	AssignedReviewerID *int64  `json:"assigned_reviewer_id"`
	AssignedApproverID *int64  `json:"assigned_approver_id"`
	PublishedAt        *int64  `json:"published_at"`
	PublishedByID      *int64  `json:"published_by_id"`
	// ClearPublished sets both publish columns to NULL; used when a story
	// leaves PUBLISHED.
	ClearPublished *bool `json:"clear_published"`
}

type QueryRevisionNoteParams struct {
	NoteID       *int64  `json:"note_id"`
	StoryID      *int64  `json:"story_id"`
	Stage        *string `json:"stage"`
	Resolved     *bool   `json:"resolved"`
	OrderbyIDAsc *bool   `json:"orderby_id_asc"`
	Page         *Pager  `json:"page"`
}

type UpdateRevisionNoteParams struct {
	Where    *UpdateRevisionNoteWhere `json:"where" validate:"required"`
	Fields   *UpdateRevisionNoteField `json:"field" validate:"required"`
	LimitMax int                      `json:"limit_max" validate:"required"`
}

type UpdateRevisionNoteWhere struct {
	IDIn []int64 `json:"id_in"`
}

type UpdateRevisionNoteField struct {
	Resolved     *bool  `json:"resolved"`
	ResolvedByID *int64 `json:"resolved_by_id"`
	ResolvedAt   *int64 `json:"resolved_at"`
	// ClearResolution nulls resolver metadata when a note is unresolved.
	ClearResolution *bool `json:"clear_resolution"`
}

type QueryTaskParams struct {
	TaskID         *int64   `json:"task_id"`
	Type           *string  `json:"type"`
	StatusIn       []string `json:"status_in"`
	AssigneeID     *int64   `json:"assignee_id"`
	RelatedStoryID *int64   `json:"related_story_id"`
	Language       *string  `json:"language"`
	OrderbyIDAsc   *bool    `json:"orderby_id_asc"`
	Page           *Pager   `json:"page"`
}

type UpdateTaskParams struct {
	Where    *UpdateTaskWhere `json:"where" validate:"required"`
	Fields   *UpdateTaskField `json:"field" validate:"required"`
	LimitMax int              `json:"limit_max" validate:"required"`
}

type UpdateTaskWhere struct {
	IDIn     []int64  `json:"id_in"`
	StatusIn []string `json:"status_in"`
}

type UpdateTaskField struct {
	Status     *string `json:"status"`
	AssigneeID *int64  `json:"assignee_id"`
	Priority   *string `json:"priority"`
	DueDate    *int64  `json:"due_date"`
}

type QueryAuditEntryParams struct {
	ActorID       *int64  `json:"actor_id"`
	ActionPrefix  *string `json:"action_prefix"`
	TargetType    *string `json:"target_type"`
	TargetID      *int64  `json:"target_id"`
	CreatedAfter  *int64  `json:"created_after"`
	CreatedBefore *int64  `json:"created_before"`
	OrderbyIDAsc  *bool   `json:"orderby_id_asc"`
	Page          *Pager  `json:"page"`
}

type editorialStore struct {
	db *gorm.DB
}

func NewEditorialStore(db *gorm.DB) Store {
	return &editorialStore{
		db: db,
	}
}

// permanentStoreErrors are driver failures no retry can fix: constraint
// violations and malformed statements. They must not be classified as
// transient or withStoreRetry would replay them.
var permanentStoreErrors = []error{
	gorm.ErrDuplicatedKey,
	gorm.ErrForeignKeyViolated,
	gorm.ErrCheckConstraintViolated,
	gorm.ErrInvalidData,
	gorm.ErrInvalidField,
	gorm.ErrInvalidValue,
	gorm.ErrInvalidValueOfLength,
	gorm.ErrPrimaryKeyRequired,
	gorm.ErrInvalidTransaction,
}

// wrapStoreErr maps driver failures onto the engine taxonomy: missing rows
// become ErrNotFound, permanent failures surface as-is, everything else is
// a transient store failure.
func wrapStoreErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.WithMessage(ErrNotFound, msg)
	}
	for _, permanent := range permanentStoreErrors {
		if errors.Is(err, permanent) {
			return errors.WithMessage(err, msg)
		}
	}
	return errors.Wrapf(ErrStoreUnavailable, "%s, err: %v", msg, err)
}

func (r *editorialStore) CreateStory(ctx context.Context, story *StoryPo) (*StoryPo, error) {
	if story == nil {
		return nil, fmt.Errorf("nil StoryPo")
	}
	story.CreatedAt = time.Now().Unix()
	story.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(story).Error; err != nil {
		return nil, wrapStoreErr(err, "CreateStory failed")
	}
	return story, nil
}

func buildQueryStoryParams(db *gorm.DB, isCount bool, param *QueryStoryParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryStoryParams")
	}
	if param.StoryID != nil {
		db = db.Where("id = ?", param.StoryID)
	}
	if len(param.StageIn) != 0 {
		db = db.Where("stage IN ?", param.StageIn)
	}
	if param.AuthorID != nil {
		db = db.Where("author_id = ?", param.AuthorID)
	}
	if param.CategoryID != nil {
		db = db.Where("category_id = ?", param.CategoryID)
	}
	if param.Language != nil {
		db = db.Where("language = ?", param.Language)
	}
	if param.OrderbyIDAsc != nil && !isCount {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	if !isCount {
		db = applyPager(db, param.Page)
	}
	return db, nil
}

func applyPager(db *gorm.DB, page *Pager) *gorm.DB {
	// defaults go into a copy; the caller may reuse its Pager
	p := Pager{}
	if page != nil {
		p = *page
	}
	if p.IsNoLimit != nil && *p.IsNoLimit {
		return db
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Size == 0 {
		p.Size = 10
	}
	return db.Offset(int(p.Page-1) * int(p.Size)).Limit(int(p.Size))
}

func (r *editorialStore) QueryStory(ctx context.Context, param *QueryStoryParams) ([]*StoryPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryStoryParams")
	}
	db := r.GetDBWithContext(ctx).Model(&StoryPo{})
	db, err := buildQueryStoryParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryStoryParams failed")
	}
	pos := make([]*StoryPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, wrapStoreErr(err, "QueryStory failed")
	}
	return pos, nil
}

func (r *editorialStore) CountStory(ctx context.Context, param *QueryStoryParams) (int64, error) {
	if param == nil {
		return 0, fmt.Errorf("nil QueryStoryParams")
	}
	db := r.GetDBWithContext(ctx).Model(&StoryPo{})
	db, err := buildQueryStoryParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryStoryParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, wrapStoreErr(err, "CountStory failed")
	}
	return count, nil
}

// GetStoryForUpdate reads the story row under a FOR UPDATE lock. Must run
// inside Transaction; outside one the lock has no effect.
func (r *editorialStore) GetStoryForUpdate(ctx context.Context, storyID int64) (*StoryPo, error) {
	if storyID <= 0 {
		return nil, fmt.Errorf("invalid storyID: %d", storyID)
	}
	po := &StoryPo{}
	err := r.GetDBWithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", storyID).
		First(po).Error
	if err != nil {
		return nil, wrapStoreErr(err, fmt.Sprintf("GetStoryForUpdate failed, storyID: %d", storyID))
	}
	return po, nil
}

func buildUpdateStoryWhere(db *gorm.DB, param *UpdateStoryParams) (*gorm.DB, error) {
	isHasWhere := false
	if param == nil {
		return nil, errors.New("nil UpdateStoryParams")
	}
	if param.Where == nil {
		return nil, errors.New("where is nil")
	}
	if param.Fields == nil {
		return nil, errors.New("fields is nil")
	}
	if len(param.Where.IDIn) > 0 {
		isHasWhere = true
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if len(param.Where.StageIn) > 0 {
		isHasWhere = true
		db = db.Where("stage IN ?", param.Where.StageIn)
	}
	if !isHasWhere {
		return db, errors.New("update story needs a where condition")
	}
	return db, nil
}

func buildUpdateStoryFields(fields *UpdateStoryField) (map[string]any, error) {
	updateFields := make(map[string]any)
	if fields.Stage != nil {
		updateFields["stage"] = *fields.Stage
	}
	if fields.AssignedReviewerID != nil {
		updateFields["assigned_reviewer_id"] = *fields.AssignedReviewerID
	}
	if fields.AssignedApproverID != nil {
		updateFields["assigned_approver_id"] = *fields.AssignedApproverID
	}
	if fields.PublishedAt != nil {
		updateFields["published_at"] = *fields.PublishedAt
	}
	if fields.PublishedByID != nil {
		updateFields["published_by_id"] = *fields.PublishedByID
	}
	if fields.ClearPublished != nil && *fields.ClearPublished {
		updateFields["published_at"] = nil
		updateFields["published_by_id"] = nil
	}
	if len(updateFields) == 0 {
		return nil, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	return updateFields, nil
}

func (r *editorialStore) UpdateStory(ctx context.Context, param *UpdateStoryParams) (int64, error) {
	if param == nil {
		return 0, fmt.Errorf("nil UpdateStoryParams")
	}
	db := r.GetDBWithContext(ctx).Model(&StoryPo{})
	db, err := buildUpdateStoryWhere(db, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildUpdateStoryWhere failed")
	}
	updateFields, err := buildUpdateStoryFields(param.Fields)
	if err != nil {
		return 0, errors.WithMessage(err, "buildUpdateStoryFields failed")
	}
	result := db.Limit(param.LimitMax).Updates(updateFields)
	if result.Error != nil {
		return 0, wrapStoreErr(result.Error, "UpdateStory failed")
	}
	return result.RowsAffected, nil
}

func (r *editorialStore) CreateRevisionNote(ctx context.Context, note *RevisionNotePo) (*RevisionNotePo, error) {
	if note == nil {
		return nil, errors.New("nil RevisionNotePo")
	}
	note.CreatedAt = time.Now().Unix()
	note.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(note).Error; err != nil {
		return nil, wrapStoreErr(err, "CreateRevisionNote failed")
	}
	return note, nil
}

func buildQueryRevisionNoteParams(db *gorm.DB, param *QueryRevisionNoteParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryRevisionNoteParams")
	}
	if param.NoteID != nil {
		db = db.Where("id = ?", param.NoteID)
	}
	if param.StoryID != nil {
		db = db.Where("story_id = ?", param.StoryID)
	}
	if param.Stage != nil {
		db = db.Where("stage = ?", param.Stage)
	}
	if param.Resolved != nil {
		db = db.Where("resolved = ?", param.Resolved)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	return applyPager(db, param.Page), nil
}

func (r *editorialStore) QueryRevisionNote(ctx context.Context, param *QueryRevisionNoteParams) ([]*RevisionNotePo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryRevisionNoteParams")
	}
	db := r.GetDBWithContext(ctx).Model(&RevisionNotePo{})
	db, err := buildQueryRevisionNoteParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryRevisionNoteParams failed")
	}
	pos := make([]*RevisionNotePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, wrapStoreErr(err, "QueryRevisionNote failed")
	}
	return pos, nil
}

func buildUpdateRevisionNoteFields(fields *UpdateRevisionNoteField) (map[string]any, error) {
	updateFields := make(map[string]any)
	if fields.Resolved != nil {
		updateFields["resolved"] = *fields.Resolved
	}
	if fields.ResolvedByID != nil {
		updateFields["resolved_by_id"] = *fields.ResolvedByID
	}
	if fields.ResolvedAt != nil {
		updateFields["resolved_at"] = *fields.ResolvedAt
	}
	if fields.ClearResolution != nil && *fields.ClearResolution {
		updateFields["resolved_by_id"] = nil
		updateFields["resolved_at"] = nil
	}
	if len(updateFields) == 0 {
		return nil, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	return updateFields, nil
}

func (r *editorialStore) UpdateRevisionNote(ctx context.Context, param *UpdateRevisionNoteParams) error {
	if param == nil {
		return fmt.Errorf("nil UpdateRevisionNoteParams")
	}
	if param.Where == nil || len(param.Where.IDIn) == 0 {
		return errors.New("update revision note needs a where condition")
	}
	if param.Fields == nil {
		return errors.New("fields is nil")
	}
	updateFields, err := buildUpdateRevisionNoteFields(param.Fields)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateRevisionNoteFields failed")
	}
	db := r.GetDBWithContext(ctx).Model(&RevisionNotePo{}).Where("id IN ?", param.Where.IDIn)
	if err := db.Limit(param.LimitMax).Updates(updateFields).Error; err != nil {
		return wrapStoreErr(err, "UpdateRevisionNote failed")
	}
	return nil
}

func (r *editorialStore) CreateTask(ctx context.Context, task *TaskPo) (*TaskPo, error) {
	if task == nil {
		return nil, errors.New("nil TaskPo")
	}
	task.CreatedAt = time.Now().Unix()
	task.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(task).Error; err != nil {
		return nil, wrapStoreErr(err, "CreateTask failed")
	}
	return task, nil
}

func buildQueryTaskParams(db *gorm.DB, param *QueryTaskParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryTaskParams")
	}
	if param.TaskID != nil {
		db = db.Where("id = ?", param.TaskID)
	}
	if param.Type != nil {
		db = db.Where("type = ?", param.Type)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.AssigneeID != nil {
		db = db.Where("assignee_id = ?", param.AssigneeID)
	}
	if param.RelatedStoryID != nil {
		db = db.Where("related_story_id = ?", param.RelatedStoryID)
	}
	if param.Language != nil {
		db = db.Where("language = ?", param.Language)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	return applyPager(db, param.Page), nil
}

func (r *editorialStore) QueryTask(ctx context.Context, param *QueryTaskParams) ([]*TaskPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryTaskParams")
	}
	db := r.GetDBWithContext(ctx).Model(&TaskPo{})
	db, err := buildQueryTaskParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryTaskParams failed")
	}
	pos := make([]*TaskPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, wrapStoreErr(err, "QueryTask failed")
	}
	return pos, nil
}

func buildUpdateTaskFields(fields *UpdateTaskField) (map[string]any, error) {
	updateFields := make(map[string]any)
	if fields.Status != nil {
		updateFields["status"] = *fields.Status
	}
	if fields.AssigneeID != nil {
		updateFields["assignee_id"] = *fields.AssigneeID
	}
	if fields.Priority != nil {
		updateFields["priority"] = *fields.Priority
	}
	if fields.DueDate != nil {
		updateFields["due_date"] = *fields.DueDate
	}
	if len(updateFields) == 0 {
		return nil, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	return updateFields, nil
}

func (r *editorialStore) UpdateTask(ctx context.Context, param *UpdateTaskParams) error {
	if param == nil {
		return fmt.Errorf("nil UpdateTaskParams")
	}
	if param.Where == nil || len(param.Where.IDIn) == 0 {
		return errors.New("update task needs a where condition")
	}
	if param.Fields == nil {
		return errors.New("fields is nil")
	}
	updateFields, err := buildUpdateTaskFields(param.Fields)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateTaskFields failed")
	}
	db := r.GetDBWithContext(ctx).Model(&TaskPo{}).Where("id IN ?", param.Where.IDIn)
	if len(param.Where.StatusIn) > 0 {
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	if err := db.Limit(param.LimitMax).Updates(updateFields).Error; err != nil {
		return wrapStoreErr(err, "UpdateTask failed")
	}
	return nil
}

func (r *editorialStore) CreateAuditEntry(ctx context.Context, entry *AuditEntryPo) (*AuditEntryPo, error) {
	if entry == nil {
		return nil, errors.New("nil AuditEntryPo")
	}
	entry.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(entry).Error; err != nil {
		return nil, wrapStoreErr(err, "CreateAuditEntry failed")
	}
	return entry, nil
}

func buildQueryAuditEntryParams(db *gorm.DB, isCount bool, param *QueryAuditEntryParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryAuditEntryParams")
	}
	if param.ActorID != nil {
		db = db.Where("actor_id = ?", param.ActorID)
	}
	if param.ActionPrefix != nil {
		db = db.Where("action LIKE ?", *param.ActionPrefix+"%")
	}
	if param.TargetType != nil {
		db = db.Where("target_type = ?", param.TargetType)
	}
	if param.TargetID != nil {
		db = db.Where("target_id = ?", param.TargetID)
	}
	if param.CreatedAfter != nil {
		db = db.Where("created_at >= ?", param.CreatedAfter)
	}
	if param.CreatedBefore != nil {
		db = db.Where("created_at <= ?", param.CreatedBefore)
	}
	if param.OrderbyIDAsc != nil && !isCount {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	if !isCount {
		db = applyPager(db, param.Page)
	}
	return db, nil
}

func (r *editorialStore) QueryAuditEntry(ctx context.Context, param *QueryAuditEntryParams) ([]*AuditEntryPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryAuditEntryParams")
	}
	db := r.GetDBWithContext(ctx).Model(&AuditEntryPo{})
	db, err := buildQueryAuditEntryParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryAuditEntryParams failed")
	}
	pos := make([]*AuditEntryPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, wrapStoreErr(err, "QueryAuditEntry failed")
	}
	return pos, nil
}

func (r *editorialStore) CountAuditEntry(ctx context.Context, param *QueryAuditEntryParams) (int64, error) {
	if param == nil {
		return 0, fmt.Errorf("nil QueryAuditEntryParams")
	}
	db := r.GetDBWithContext(ctx).Model(&AuditEntryPo{})
	db, err := buildQueryAuditEntryParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryAuditEntryParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, wrapStoreErr(err, "CountAuditEntry failed")
	}
	return count, nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *editorialStore) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// Transaction runs fn inside a database transaction. Nested calls join the
// ambient transaction through the context.
func (r *editorialStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTX := ctx.Value(transactionContextKey)
	var err error
	if ctxTX == nil {
		tx := r.db.Begin()
		defer func() {
			if err != nil {
				tx.Rollback()
			} else {
				tx.Commit()
			}
		}()
		newCtx := context.WithValue(ctx, transactionContextKey, tx)
		err = fn(newCtx)
		return err
	}
	return fn(ctx)
}
