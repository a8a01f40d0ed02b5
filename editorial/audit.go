package editorial

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// The audit trail is append-only. Inside the engine every state-changing
// call records its entry in the same transaction as the mutation; the
// standalone Record helper exists for out-of-band callers and degrades to
// best-effort.

// recordAudit sanitizes the metadata and appends one entry through the
// ambient transaction in ctx.
func (s *EditorialServiceImpl) recordAudit(ctx context.Context, actor Actor, action string, targetType string, targetID int64, meta *Metadata) error {
	if meta == nil {
		meta = NewMetadataFromMap(nil)
	}
	_, err := s.repo.CreateAuditEntry(ctx, &AuditEntryPo{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   meta.Sanitized().ToBytesWithoutError(),
	})
	if err != nil {
		return errors.WithMessagef(err, "CreateAuditEntry failed, action: %s, target: %s/%d", action, targetType, targetID)
	}
	return nil
}

// Record appends an audit entry outside any engine transaction.
// Best-effort: a failure is logged and swallowed, never returned, so it
// cannot fail work that has already committed.
func (s *EditorialServiceImpl) Record(ctx context.Context, actor Actor, action string, targetType string, targetID int64, meta *Metadata) {
	if err := s.recordAudit(ctx, actor, action, targetType, targetID, meta); err != nil {
		slog.ErrorContext(ctx, "audit record dropped",
			"action", action, "target_type", targetType, "target_id", targetID, "err", err)
	}
}

func auditQueryParams(filter *AuditFilter) *QueryAuditEntryParams {
	if filter == nil {
		filter = &AuditFilter{}
	}
	return &QueryAuditEntryParams{
		ActorID:       filter.ActorID,
		ActionPrefix:  filter.ActionPrefix,
		TargetType:    filter.TargetType,
		TargetID:      filter.TargetID,
		CreatedAfter:  filter.CreatedAfter,
		CreatedBefore: filter.CreatedBefore,
		OrderbyIDAsc:  Bool(false),
		Page:          filter.Page,
	}
}

func (s *EditorialServiceImpl) ListAuditEntries(ctx context.Context, actor Actor, filter *AuditFilter) ([]*AuditEntry, error) {
	if err := validatorUtil.Struct(actor); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "ListAuditEntries failed, actor: %v, err: %v", actor, err)
	}
	if !Allowed(actor.Role, ActionAuditRead) {
		return nil, errors.WithMessagef(ErrForbidden, "role %s may not read the audit trail", actor.Role)
	}
	pos, err := s.repo.QueryAuditEntry(ctx, auditQueryParams(filter))
	if err != nil {
		return nil, errors.WithMessage(err, "QueryAuditEntry failed")
	}
	entries := make([]*AuditEntry, 0, len(pos))
	for _, po := range pos {
		entries = append(entries, auditEntryFromPo(po))
	}
	return entries, nil
}

func (s *EditorialServiceImpl) CountAuditEntries(ctx context.Context, actor Actor, filter *AuditFilter) (int64, error) {
	if err := validatorUtil.Struct(actor); err != nil {
		return 0, errors.Wrapf(ErrParamInvalid, "CountAuditEntries failed, actor: %v, err: %v", actor, err)
	}
	if !Allowed(actor.Role, ActionAuditRead) {
		return 0, errors.WithMessagef(ErrForbidden, "role %s may not read the audit trail", actor.Role)
	}
	count, err := s.repo.CountAuditEntry(ctx, auditQueryParams(filter))
	if err != nil {
		return 0, errors.WithMessage(err, "CountAuditEntry failed")
	}
	return count, nil
}
