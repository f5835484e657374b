package services

import (
	"context"

	"lims/internal/audit"
	apperrors "lims/internal/errors"
	"lims/internal/models"
	"lims/internal/pagination"
)

// auditService exposes the read side of the audit trail.
type auditService struct {
	store *audit.Store
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(store *audit.Store) AuditServicer {
	return &auditService{store: store}
}

// List returns a page of audit entries matching filter, newest first.
func (s *auditService) List(ctx context.Context, filter audit.Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must not be before from")
	}
	result, err := s.store.Query(ctx, filter, page)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// History returns the full change history of one record, oldest first.
func (s *auditService) History(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	if entity == "" || entityID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "entity and entity id are required")
	}
	entries, err := s.store.History(ctx, entity, entityID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return entries, nil
}
