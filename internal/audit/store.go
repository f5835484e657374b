package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lims/internal/models"
	"lims/internal/pagination"
)

// Store is the append-only persistence of audit entries. It exposes no
// update or delete path.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry.
func (s *Store) Append(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// Filter narrows an audit query. Zero fields are ignored.
type Filter struct {
	Entity   string
	EntityID string
	UserID   string
	Action   string
	From     *time.Time
	To       *time.Time
}

func (f Filter) scope(db *gorm.DB) *gorm.DB {
	if f.Entity != "" {
		db = db.Where("entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at <= ?", *f.To)
	}
	return db
}

// Query returns a page of entries matching filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
	page.Defaults()

	var total int64
	base := filter.scope(s.db.WithContext(ctx).Model(&models.AuditLog{}))
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var entries []models.AuditLog
	if err := base.Order("created_at DESC").Order("id DESC").
		Scopes(pagination.Paginate(page)).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(entries, page.Page, page.PageSize, total)
	return &result, nil
}

// History returns every entry of one record in the order it was written.
func (s *Store) History(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("created_at ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
