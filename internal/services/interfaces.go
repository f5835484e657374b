package services

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"lims/internal/audit"
	"lims/internal/models"
	"lims/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(ctx context.Context, email, password, name string, role models.UserRole) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	AttemptLogin(ctx context.Context, email, password string) (*models.User, error)
	Logout(ctx context.Context, userID, jti string, expiresAt time.Time) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	VerifyESign(ctx context.Context, userID, password string) error
	StoreRefreshTokenHash(ctx context.Context, userID, tokenHash string) error
	GetRefreshTokenHash(ctx context.Context, userID string) (string, error)
}

// ReportInput holds the editable fields of a report. Fields that only apply
// to one kind are ignored for the other.
type ReportInput struct {
	ReportNumber      string
	Client            string
	SampleDescription string
	ReceivedAt        *time.Time
	Results           datatypes.JSON
	Remarks           string

	// Chemistry
	Method string

	// Microbiology
	Organism        string
	IncubationHours int
}

// ReportPatch holds optional field edits; nil fields are left unchanged.
type ReportPatch struct {
	Client            *string
	SampleDescription *string
	ReceivedAt        *time.Time
	Results           datatypes.JSON
	Remarks           *string
	Method            *string
	Organism          *string
	IncubationHours   *int
}

// ReportFilter holds optional filter parameters for listing reports.
type ReportFilter struct {
	Status      *models.ReportStatus
	CreatedByID string
}

// Actor is the authenticated user performing a report operation.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// ReportServicer defines the contract for report-related business logic.
type ReportServicer interface {
	Create(ctx context.Context, actor Actor, kind models.ReportKind, input ReportInput) (models.Report, error)
	Get(ctx context.Context, kind models.ReportKind, id string) (models.Report, error)
	List(ctx context.Context, kind models.ReportKind, filter ReportFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Report], error)
	Update(ctx context.Context, kind models.ReportKind, id string, patch ReportPatch) (models.Report, error)
	Upsert(ctx context.Context, actor Actor, kind models.ReportKind, id string, input ReportInput) (models.Report, error)
	ChangeStatus(ctx context.Context, actor Actor, kind models.ReportKind, id string, status models.ReportStatus) (models.Report, error)
	Delete(ctx context.Context, kind models.ReportKind, id string) error
	Import(ctx context.Context, actor Actor, kind models.ReportKind, inputs []ReportInput) (int64, error)
	BulkUpdateStatus(ctx context.Context, actor Actor, kind models.ReportKind, ids []string, status models.ReportStatus) (int64, error)
	PurgeDrafts(ctx context.Context, kind models.ReportKind, olderThan time.Time) (int64, error)
}

// AuditServicer defines the contract for reading the audit trail.
type AuditServicer interface {
	List(ctx context.Context, filter audit.Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error)
	History(ctx context.Context, entity, entityID string) ([]models.AuditLog, error)
}
