package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"lims/internal/audit"
	apperrors "lims/internal/errors"
	"lims/internal/models"
	"lims/internal/pagination"
	"lims/internal/reqctx"
	"lims/internal/uuid"
)

const maxImportSize = 500

// editableGuard keeps edits and deletes from landing on a report that left
// an editable status after it was read.
var editableGuard = audit.Where("status IN ?", models.EditableStatuses)

// reportPtr is satisfied by pointers to report record types.
type reportPtr[T any] interface {
	*T
	models.Report
}

// reportService handles report-related business logic.
type reportService struct {
	db      *gorm.DB
	gateway *audit.Gateway
	users   UserServicer
	now     func() time.Time
}

// NewReportService creates a new ReportServicer.
func NewReportService(db *gorm.DB, gateway *audit.Gateway, users UserServicer) ReportServicer {
	return &reportService{db: db, gateway: gateway, users: users, now: time.Now}
}

// Create adds a new draft report authored by actor.
func (s *reportService) Create(ctx context.Context, actor Actor, kind models.ReportKind, input ReportInput) (models.Report, error) {
	report, err := newReport(kind)
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.ensureNumberAvailable(ctx, kind, input.ReportNumber, ""); err != nil {
		return nil, err
	}

	fill(report, input)
	report.Header().Status = models.ReportStatusDraft
	report.Header().CreatedByID = actor.UserID

	if err := s.gateway.Create(ctx, report); err != nil {
		return nil, mapWriteError(err)
	}
	return report, nil
}

// Get retrieves a report by kind and ID.
func (s *reportService) Get(ctx context.Context, kind models.ReportKind, id string) (models.Report, error) {
	report, err := newReport(kind)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrReportNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return report, nil
}

// List retrieves a paginated list of reports of one kind, newest first.
func (s *reportService) List(ctx context.Context, kind models.ReportKind, filter ReportFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Report], error) {
	model, err := newReport(kind)
	if err != nil {
		return nil, err
	}
	page.Defaults()

	base := s.db.WithContext(ctx).Model(model)
	if filter.Status != nil {
		base = base.Where("status = ?", *filter.Status)
	}
	if filter.CreatedByID != "" {
		base = base.Where("created_by_id = ?", filter.CreatedByID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	query := base.Order("created_at DESC").Scopes(pagination.Paginate(page))
	var reports []models.Report
	switch kind {
	case models.ReportKindChemistry:
		reports, err = findAll[models.ChemistryReport](query)
	case models.ReportKindMicro:
		reports, err = findAll[models.MicroReport](query)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(reports, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// Update applies field edits to a draft or rejected report.
func (s *reportService) Update(ctx context.Context, kind models.ReportKind, id string, patch ReportPatch) (models.Report, error) {
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !current.Header().Status.Editable() {
		return nil, apperrors.ErrReportNotEditable
	}

	updates := patchUpdates(kind, patch)
	if len(updates) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "no fields to update")
	}

	updated, _ := newReport(kind)
	if err := s.gateway.Update(ctx, updated, id, updates, editableGuard); err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// Upsert creates the report with the given ID or replaces the editable
// fields of the existing one. Status and authorship of an existing report
// are preserved.
func (s *reportService) Upsert(ctx context.Context, actor Actor, kind models.ReportKind, id string, input ReportInput) (models.Report, error) {
	report, err := newReport(kind)
	if err != nil {
		return nil, err
	}
	if !uuid.IsValid(id) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid id")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, kind, id)
	if err != nil && !errors.Is(err, apperrors.ErrReportNotFound) {
		return nil, err
	}
	if err := s.ensureNumberAvailable(ctx, kind, input.ReportNumber, id); err != nil {
		return nil, err
	}

	fill(report, input)
	header := report.Header()
	header.Status = models.ReportStatusDraft
	header.CreatedByID = actor.UserID
	if existing != nil {
		if !existing.Header().Status.Editable() {
			return nil, apperrors.ErrReportNotEditable
		}
		prev := existing.Header()
		header.Status = prev.Status
		header.CreatedByID = prev.CreatedByID
		header.ReviewedByID = prev.ReviewedByID
		header.ReviewedAt = prev.ReviewedAt
	}
	setID(report, id)

	if err := s.gateway.Upsert(ctx, report); err != nil {
		return nil, mapWriteError(err)
	}
	return report, nil
}

// ChangeStatus moves a report through its lifecycle. Approval and rejection
// require a reviewer role; approval also requires the actor's e-signature
// password on the request context.
func (s *reportService) ChangeStatus(ctx context.Context, actor Actor, kind models.ReportKind, id string, status models.ReportStatus) (models.Report, error) {
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	header := current.Header()
	if !header.Status.CanTransitionTo(status) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidStatusTransition,
			"Report cannot move from "+string(header.Status)+" to "+string(status))
	}
	if err := s.authorizeTransition(ctx, actor, status, header.CreatedByID); err != nil {
		return nil, err
	}

	// A concurrent transition must not be overwritten.
	guard := audit.Where("status = ?", header.Status)
	updated, _ := newReport(kind)
	if err := s.gateway.Update(ctx, updated, id, s.statusUpdates(actor, status), guard); err != nil {
		if errors.Is(err, audit.ErrStaleWrite) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidStatusTransition, "Report status changed while the request was processed")
		}
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// Delete removes a draft or rejected report.
func (s *reportService) Delete(ctx context.Context, kind models.ReportKind, id string) error {
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if !current.Header().Status.Editable() {
		return apperrors.ErrReportNotEditable
	}

	if err := s.gateway.Delete(ctx, current, id, editableGuard); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Import creates a batch of draft reports in one write.
func (s *reportService) Import(ctx context.Context, actor Actor, kind models.ReportKind, inputs []ReportInput) (int64, error) {
	if _, err := newReport(kind); err != nil {
		return 0, err
	}
	if len(inputs) == 0 || len(inputs) > maxImportSize {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "import must contain between 1 and 500 reports")
	}

	numbers := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if err := validateInput(input); err != nil {
			return 0, err
		}
		if seen[input.ReportNumber] {
			return 0, apperrors.WithMessage(apperrors.ErrDuplicateReportNumber, "Duplicate report number "+input.ReportNumber+" in import")
		}
		seen[input.ReportNumber] = true
		numbers = append(numbers, input.ReportNumber)
	}

	var count int64
	err := s.db.WithContext(ctx).Model(models.NewReport(kind)).Where("report_number IN ?", numbers).Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return 0, apperrors.ErrDuplicateReportNumber
	}

	var rows any
	switch kind {
	case models.ReportKindChemistry:
		rows = buildAll[models.ChemistryReport](inputs, actor.UserID)
	case models.ReportKindMicro:
		rows = buildAll[models.MicroReport](inputs, actor.UserID)
	}

	n, err := s.gateway.CreateMany(ctx, rows)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return n, nil
}

// BulkUpdateStatus moves every listed report that may legally reach status
// and returns how many moved. Reports in other states are left untouched.
// Non-reviewers can only move reports they authored.
func (s *reportService) BulkUpdateStatus(ctx context.Context, actor Actor, kind models.ReportKind, ids []string, status models.ReportStatus) (int64, error) {
	model, err := newReport(kind)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "ids are required")
	}
	sources := models.SourcesOf(status)
	if len(sources) == 0 {
		return 0, apperrors.ErrInvalidStatusTransition
	}
	if err := s.authorizeTransition(ctx, actor, status, ""); err != nil {
		return 0, err
	}

	query := "id IN ? AND status IN ?"
	args := []any{ids, sources}
	if !actor.Role.CanReview() {
		query += " AND created_by_id = ?"
		args = append(args, actor.UserID)
	}

	n, err := s.gateway.UpdateMany(ctx, model, s.statusUpdates(actor, status), query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return n, nil
}

// PurgeDrafts deletes draft reports created before olderThan.
func (s *reportService) PurgeDrafts(ctx context.Context, kind models.ReportKind, olderThan time.Time) (int64, error) {
	model, err := newReport(kind)
	if err != nil {
		return 0, err
	}
	if olderThan.IsZero() || olderThan.After(s.now()) {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "older_than must be in the past")
	}

	n, err := s.gateway.DeleteMany(ctx, model, "status = ? AND created_at < ?", models.ReportStatusDraft, olderThan)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return n, nil
}

// authorizeTransition checks the actor may move a report authored by
// authorID to status. An empty authorID skips the authorship check.
func (s *reportService) authorizeTransition(ctx context.Context, actor Actor, status models.ReportStatus, authorID string) error {
	if status.Reviewed() && !actor.Role.CanReview() {
		return apperrors.WithMessage(apperrors.ErrForbidden, "Only supervisors can approve or reject reports")
	}
	if status == models.ReportStatusSubmitted && authorID != "" && authorID != actor.UserID && !actor.Role.CanReview() {
		return apperrors.WithMessage(apperrors.ErrForbidden, "Only the author can submit this report")
	}
	if status == models.ReportStatusApproved {
		rc, _ := reqctx.Current(ctx)
		if err := s.users.VerifyESign(ctx, actor.UserID, rc.ESignPassword); err != nil {
			return err
		}
	}
	return nil
}

func (s *reportService) statusUpdates(actor Actor, status models.ReportStatus) map[string]any {
	updates := map[string]any{"status": status}
	if status.Reviewed() {
		updates["reviewed_by_id"] = actor.UserID
		updates["reviewed_at"] = s.now()
	} else {
		updates["reviewed_by_id"] = nil
		updates["reviewed_at"] = nil
	}
	return updates
}

// ensureNumberAvailable returns ErrDuplicateReportNumber if another report
// of the kind, other than exceptID, already uses number.
func (s *reportService) ensureNumberAvailable(ctx context.Context, kind models.ReportKind, number, exceptID string) error {
	query := s.db.WithContext(ctx).Model(models.NewReport(kind)).Where("report_number = ?", number)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrDuplicateReportNumber
	}
	return nil
}

func newReport(kind models.ReportKind) (models.Report, error) {
	report := models.NewReport(kind)
	if report == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown report kind "+string(kind))
	}
	return report, nil
}

func validateInput(input ReportInput) error {
	if input.ReportNumber == "" || input.Client == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "report number and client are required")
	}
	if input.IncubationHours < 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "incubation hours must not be negative")
	}
	return nil
}

func fill(report models.Report, input ReportInput) {
	header := report.Header()
	header.ReportNumber = input.ReportNumber
	header.Client = input.Client
	header.SampleDescription = input.SampleDescription
	header.ReceivedAt = input.ReceivedAt
	header.Results = input.Results
	header.Remarks = input.Remarks

	switch r := report.(type) {
	case *models.ChemistryReport:
		r.Method = input.Method
	case *models.MicroReport:
		r.Organism = input.Organism
		r.IncubationHours = input.IncubationHours
	}
}

func setID(report models.Report, id string) {
	switch r := report.(type) {
	case *models.ChemistryReport:
		r.ID = id
	case *models.MicroReport:
		r.ID = id
	}
}

func patchUpdates(kind models.ReportKind, patch ReportPatch) map[string]any {
	updates := map[string]any{}
	if patch.Client != nil {
		updates["client"] = *patch.Client
	}
	if patch.SampleDescription != nil {
		updates["sample_description"] = *patch.SampleDescription
	}
	if patch.ReceivedAt != nil {
		updates["received_at"] = *patch.ReceivedAt
	}
	if patch.Results != nil {
		updates["results"] = patch.Results
	}
	if patch.Remarks != nil {
		updates["remarks"] = *patch.Remarks
	}
	switch kind {
	case models.ReportKindChemistry:
		if patch.Method != nil {
			updates["method"] = *patch.Method
		}
	case models.ReportKindMicro:
		if patch.Organism != nil {
			updates["organism"] = *patch.Organism
		}
		if patch.IncubationHours != nil {
			updates["incubation_hours"] = *patch.IncubationHours
		}
	}
	return updates
}

func findAll[T any, P reportPtr[T]](query *gorm.DB) ([]models.Report, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	reports := make([]models.Report, 0, len(rows))
	for i := range rows {
		reports = append(reports, P(&rows[i]))
	}
	return reports, nil
}

func buildAll[T any, P reportPtr[T]](inputs []ReportInput, createdByID string) []P {
	rows := make([]P, 0, len(inputs))
	for _, input := range inputs {
		row := P(new(T))
		fill(row, input)
		row.Header().Status = models.ReportStatusDraft
		row.Header().CreatedByID = createdByID
		rows = append(rows, row)
	}
	return rows
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrReportNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrDuplicateReportNumber
	case errors.Is(err, audit.ErrStaleWrite):
		return apperrors.ErrReportNotEditable
	case errors.Is(err, audit.ErrDeleted):
		return apperrors.WithMessage(apperrors.ErrReportNotEditable, "Deleted reports cannot be replaced")
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}
