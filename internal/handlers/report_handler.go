package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	apperrors "lims/internal/errors"
	"lims/internal/models"
	"lims/internal/pagination"
	"lims/internal/services"
)

// ReportHandler handles test report requests for every report kind.
type ReportHandler struct {
	reportService services.ReportServicer
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService services.ReportServicer) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// ReportRequest represents the request payload for creating or replacing a report
type ReportRequest struct {
	ReportNumber      string         `json:"report_number" binding:"required,max=64"`
	Client            string         `json:"client" binding:"required,max=255"`
	SampleDescription string         `json:"sample_description" binding:"max=1000"`
	ReceivedAt        *string        `json:"received_at"`
	Results           datatypes.JSON `json:"results" swaggertype:"object"`
	Remarks           string         `json:"remarks" binding:"max=2000"`
	Method            string         `json:"method" binding:"max=100"`
	Organism          string         `json:"organism" binding:"max=255"`
	IncubationHours   int            `json:"incubation_hours" binding:"min=0"`
}

// UpdateReportRequest represents the request payload for editing a report.
// Omitted fields are left unchanged.
type UpdateReportRequest struct {
	Client            *string        `json:"client" binding:"omitempty,min=1,max=255"`
	SampleDescription *string        `json:"sample_description" binding:"omitempty,max=1000"`
	ReceivedAt        *string        `json:"received_at"`
	Results           datatypes.JSON `json:"results" swaggertype:"object"`
	Remarks           *string        `json:"remarks" binding:"omitempty,max=2000"`
	Method            *string        `json:"method" binding:"omitempty,max=100"`
	Organism          *string        `json:"organism" binding:"omitempty,max=255"`
	IncubationHours   *int           `json:"incubation_hours" binding:"omitempty,min=0"`
}

// ChangeStatusRequest represents a lifecycle transition. Approval requires
// e_sign_password here or in the X-ESign-Password header.
type ChangeStatusRequest struct {
	Status        models.ReportStatus `json:"status" binding:"required,report_status"`
	ESignPassword string              `json:"e_sign_password"`
	Reason        string              `json:"reason" binding:"max=500"`
}

// ImportReportsRequest represents a batch import.
type ImportReportsRequest struct {
	Reports []ReportRequest `json:"reports" binding:"required,min=1,max=500,dive"`
}

// BulkStatusRequest represents a batch lifecycle transition.
type BulkStatusRequest struct {
	IDs    []string            `json:"ids" binding:"required,min=1,max=500,dive,uuid"`
	Status models.ReportStatus `json:"status" binding:"required,report_status"`
}

// PurgeDraftsRequest selects the drafts to delete.
type PurgeDraftsRequest struct {
	OlderThan string `json:"older_than" binding:"required"`
}

// CountResponse reports how many records a batch operation affected.
type CountResponse struct {
	Count int64 `json:"count"`
}

func nullableJSON(raw datatypes.JSON) datatypes.JSON {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseFlexibleTime(*s)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	return &t, nil
}

func (r ReportRequest) toInput() (services.ReportInput, error) {
	receivedAt, err := parseOptionalTime(r.ReceivedAt)
	if err != nil {
		return services.ReportInput{}, err
	}
	return services.ReportInput{
		ReportNumber:      r.ReportNumber,
		Client:            r.Client,
		SampleDescription: r.SampleDescription,
		ReceivedAt:        receivedAt,
		Results:           nullableJSON(r.Results),
		Remarks:           r.Remarks,
		Method:            r.Method,
		Organism:          r.Organism,
		IncubationHours:   r.IncubationHours,
	}, nil
}

func (r UpdateReportRequest) toPatch() (services.ReportPatch, error) {
	receivedAt, err := parseOptionalTime(r.ReceivedAt)
	if err != nil {
		return services.ReportPatch{}, err
	}
	return services.ReportPatch{
		Client:            r.Client,
		SampleDescription: r.SampleDescription,
		ReceivedAt:        receivedAt,
		Results:           nullableJSON(r.Results),
		Remarks:           r.Remarks,
		Method:            r.Method,
		Organism:          r.Organism,
		IncubationHours:   r.IncubationHours,
	}, nil
}

// CreateReport handles the creation of a new draft report
// @Summary     Create a report
// @Description Create a new draft test report of the given kind
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string        true "Report kind (chemistry, micro)"
// @Param       request body ReportRequest true "Report details"
// @Success     201 {object} models.ChemistryReport "Report created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate report number"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /reports/{kind} [post]
func (h *ReportHandler) CreateReport(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	report, err := h.reportService.Create(c.Request.Context(), actor, kind, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": report})
}

// GetReports handles listing reports of one kind
// @Summary     List reports
// @Description Get a paginated list of reports of the given kind, newest first
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       kind       path  string true  "Report kind (chemistry, micro)"
// @Param       page       query int    false "Page number (default 1)"
// @Param       page_size  query int    false "Items per page (default 20, max 100)"
// @Param       status     query string false "Filter by status (DRAFT, SUBMITTED, APPROVED, REJECTED)"
// @Param       created_by query string false "Filter by author ID"
// @Success     200 {object} pagination.PageResponse[models.ChemistryReport] "Paginated reports"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /reports/{kind} [get]
func (h *ReportHandler) GetReports(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.ReportFilter
	if s := c.Query("status"); s != "" {
		status := models.ReportStatus(s)
		if !validStatus(status) {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid status"))
			return
		}
		filter.Status = &status
	}
	filter.CreatedByID = c.Query("created_by")

	result, err := h.reportService.List(c.Request.Context(), kind, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetReport handles retrieving a single report
// @Summary     Get a report
// @Description Get a report by kind and ID
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       kind path string true "Report kind (chemistry, micro)"
// @Param       id   path string true "Report ID"
// @Success     200 {object} models.ChemistryReport "Report"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Report not found"
// @Router      /reports/{kind}/{id} [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	kind, id, ok := h.kindAndID(c)
	if !ok {
		return
	}

	report, err := h.reportService.Get(c.Request.Context(), kind, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// UpdateReport handles editing a draft or rejected report
// @Summary     Update a report
// @Description Edit fields of a DRAFT or REJECTED report; every changed field is recorded in the audit trail
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string              true "Report kind (chemistry, micro)"
// @Param       id      path string              true "Report ID"
// @Param       request body UpdateReportRequest true "Fields to change"
// @Success     200 {object} models.ChemistryReport "Report updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Report not found"
// @Failure     409 {object} ErrorResponse "Report not editable"
// @Router      /reports/{kind}/{id} [patch]
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	kind, id, ok := h.kindAndID(c)
	if !ok {
		return
	}

	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondWithError(c, err)
		return
	}

	report, err := h.reportService.Update(c.Request.Context(), kind, id, patch)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// PutReport handles creating or replacing a report at a known ID
// @Summary     Create or replace a report
// @Description Create the report with the given ID, or replace the editable fields of the existing one
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string        true "Report kind (chemistry, micro)"
// @Param       id      path string        true "Report ID"
// @Param       request body ReportRequest true "Report details"
// @Success     200 {object} models.ChemistryReport "Report stored"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Report not editable or duplicate number"
// @Router      /reports/{kind}/{id} [put]
func (h *ReportHandler) PutReport(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	kind, id, ok := h.kindAndID(c)
	if !ok {
		return
	}

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	report, err := h.reportService.Upsert(c.Request.Context(), actor, kind, id, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ChangeStatus handles a report lifecycle transition
// @Summary     Change report status
// @Description Submit, approve, reject or reopen a report. Approval requires the reviewer's e-signature password.
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string              true "Report kind (chemistry, micro)"
// @Param       id      path string              true "Report ID"
// @Param       request body ChangeStatusRequest true "Target status"
// @Success     200 {object} models.ChemistryReport "Report updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized or e-signature missing"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Report not found"
// @Failure     409 {object} ErrorResponse "Invalid status transition"
// @Router      /reports/{kind}/{id}/status [post]
func (h *ReportHandler) ChangeStatus(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	kind, id, ok := h.kindAndID(c)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	report, err := h.reportService.ChangeStatus(c.Request.Context(), actor, kind, id, req.Status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// DeleteReport handles deleting a draft or rejected report
// @Summary     Delete a report
// @Description Delete a DRAFT or REJECTED report. Its audit history is kept.
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       kind path string true "Report kind (chemistry, micro)"
// @Param       id   path string true "Report ID"
// @Success     200 {object} MessageResponse "Report deleted"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Report not found"
// @Failure     409 {object} ErrorResponse "Report not editable"
// @Router      /reports/{kind}/{id} [delete]
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	kind, id, ok := h.kindAndID(c)
	if !ok {
		return
	}

	if err := h.reportService.Delete(c.Request.Context(), kind, id); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Report deleted successfully"})
}

// ImportReports handles a batch import of draft reports
// @Summary     Import reports
// @Description Create up to 500 draft reports in one write, recorded as a single audit entry
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string               true "Report kind (chemistry, micro)"
// @Param       request body ImportReportsRequest true "Reports to import"
// @Success     201 {object} CountResponse "Number of reports created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate report number"
// @Router      /reports/{kind}/import [post]
func (h *ReportHandler) ImportReports(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ImportReportsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	inputs := make([]services.ReportInput, 0, len(req.Reports))
	for _, r := range req.Reports {
		input, err := r.toInput()
		if err != nil {
			respondWithError(c, err)
			return
		}
		inputs = append(inputs, input)
	}

	n, err := h.reportService.Import(c.Request.Context(), actor, kind, inputs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CountResponse{Count: n})
}

// BulkUpdateStatus handles a batch lifecycle transition
// @Summary     Bulk change report status
// @Description Move every listed report that can legally reach the target status. Bulk approval requires the reviewer's e-signature password.
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string            true "Report kind (chemistry, micro)"
// @Param       request body BulkStatusRequest true "Report IDs and target status"
// @Success     200 {object} CountResponse "Number of reports moved"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /reports/{kind}/bulk-status [post]
func (h *ReportHandler) BulkUpdateStatus(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	n, err := h.reportService.BulkUpdateStatus(c.Request.Context(), actor, kind, req.IDs, req.Status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// PurgeDrafts handles deleting stale drafts
// @Summary     Purge stale drafts
// @Description Delete draft reports created before older_than (admin only)
// @Tags        reports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind    path string             true "Report kind (chemistry, micro)"
// @Param       request body PurgeDraftsRequest true "Cutoff (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} CountResponse "Number of drafts deleted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /reports/{kind}/purge [post]
func (h *ReportHandler) PurgeDrafts(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req PurgeDraftsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	cutoff, err := parseFlexibleTime(req.OlderThan)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	n, err := h.reportService.PurgeDrafts(c.Request.Context(), kind, cutoff)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// kindAndID parses the :kind and :id path parameters, writing the error
// response itself when either is invalid.
func (h *ReportHandler) kindAndID(c *gin.Context) (models.ReportKind, string, bool) {
	kind, err := parseKind(c)
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	return kind, id, true
}

func validStatus(s models.ReportStatus) bool {
	switch s {
	case models.ReportStatusDraft, models.ReportStatusSubmitted, models.ReportStatusApproved, models.ReportStatusRejected:
		return true
	}
	return false
}
