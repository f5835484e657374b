package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lims/internal/audit"
	apperrors "lims/internal/errors"
	"lims/internal/pagination"
	"lims/internal/services"
)

// AuditHandler exposes the audit trail to reviewers.
type AuditHandler struct {
	auditService services.AuditServicer
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditService services.AuditServicer) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// GetAuditLogs handles searching the audit trail
// @Summary     List audit entries
// @Description Get a paginated list of audit entries, newest first (supervisor or admin)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Param       entity    query string false "Filter by entity (e.g. ChemistryReport)"
// @Param       entity_id query string false "Filter by entity ID"
// @Param       user_id   query string false "Filter by acting user ID"
// @Param       action    query string false "Filter by action (e.g. UPDATE, LOGIN_FAILED)"
// @Param       from      query string false "Entries at or after (RFC3339 or YYYY-MM-DD)"
// @Param       to        query string false "Entries at or before (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[models.AuditLog] "Paginated audit entries"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter := audit.Filter{
		Entity:   c.Query("entity"),
		EntityID: c.Query("entity_id"),
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
	}
	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		respondWithError(c, err)
		return
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.auditService.List(c.Request.Context(), filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHistory handles retrieving the change history of one record
// @Summary     Record history
// @Description Get every audit entry for one record, oldest first (supervisor or admin)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       entity path string true "Entity (e.g. ChemistryReport)"
// @Param       id     path string true "Entity ID"
// @Success     200 {array}  models.AuditLog "Audit entries"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /audit-logs/{entity}/{id} [get]
func (h *AuditHandler) GetHistory(c *gin.Context) {
	entries, err := h.auditService.History(c.Request.Context(), c.Param("entity"), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := parseFlexibleTime(v)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+key+": "+err.Error())
	}
	return &t, nil
}
