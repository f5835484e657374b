package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"lims/internal/audit"
	apperrors "lims/internal/errors"
	"lims/internal/models"
	"lims/internal/pagination"
)

type mockAuditService struct {
	listFn    func(filter audit.Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error)
	historyFn func(entity, entityID string) ([]models.AuditLog, error)
}

func (m *mockAuditService) List(_ context.Context, filter audit.Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
	if m.listFn != nil {
		return m.listFn(filter, page)
	}
	result := pagination.NewPageResponse[models.AuditLog](nil, 1, 20, 0)
	return &result, nil
}

func (m *mockAuditService) History(_ context.Context, entity, entityID string) ([]models.AuditLog, error) {
	if m.historyFn != nil {
		return m.historyFn(entity, entityID)
	}
	return nil, nil
}

func setupAuditRouter(svc *mockAuditService) *gin.Engine {
	h := NewAuditHandler(svc)
	r := gin.New()
	r.GET("/audit-logs", h.GetAuditLogs)
	r.GET("/audit-logs/:entity/:id", h.GetHistory)
	return r
}

func TestAuditHandler_GetAuditLogs(t *testing.T) {
	t.Run("passes filters", func(t *testing.T) {
		var got audit.Filter
		svc := &mockAuditService{
			listFn: func(filter audit.Filter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
				got = filter
				result := pagination.NewPageResponse([]models.AuditLog{{Action: "UPDATE"}}, 1, 20, 1)
				return &result, nil
			},
		}

		rec := doRequest(setupAuditRouter(svc), "GET",
			"/audit-logs?entity=ChemistryReport&entity_id=r1&user_id=u1&action=UPDATE&from=2026-01-01&to=2026-02-01T00:00:00Z", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Entity != "ChemistryReport" || got.EntityID != "r1" || got.UserID != "u1" || got.Action != "UPDATE" {
			t.Errorf("unexpected filter %+v", got)
		}
		if got.From == nil || got.To == nil || !got.From.Before(*got.To) {
			t.Errorf("expected time range, got from=%v to=%v", got.From, got.To)
		}
		data := parseJSON(t, rec)["data"].([]interface{})
		if len(data) != 1 {
			t.Errorf("expected one entry, got %d", len(data))
		}
	})

	t.Run("returns 400 on bad time", func(t *testing.T) {
		rec := doRequest(setupAuditRouter(&mockAuditService{}), "GET", "/audit-logs?from=soon", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 when the service rejects the range", func(t *testing.T) {
		svc := &mockAuditService{
			listFn: func(audit.Filter, pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must not be before from")
			},
		}
		rec := doRequest(setupAuditRouter(svc), "GET", "/audit-logs?from=2026-02-01&to=2026-01-01", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAuditHandler_GetHistory(t *testing.T) {
	var gotEntity, gotID string
	svc := &mockAuditService{
		historyFn: func(entity, entityID string) ([]models.AuditLog, error) {
			gotEntity, gotID = entity, entityID
			return []models.AuditLog{{Action: "CREATE"}, {Action: "UPDATE"}}, nil
		},
	}

	rec := doRequest(setupAuditRouter(svc), "GET", "/audit-logs/MicroReport/"+testReportID, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotEntity != "MicroReport" || gotID != testReportID {
		t.Errorf("unexpected history call %s/%s", gotEntity, gotID)
	}
	entries := parseJSON(t, rec)["entries"].([]interface{})
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}
