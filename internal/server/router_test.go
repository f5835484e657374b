package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"lims/internal/auth/revocation"
	"lims/internal/logger"
	"lims/internal/middleware"
	"lims/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
}

func TestNewRouter(t *testing.T) {
	// Nil services are fine: every request below is answered before a handler runs.
	router := NewRouter(Services{Revocations: revocation.NewMemory()})

	analystToken, err := middleware.GenerateAccessToken(&models.User{Base: models.Base{ID: "u1"}, Role: models.RoleAnalyst})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", "GET", "/api/health", "", http.StatusOK},
		{"metrics", "GET", "/metrics", "", http.StatusOK},
		{"preflight", "OPTIONS", "/api/v1/reports/chemistry", "", http.StatusNoContent},
		{"reports need a token", "GET", "/api/v1/reports/chemistry", "", http.StatusUnauthorized},
		{"audit trail needs a reviewer", "GET", "/api/v1/audit-logs", analystToken, http.StatusForbidden},
		{"users need an admin", "POST", "/api/v1/users", analystToken, http.StatusForbidden},
		{"purge needs an admin", "POST", "/api/v1/reports/chemistry/purge", analystToken, http.StatusForbidden},
		{"unknown route", "GET", "/api/v2/anything", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("cors headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
		if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-ESign-Password") {
			t.Errorf("expected e-sign header to be allowed, got %q", got)
		}
	})
}
