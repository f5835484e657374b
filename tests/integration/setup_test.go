package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lims/internal/audit"
	"lims/internal/auth/revocation"
	"lims/internal/logger"
	"lims/internal/models"
	"lims/internal/server"
	"lims/internal/services"
	"lims/internal/testutil"
	"lims/internal/validator"
)

// lockoutThreshold is the failed-login count that locks an account in tests.
const lockoutThreshold = 3

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	return newTestApp(db)
}

// newTestApp wires services and the router on db.
func newTestApp(db *gorm.DB) *testApp {
	store := audit.NewStore(db)
	gateway := audit.NewGateway(db, audit.NewInterceptor(store))
	revocations := revocation.NewMemory()

	userService := services.NewUserService(db, gateway, audit.NewRecorder(store), revocations, services.LockoutPolicy{
		Threshold: lockoutThreshold,
		Duration:  15 * time.Minute,
	})

	router := server.NewRouter(server.Services{
		Users:       userService,
		Reports:     services.NewReportService(db, gateway, userService),
		Audits:      services.NewAuditService(store),
		Revocations: revocations,
	})

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	return app.requestWithHeaders(method, path, body, token, nil)
}

// requestWithHeaders is request with extra headers.
func (app *testApp) requestWithHeaders(method, path, body, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// errorCode returns the structured error code of an error response.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// createUser inserts a user with the given role and testutil.TestPassword.
func (app *testApp) createUser(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	return testutil.CreateTestUserWithRole(t, app.DB, role)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// loginAs creates a user with role and returns it with an access token.
func (app *testApp) loginAs(t *testing.T, role models.UserRole) (*models.User, string) {
	t.Helper()
	user := app.createUser(t, role)
	token, _ := app.loginUser(t, user.Email, testutil.TestPassword)
	return user, token
}

// auditEntries returns audit entries for action in insertion order.
func (app *testApp) auditEntries(t *testing.T, action string) []models.AuditLog {
	t.Helper()
	var out []models.AuditLog
	for _, e := range testutil.AuditEntries(t, app.DB) {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
