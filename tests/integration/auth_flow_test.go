package integration

import (
	"fmt"
	"net/http"
	"testing"

	"lims/internal/models"
	"lims/internal/testutil"
)

func TestAuthFlow_LoginProfileRefreshLogout(t *testing.T) {
	app := setupApp(t)
	user := app.createUser(t, models.RoleAnalyst)

	// Step 1: Login
	accessToken, refreshToken := app.loginUser(t, user.Email, testutil.TestPassword)
	if accessToken == "" || refreshToken == "" {
		t.Fatal("expected non-empty tokens from login")
	}

	// Step 2: Profile
	rec := app.request("GET", "/api/v1/profile", "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	profile := parseJSON(t, rec)["user"].(map[string]interface{})
	if profile["email"] != user.Email || profile["role"] != "ANALYST" {
		t.Errorf("unexpected profile %v", profile)
	}

	// Step 3: Refresh rotates the refresh token
	body := fmt.Sprintf(`{"refresh_token":%q}`, refreshToken)
	rec = app.request("POST", "/api/v1/auth/refresh", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", rec.Code, rec.Body.String())
	}
	rotated := parseJSON(t, rec)
	newAccess := rotated["access_token"].(string)
	if rotated["refresh_token"] == refreshToken {
		t.Error("expected a new refresh token")
	}

	rec = app.request("POST", "/api/v1/auth/refresh", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when reusing a rotated refresh token, got %d", rec.Code)
	}

	// Step 4: Logout revokes the access token
	rec = app.request("POST", "/api/v1/auth/logout", "", newAccess)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = app.request("GET", "/api/v1/profile", "", newAccess)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}

	// Step 5: Auth events are on the audit trail
	if n := len(app.auditEntries(t, "LOGIN")); n != 1 {
		t.Errorf("expected 1 LOGIN entry, got %d", n)
	}
	logouts := app.auditEntries(t, "LOGOUT")
	if len(logouts) != 1 || logouts[0].UserID == nil || *logouts[0].UserID != user.ID {
		t.Errorf("expected 1 LOGOUT entry for the user, got %+v", logouts)
	}
	if n := len(app.auditEntries(t, "UPDATE")); n != 0 {
		t.Errorf("expected login bookkeeping to stay off the trail, got %d UPDATE entries", n)
	}
}

func TestAuthFlow_LockoutAfterFailures(t *testing.T) {
	app := setupApp(t)
	user := app.createUser(t, models.RoleAnalyst)
	wrong := fmt.Sprintf(`{"email":%q,"password":"wrong-password"}`, user.Email)

	for i := 1; i < lockoutThreshold; i++ {
		rec := app.request("POST", "/api/v1/auth/login", wrong, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
		if code := errorCode(t, rec); code != "INVALID_CREDENTIALS" {
			t.Fatalf("attempt %d: expected INVALID_CREDENTIALS, got %s", i, code)
		}
	}

	rec := app.request("POST", "/api/v1/auth/login", wrong, "")
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423 on the locking attempt, got %d", rec.Code)
	}

	// The right password no longer works while locked.
	right := fmt.Sprintf(`{"email":%q,"password":%q}`, user.Email, testutil.TestPassword)
	rec = app.request("POST", "/api/v1/auth/login", right, "")
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423 while locked, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "ACCOUNT_LOCKED" {
		t.Errorf("expected ACCOUNT_LOCKED, got %s", code)
	}

	failed := app.auditEntries(t, "LOGIN_FAILED")
	if len(failed) != lockoutThreshold+1 {
		t.Fatalf("expected %d LOGIN_FAILED entries, got %d", lockoutThreshold+1, len(failed))
	}
	for _, e := range failed {
		if e.UserID == nil || *e.UserID != user.ID {
			t.Errorf("expected failed login attributed to %s, got %v", user.ID, e.UserID)
		}
	}
}

func TestAuthFlow_UnknownEmail(t *testing.T) {
	app := setupApp(t)

	rec := app.requestWithHeaders("POST", "/api/v1/auth/login",
		`{"email":"nobody@test.com","password":"password123"}`, "",
		map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_CREDENTIALS" {
		t.Errorf("expected INVALID_CREDENTIALS, got %s", code)
	}

	failed := app.auditEntries(t, "LOGIN_FAILED")
	if len(failed) != 1 {
		t.Fatalf("expected 1 LOGIN_FAILED entry, got %d", len(failed))
	}
	if failed[0].UserID != nil {
		t.Errorf("expected no user on unknown email, got %v", *failed[0].UserID)
	}
	if failed[0].IPAddress == nil || *failed[0].IPAddress != "203.0.113.9" {
		t.Errorf("expected first forwarded address, got %v", failed[0].IPAddress)
	}
}

func TestAuthFlow_ChangePassword(t *testing.T) {
	app := setupApp(t)
	user, token := app.loginAs(t, models.RoleAnalyst)

	rec := app.request("POST", "/api/v1/auth/change-password",
		fmt.Sprintf(`{"current_password":%q,"new_password":"a-better-secret"}`, testutil.TestPassword), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.request("POST", "/api/v1/auth/login",
		fmt.Sprintf(`{"email":%q,"password":%q}`, user.Email, testutil.TestPassword), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected old password to be rejected, got %d", rec.Code)
	}
	app.loginUser(t, user.Email, "a-better-secret")

	if n := len(app.auditEntries(t, "PASSWORD_CHANGE")); n != 1 {
		t.Errorf("expected 1 PASSWORD_CHANGE entry, got %d", n)
	}
}

func TestAuthFlow_AdminCreatesUser(t *testing.T) {
	app := setupApp(t)
	admin, adminToken := app.loginAs(t, models.RoleAdmin)
	_, analystToken := app.loginAs(t, models.RoleAnalyst)

	body := `{"email":"New.Analyst@Lab.test","password":"password123","name":"New Analyst","role":"SUPERVISOR"}`

	rec := app.request("POST", "/api/v1/users", body, analystToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for analyst, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/users", body, adminToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := parseJSON(t, rec)["user"].(map[string]interface{})
	if created["role"] != "SUPERVISOR" {
		t.Errorf("expected SUPERVISOR, got %v", created["role"])
	}

	rec = app.request("POST", "/api/v1/users", body, adminToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rec.Code)
	}

	creates := app.auditEntries(t, "CREATE")
	if len(creates) != 1 || creates[0].Entity != "User" {
		t.Fatalf("expected 1 User CREATE entry, got %+v", creates)
	}
	if creates[0].UserID == nil || *creates[0].UserID != admin.ID {
		t.Errorf("expected entry attributed to the admin, got %v", creates[0].UserID)
	}
	if creates[0].Role == nil || *creates[0].Role != "ADMIN" {
		t.Errorf("expected ADMIN role on entry, got %v", creates[0].Role)
	}
}
