package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"lims/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestPassword is the login and e-sign password of every fixture user.
const TestPassword = "password123"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates an analyst with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return CreateTestUserWithRole(t, db, models.RoleAnalyst)
}

// CreateTestUserWithRole creates a user with the given role and a unique email.
func CreateTestUserWithRole(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return createUser(t, db, email, role)
}

// CreateTestUserWithEmail creates an analyst with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	return createUser(t, db, email, models.RoleAnalyst)
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Name:     "Test User",
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestReport creates a draft report of the given kind authored by createdByID.
func CreateTestReport(t *testing.T, db *gorm.DB, kind models.ReportKind, createdByID string) models.Report {
	t.Helper()
	return CreateTestReportWithStatus(t, db, kind, createdByID, models.ReportStatusDraft)
}

// CreateTestReportWithStatus creates a report of the given kind in the given status.
func CreateTestReportWithStatus(t *testing.T, db *gorm.DB, kind models.ReportKind, createdByID string, status models.ReportStatus) models.Report {
	t.Helper()

	report := models.NewReport(kind)
	if report == nil {
		t.Fatalf("unknown report kind %q", kind)
	}

	received := time.Now().UTC().Truncate(time.Second)
	n := nextID()
	*report.Header() = models.ReportHeader{
		ReportNumber:      fmt.Sprintf("RPT-%05d", n),
		Client:            fmt.Sprintf("Client %d", n),
		SampleDescription: "Test sample",
		ReceivedAt:        &received,
		Status:            status,
		Results:           datatypes.JSON(`{"ph":7.1}`),
		CreatedByID:       createdByID,
	}
	if err := db.Create(report).Error; err != nil {
		t.Fatalf("failed to create test report: %v", err)
	}
	return report
}

// AuditEntries returns every audit entry in insertion order.
func AuditEntries(t *testing.T, db *gorm.DB) []models.AuditLog {
	t.Helper()

	var entries []models.AuditLog
	if err := db.Order("created_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		t.Fatalf("failed to load audit entries: %v", err)
	}
	return entries
}
