package audit

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"lims/internal/models"
	"lims/internal/reqctx"
	"lims/internal/testutil"
)

func setupGateway(t *testing.T) (*gorm.DB, *Gateway) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	return db, NewGateway(db, NewInterceptor(NewStore(db)))
}

func newChemistryReport(number string) *models.ChemistryReport {
	return &models.ChemistryReport{
		ReportHeader: models.ReportHeader{
			ReportNumber: number,
			Client:       "Acme",
			Status:       models.ReportStatusDraft,
			CreatedByID:  "00000000-0000-0000-0000-000000000001",
		},
		Method: "ICP-MS",
	}
}

func TestGateway_Create(t *testing.T) {
	db, gw := setupGateway(t)
	ctx := reqctx.With(context.Background(), reqctx.RequestContext{UserID: "u1", Role: "ANALYST"})

	report := newChemistryReport("RPT-1")
	testutil.AssertNoError(t, gw.Create(ctx, report))

	if report.ID == "" {
		t.Fatal("expected report to receive an id")
	}
	entries := testutil.AuditEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != "CREATE" || entry.Entity != "ChemistryReport" {
		t.Errorf("unexpected entry %s %s", entry.Action, entry.Entity)
	}
	if deref(entry.EntityID) != report.ID {
		t.Errorf("expected entity id %s, got %v", report.ID, entry.EntityID)
	}
	if entry.Changes != nil {
		t.Errorf("expected nil changes for create, got %s", entry.Changes)
	}
	if deref(entry.UserID) != "u1" {
		t.Errorf("expected user u1, got %v", entry.UserID)
	}
}

func TestGateway_CreateFailure(t *testing.T) {
	db, gw := setupGateway(t)
	ctx := context.Background()

	testutil.AssertNoError(t, gw.Create(ctx, newChemistryReport("RPT-DUP")))
	if err := gw.Create(ctx, newChemistryReport("RPT-DUP")); err == nil {
		t.Fatal("expected duplicate report number to fail")
	}

	if entries := testutil.AuditEntries(t, db); len(entries) != 1 {
		t.Errorf("expected only the successful create to be audited, got %d", len(entries))
	}
}

func TestGateway_Update(t *testing.T) {
	t.Run("diff excludes bookkeeping fields", func(t *testing.T) {
		db, gw := setupGateway(t)
		ctx := context.Background()
		report := testutil.CreateTestReport(t, db, models.ReportKindChemistry, "u1")

		var updated models.ChemistryReport
		err := gw.Update(ctx, &updated, report.GetID(), map[string]any{"status": models.ReportStatusSubmitted})
		testutil.AssertNoError(t, err)

		if updated.Status != models.ReportStatusSubmitted {
			t.Errorf("expected reloaded status SUBMITTED, got %s", updated.Status)
		}
		entries := testutil.AuditEntries(t, db)
		if len(entries) != 1 {
			t.Fatalf("expected 1 audit entry, got %d", len(entries))
		}
		changes := decodeChanges(t, &entries[0])
		if len(changes) != 1 {
			t.Fatalf("expected only status to change, got %#v", changes)
		}
		if changes["status"].From != "DRAFT" || changes["status"].To != "SUBMITTED" {
			t.Errorf("unexpected status change %#v", changes["status"])
		}
	})

	t.Run("unchanged update still audited", func(t *testing.T) {
		db, gw := setupGateway(t)
		report := testutil.CreateTestReport(t, db, models.ReportKindMicro, "u1")

		var updated models.MicroReport
		err := gw.Update(context.Background(), &updated, report.GetID(), map[string]any{"status": models.ReportStatusDraft})
		testutil.AssertNoError(t, err)

		entries := testutil.AuditEntries(t, db)
		if len(entries) != 1 || entries[0].Action != "UPDATE" {
			t.Fatalf("expected one UPDATE entry, got %+v", entries)
		}
		if entries[0].Changes != nil {
			t.Errorf("expected nil changes, got %s", entries[0].Changes)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		db, gw := setupGateway(t)

		var updated models.ChemistryReport
		err := gw.Update(context.Background(), &updated, "00000000-0000-0000-0000-000000000099", map[string]any{"client": "x"})
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
		if entries := testutil.AuditEntries(t, db); len(entries) != 0 {
			t.Errorf("expected no audit entry, got %d", len(entries))
		}
	})
}

func TestGateway_Guards(t *testing.T) {
	tests := []struct {
		name    string
		stored  models.ReportStatus
		write   func(gw *Gateway, id string) error
		wantErr error
		want    models.ReportStatus
	}{
		{
			name:   "update passes",
			stored: models.ReportStatusSubmitted,
			write: func(gw *Gateway, id string) error {
				return gw.Update(context.Background(), &models.ChemistryReport{}, id,
					map[string]any{"status": models.ReportStatusApproved},
					Where("status = ?", models.ReportStatusSubmitted))
			},
			want: models.ReportStatusApproved,
		},
		{
			name:   "update on moved record",
			stored: models.ReportStatusApproved,
			write: func(gw *Gateway, id string) error {
				return gw.Update(context.Background(), &models.ChemistryReport{}, id,
					map[string]any{"status": models.ReportStatusRejected},
					Where("status = ?", models.ReportStatusSubmitted))
			},
			wantErr: ErrStaleWrite,
			want:    models.ReportStatusApproved,
		},
		{
			name:   "update on missing record",
			stored: models.ReportStatusDraft,
			write: func(gw *Gateway, id string) error {
				return gw.Update(context.Background(), &models.ChemistryReport{}, "00000000-0000-0000-0000-000000000099",
					map[string]any{"client": "x"}, Where("status = ?", models.ReportStatusDraft))
			},
			wantErr: gorm.ErrRecordNotFound,
			want:    models.ReportStatusDraft,
		},
		{
			name:   "delete on moved record",
			stored: models.ReportStatusSubmitted,
			write: func(gw *Gateway, id string) error {
				return gw.Delete(context.Background(), &models.ChemistryReport{}, id,
					Where("status IN ?", models.EditableStatuses))
			},
			wantErr: ErrStaleWrite,
			want:    models.ReportStatusSubmitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, gw := setupGateway(t)
			report := testutil.CreateTestReportWithStatus(t, db, models.ReportKindChemistry, "u1", tt.stored)

			err := tt.write(gw, report.GetID())
			if tt.wantErr == nil {
				testutil.AssertNoError(t, err)
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			var stored models.ChemistryReport
			testutil.AssertNoError(t, db.First(&stored, "id = ?", report.GetID()).Error)
			if stored.Status != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, stored.Status)
			}
			wantEntries := 0
			if tt.wantErr == nil {
				wantEntries = 1
			}
			if entries := testutil.AuditEntries(t, db); len(entries) != wantEntries {
				t.Errorf("expected %d audit entries, got %d", wantEntries, len(entries))
			}
		})
	}
}

func TestGateway_Upsert(t *testing.T) {
	t.Run("inserts then overwrites", func(t *testing.T) {
		db, gw := setupGateway(t)
		ctx := context.Background()

		report := newChemistryReport("RPT-UP")
		report.ID = "00000000-0000-0000-0000-0000000000aa"
		testutil.AssertNoError(t, gw.Upsert(ctx, report))

		again := newChemistryReport("RPT-UP")
		again.ID = report.ID
		again.Client = "Globex"
		testutil.AssertNoError(t, gw.Upsert(ctx, again))

		if again.Client != "Globex" {
			t.Errorf("expected reloaded client Globex, got %s", again.Client)
		}
		entries := testutil.AuditEntries(t, db)
		if len(entries) != 2 {
			t.Fatalf("expected 2 audit entries, got %d", len(entries))
		}
		for _, e := range entries {
			if e.Action != "UPSERT" {
				t.Errorf("expected UPSERT, got %s", e.Action)
			}
		}
		changes := decodeChanges(t, &entries[1])
		if len(changes) != 1 || changes["client"].From != "Acme" || changes["client"].To != "Globex" {
			t.Errorf("expected only client to change, got %#v", changes)
		}
	})

	t.Run("does not revive a deleted record", func(t *testing.T) {
		db, gw := setupGateway(t)
		ctx := context.Background()

		report := newChemistryReport("RPT-GONE")
		testutil.AssertNoError(t, gw.Create(ctx, report))
		testutil.AssertNoError(t, gw.Delete(ctx, &models.ChemistryReport{}, report.ID))

		again := newChemistryReport("RPT-GONE")
		again.ID = report.ID
		if err := gw.Upsert(ctx, again); !errors.Is(err, ErrDeleted) {
			t.Fatalf("expected ErrDeleted, got %v", err)
		}

		var count int64
		db.Model(&models.ChemistryReport{}).Where("id = ?", report.ID).Count(&count)
		if count != 0 {
			t.Error("expected report to stay deleted")
		}
		testutil.AssertAuditActions(t, db, "CREATE", "DELETE")
	})

	t.Run("requires id", func(t *testing.T) {
		_, gw := setupGateway(t)
		err := gw.Upsert(context.Background(), newChemistryReport("RPT-NOID"))
		if !errors.Is(err, ErrMissingID) {
			t.Fatalf("expected ErrMissingID, got %v", err)
		}
	})
}

func TestGateway_Delete(t *testing.T) {
	db, gw := setupGateway(t)
	ctx := context.Background()
	report := testutil.CreateTestReport(t, db, models.ReportKindMicro, "u1")

	testutil.AssertNoError(t, gw.Delete(ctx, &models.MicroReport{}, report.GetID()))

	var count int64
	db.Model(&models.MicroReport{}).Where("id = ?", report.GetID()).Count(&count)
	if count != 0 {
		t.Error("expected report to be deleted")
	}

	entries := testutil.AuditEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Action != "DELETE" || deref(entries[0].EntityID) != report.GetID() {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	err := gw.Delete(ctx, &models.MicroReport{}, report.GetID())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}
	if entries := testutil.AuditEntries(t, db); len(entries) != 1 {
		t.Errorf("failed delete must not be audited, got %d entries", len(entries))
	}
}

func TestGateway_Bulk(t *testing.T) {
	db, gw := setupGateway(t)
	ctx := context.Background()

	reports := []*models.ChemistryReport{
		newChemistryReport("RPT-B1"),
		newChemistryReport("RPT-B2"),
		newChemistryReport("RPT-B3"),
	}
	n, err := gw.CreateMany(ctx, reports)
	testutil.AssertNoError(t, err)
	if n != 3 {
		t.Errorf("expected 3 created, got %d", n)
	}

	n, err = gw.UpdateMany(ctx, &models.ChemistryReport{}, map[string]any{"status": models.ReportStatusSubmitted},
		"report_number IN ?", []string{"RPT-B1", "RPT-B2"})
	testutil.AssertNoError(t, err)
	if n != 2 {
		t.Errorf("expected 2 updated, got %d", n)
	}

	n, err = gw.DeleteMany(ctx, &models.ChemistryReport{}, "status = ?", models.ReportStatusDraft)
	testutil.AssertNoError(t, err)
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	entries := testutil.AuditEntries(t, db)
	want := []struct{ action, details string }{
		{"CREATE_MANY", "CREATE_MANY 3 ChemistryReports"},
		{"UPDATE_MANY", "UPDATE_MANY 2 ChemistryReports"},
		{"DELETE_MANY", "DELETE_MANY 1 ChemistryReports"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Action != w.action || entries[i].Details != w.details {
			t.Errorf("entry %d: got %s %q, want %s %q", i, entries[i].Action, entries[i].Details, w.action, w.details)
		}
		if entries[i].Changes != nil {
			t.Errorf("entry %d: expected nil changes for bulk op", i)
		}
	}
}

func TestGateway_AuditLogNotAudited(t *testing.T) {
	db, gw := setupGateway(t)

	entry := &models.AuditLog{Action: "LOGIN", Entity: "Auth", Details: "manual"}
	testutil.AssertNoError(t, gw.Create(context.Background(), entry))

	entries := testutil.AuditEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("expected only the written entry itself, got %d", len(entries))
	}
	if entries[0].Details != "manual" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestGateway_SkipAudit(t *testing.T) {
	db, gw := setupGateway(t)
	ctx := reqctx.With(context.Background(), reqctx.RequestContext{UserID: "u1"})

	testutil.AssertNoError(t, gw.Create(reqctx.WithSkipAudit(ctx), newChemistryReport("RPT-SKIP")))
	testutil.AssertNoError(t, gw.Create(ctx, newChemistryReport("RPT-KEEP")))

	entries := testutil.AuditEntries(t, db)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
}

func TestGateway_AuditStoreUnavailable(t *testing.T) {
	db, gw := setupGateway(t)
	if err := db.Migrator().DropTable(&models.AuditLog{}); err != nil {
		t.Fatalf("failed to drop audit table: %v", err)
	}

	report := newChemistryReport("RPT-NOAUDIT")
	if err := gw.Create(context.Background(), report); err != nil {
		t.Fatalf("write must succeed when auditing fails, got %v", err)
	}

	var count int64
	db.Model(&models.ChemistryReport{}).Where("id = ?", report.ID).Count(&count)
	if count != 1 {
		t.Error("expected report to be persisted")
	}
}
