package models

import (
	"sort"
	"testing"
)

func TestReportStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ReportStatus
		want     bool
	}{
		{ReportStatusDraft, ReportStatusSubmitted, true},
		{ReportStatusDraft, ReportStatusApproved, false},
		{ReportStatusSubmitted, ReportStatusApproved, true},
		{ReportStatusSubmitted, ReportStatusRejected, true},
		{ReportStatusSubmitted, ReportStatusDraft, false},
		{ReportStatusRejected, ReportStatusDraft, true},
		{ReportStatusRejected, ReportStatusSubmitted, true},
		{ReportStatusApproved, ReportStatusDraft, false},
		{ReportStatusApproved, ReportStatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourcesOf(t *testing.T) {
	got := SourcesOf(ReportStatusSubmitted)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != ReportStatusDraft || got[1] != ReportStatusRejected {
		t.Errorf("unexpected sources %v", got)
	}
	if len(SourcesOf(ReportStatusDraft)) != 1 {
		t.Errorf("expected only REJECTED to return to DRAFT")
	}
}

func TestReportStatus_Editable(t *testing.T) {
	for status, want := range map[ReportStatus]bool{
		ReportStatusDraft:     true,
		ReportStatusRejected:  true,
		ReportStatusSubmitted: false,
		ReportStatusApproved:  false,
	} {
		if got := status.Editable(); got != want {
			t.Errorf("%s.Editable() = %v, want %v", status, got, want)
		}
	}
}

func TestNewReport(t *testing.T) {
	if _, ok := NewReport(ReportKindChemistry).(*ChemistryReport); !ok {
		t.Error("expected chemistry report")
	}
	if _, ok := NewReport(ReportKindMicro).(*MicroReport); !ok {
		t.Error("expected micro report")
	}
	if NewReport("physics") != nil {
		t.Error("expected nil for unknown kind")
	}
}
