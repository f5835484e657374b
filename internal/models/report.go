package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReportKind selects the laboratory discipline of a report.
type ReportKind string

const (
	ReportKindChemistry ReportKind = "chemistry"
	ReportKindMicro     ReportKind = "micro"
)

// ReportStatus is the lifecycle state of a test report.
type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "DRAFT"
	ReportStatusSubmitted ReportStatus = "SUBMITTED"
	ReportStatusApproved  ReportStatus = "APPROVED"
	ReportStatusRejected  ReportStatus = "REJECTED"
)

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusDraft:     {ReportStatusSubmitted},
	ReportStatusSubmitted: {ReportStatusApproved, ReportStatusRejected},
	ReportStatusRejected:  {ReportStatusDraft, ReportStatusSubmitted},
}

// CanTransitionTo reports whether a report in status s may move to next.
// APPROVED is final.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may transition to target.
func SourcesOf(target ReportStatus) []ReportStatus {
	var sources []ReportStatus
	for from, nexts := range reportTransitions {
		for _, next := range nexts {
			if next == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// Reviewed reports whether s records a supervisor decision.
func (s ReportStatus) Reviewed() bool {
	return s == ReportStatusApproved || s == ReportStatusRejected
}

// EditableStatuses lists the statuses in which field edits and deletion are allowed.
var EditableStatuses = []ReportStatus{ReportStatusDraft, ReportStatusRejected}

// Editable reports whether field edits and deletion are allowed in status s.
func (s ReportStatus) Editable() bool {
	return s == ReportStatusDraft || s == ReportStatusRejected
}

// ReportHeader holds the columns shared by every report type.
type ReportHeader struct {
	ReportNumber      string         `gorm:"uniqueIndex;not null" json:"report_number"`
	Client            string         `gorm:"not null" json:"client"`
	SampleDescription string         `json:"sample_description"`
	ReceivedAt        *time.Time     `json:"received_at,omitempty"`
	Status            ReportStatus   `gorm:"not null;default:DRAFT;index" json:"status"`
	Results           datatypes.JSON `json:"results,omitempty"`
	Remarks           string         `json:"remarks"`
	CreatedByID       string         `gorm:"type:uuid;index" json:"created_by_id"`
	ReviewedByID      *string        `gorm:"type:uuid" json:"reviewed_by_id"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
}

// Report is implemented by every report record type.
type Report interface {
	GetID() string
	Header() *ReportHeader
	Kind() ReportKind
}

// ChemistryReport records results of a chemical analysis.
type ChemistryReport struct {
	Base
	ReportHeader
	Method string `json:"method"`
}

func (r *ChemistryReport) Header() *ReportHeader { return &r.ReportHeader }
func (r *ChemistryReport) Kind() ReportKind { return ReportKindChemistry }

// MicroReport records results of a microbiology culture.
type MicroReport struct {
	Base
	ReportHeader
	Organism        string `json:"organism"`
	IncubationHours int    `json:"incubation_hours"`
}

func (r *MicroReport) Header() *ReportHeader { return &r.ReportHeader }
func (r *MicroReport) Kind() ReportKind { return ReportKindMicro }

// NewReport returns an empty record of the given kind, or nil if the kind
// is unknown.
func NewReport(kind ReportKind) Report {
	switch kind {
	case ReportKindChemistry:
		return &ChemistryReport{}
	case ReportKindMicro:
		return &MicroReport{}
	}
	return nil
}
