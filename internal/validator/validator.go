// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"lims/internal/models"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("report_kind", validateReportKind)
		_ = v.RegisterValidation("report_status", validateReportStatus)
		_ = v.RegisterValidation("user_role", validateUserRole)
	}
}

func validateReportKind(fl validator.FieldLevel) bool {
	return models.NewReport(models.ReportKind(fl.Field().String())) != nil
}

func validateReportStatus(fl validator.FieldLevel) bool {
	switch models.ReportStatus(fl.Field().String()) {
	case models.ReportStatusDraft, models.ReportStatusSubmitted, models.ReportStatusApproved, models.ReportStatusRejected:
		return true
	}
	return false
}

func validateUserRole(fl validator.FieldLevel) bool {
	switch models.UserRole(fl.Field().String()) {
	case models.RoleAdmin, models.RoleSupervisor, models.RoleAnalyst:
		return true
	}
	return false
}
