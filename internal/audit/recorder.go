package audit

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"lims/internal/logger"
	"lims/internal/metrics"
	"lims/internal/models"
	"lims/internal/reqctx"
)

// Authentication event actions.
const (
	ActionLogin          = "LOGIN"
	ActionLoginFailed    = "LOGIN_FAILED"
	ActionLogout         = "LOGOUT"
	ActionPasswordChange = "PASSWORD_CHANGE"
)

// authEntity is the entity name of authentication events.
const authEntity = "Auth"

// AuthEvent is an authentication event that is not a record write.
// Empty UserID, Role and IP fall back to the active request context.
type AuthEvent struct {
	Action   string
	UserID   string
	Role     string
	IP       string
	EntityID string
	Details  string
	Meta     map[string]any
}

// Recorder writes authentication events straight to the audit store.
type Recorder struct {
	store Appender
}

// NewRecorder creates a Recorder on store.
func NewRecorder(store Appender) *Recorder {
	return &Recorder{store: store}
}

// Record persists event. Failures are logged and counted only; the
// authentication outcome is never changed by them.
func (r *Recorder) Record(ctx context.Context, event AuthEvent) {
	rc, _ := reqctx.Current(ctx)
	if event.UserID == "" {
		event.UserID = rc.UserID
	}
	if event.Role == "" {
		event.Role = rc.Role
	}
	if event.IP == "" {
		event.IP = rc.IP
	}
	if event.EntityID == "" {
		event.EntityID = event.UserID
	}
	if event.Details == "" {
		event.Details = strings.TrimSpace(event.Action + " " + event.EntityID)
	}

	entry := &models.AuditLog{
		Action:    event.Action,
		Entity:    authEntity,
		EntityID:  nullable(event.EntityID),
		Details:   event.Details,
		Changes:   encodeMeta(event.Meta),
		UserID:    nullable(event.UserID),
		Role:      nullable(event.Role),
		IPAddress: nullable(event.IP),
		Reason:    nullable(rc.Reason),
		RequestID: nullable(rc.RequestID),
	}

	if err := r.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		metrics.AuditWriteFailures.WithLabelValues(event.Action, authEntity).Inc()
		logger.FromContext(ctx).Errorw("failed to record auth event",
			"error", err,
			"action", event.Action,
			"entity_id", event.EntityID,
		)
		return
	}
	metrics.AuthEventsRecorded.WithLabelValues(event.Action).Inc()
}

func encodeMeta(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
