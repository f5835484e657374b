// Package audit records every write to a tracked record type as an
// append-only audit entry, attributed to the acting user of the request.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"lims/internal/logger"
	"lims/internal/metrics"
	"lims/internal/models"
	"lims/internal/reqctx"
)

// Operation is the kind of a data-mutating call.
type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpUpsert     Operation = "upsert"
	OpDelete     Operation = "delete"
	OpCreateMany Operation = "createMany"
	OpUpdateMany Operation = "updateMany"
	OpDeleteMany Operation = "deleteMany"
)

var actions = map[Operation]string{
	OpCreate:     "CREATE",
	OpUpdate:     "UPDATE",
	OpUpsert:     "UPSERT",
	OpDelete:     "DELETE",
	OpCreateMany: "CREATE_MANY",
	OpUpdateMany: "UPDATE_MANY",
	OpDeleteMany: "DELETE_MANY",
}

// Action returns the audit action name of the operation, or "" if the
// operation is not a recognized mutation.
func (o Operation) Action() string {
	return actions[o]
}

// Mutating reports whether o is one of the recognized mutating kinds.
func (o Operation) Mutating() bool {
	_, ok := actions[o]
	return ok
}

// Bulk reports whether o addresses records by filter instead of by id.
func (o Operation) Bulk() bool {
	return o == OpCreateMany || o == OpUpdateMany || o == OpDeleteMany
}

func (o Operation) targetsExisting() bool {
	return o == OpUpdate || o == OpDelete || o == OpUpsert
}

func (o Operation) removes() bool {
	return o == OpDelete || o == OpDeleteMany
}

// Call describes one intercepted write.
type Call struct {
	Entity string
	Op     Operation
	// ID identifies the target of a singular update, delete or upsert.
	ID string
	// Lookup fetches the currently persisted state of the target.
	Lookup func(ctx context.Context) (any, error)
}

// Appender persists audit entries.
type Appender interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

// Interceptor wraps writes so each produces exactly one audit entry.
type Interceptor struct {
	store  Appender
	tracer trace.Tracer
}

// NewInterceptor creates an Interceptor that persists entries to store.
func NewInterceptor(store Appender) *Interceptor {
	return &Interceptor{
		store:  store,
		tracer: otel.Tracer("lims/internal/audit"),
	}
}

// Intercept runs next as the primary write described by call and records the
// outcome. The result and error of next are returned unchanged; failures of
// the audit bookkeeping itself are logged and counted, never returned.
func (i *Interceptor) Intercept(ctx context.Context, call Call, next func(ctx context.Context) (any, error)) (any, error) {
	rc, _ := reqctx.Current(ctx)
	if call.Entity == models.AuditLogEntity || !call.Op.Mutating() || rc.SkipAudit {
		return next(ctx)
	}

	action := call.Op.Action()
	start := time.Now()
	defer func() {
		metrics.InterceptDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	ctx, span := i.tracer.Start(ctx, "audit.intercept", trace.WithAttributes(
		attribute.String("audit.entity", call.Entity),
		attribute.String("audit.action", action),
	))
	defer span.End()

	var before any
	if call.Op.targetsExisting() && call.ID != "" && call.Lookup != nil {
		found, err := call.Lookup(ctx)
		if err != nil {
			metrics.AuditBeforeCaptureFailures.WithLabelValues(call.Entity).Inc()
			logger.FromContext(ctx).Debugw("audit before capture failed",
				"entity", call.Entity, "entity_id", call.ID, "error", err)
		} else {
			before = found
		}
	}

	result, err := next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	var after any
	if !call.Op.removes() {
		after = result
	}

	// Attribution may have been patched while next ran.
	rc, _ = reqctx.Current(ctx)
	entry := i.buildEntry(call, rc, before, after, result)
	// The primary write is committed; finish the bookkeeping even if the
	// caller has gone away.
	if err := i.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		metrics.AuditWriteFailures.WithLabelValues(action, call.Entity).Inc()
		logger.FromContext(ctx).Errorw("failed to persist audit entry",
			"error", err,
			"action", action,
			"entity", call.Entity,
			"entity_id", deref(entry.EntityID),
		)
		span.RecordError(err)
		return result, nil
	}
	metrics.AuditEntriesWritten.WithLabelValues(action, call.Entity).Inc()

	return result, nil
}

func (i *Interceptor) buildEntry(call Call, rc reqctx.RequestContext, before, after, result any) *models.AuditLog {
	beforeSnap := Snapshot(before)
	afterSnap := Snapshot(after)

	entityID := snapshotID(afterSnap)
	if entityID == nil {
		entityID = snapshotID(beforeSnap)
	}

	var changes Changes
	if !call.Op.Bulk() && call.Op != OpCreate {
		changes = Diff(beforeSnap, afterSnap)
	}

	return &models.AuditLog{
		Action:    call.Op.Action(),
		Entity:    call.Entity,
		EntityID:  entityID,
		Details:   details(call, entityID, result),
		Changes:   encodeChanges(changes),
		UserID:    nullable(rc.UserID),
		Role:      nullable(rc.Role),
		IPAddress: nullable(rc.IP),
		Reason:    nullable(rc.Reason),
		RequestID: nullable(rc.RequestID),
	}
}

// details renders the short summary of an entry, e.g. "UPDATE ChemistryReport r1"
// or "DELETE_MANY 3 MicroReports".
func details(call Call, entityID *string, result any) string {
	action := call.Op.Action()
	if call.Op.Bulk() {
		if n, ok := result.(int64); ok {
			return fmt.Sprintf("%s %d %s", action, n, inflection.Plural(call.Entity))
		}
		return fmt.Sprintf("%s %s", action, inflection.Plural(call.Entity))
	}
	parts := []string{action, call.Entity}
	if entityID != nil {
		parts = append(parts, *entityID)
	}
	return strings.Join(parts, " ")
}

func snapshotID(snap map[string]any) *string {
	v, ok := snap["id"]
	if !ok || v == nil {
		return nil
	}
	id := fmt.Sprint(v)
	if id == "" {
		return nil
	}
	return &id
}

func encodeChanges(changes Changes) datatypes.JSON {
	if changes == nil {
		return nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
