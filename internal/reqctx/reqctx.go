// Package reqctx carries per-request attribution (acting user, role, client IP,
// change reason, e-sign credential) through everything a request triggers.
//
// The active RequestContext lives in a holder stored on context.Context. All
// goroutines started from a request's context share that holder, so a Patch
// made by a later middleware is visible to the whole flow, while unrelated
// requests never share a holder.
package reqctx

import (
	"context"
	"sync"
)

// RequestContext is the attribution metadata of one logical request. It is
// never persisted as-is.
type RequestContext struct {
	UserID        string
	Role          string
	IP            string
	Reason        string
	ESignPassword string
	RequestID     string
	SkipAudit     bool
}

type holderKey struct{}

type holder struct {
	mu sync.RWMutex
	rc RequestContext
}

func (h *holder) load() RequestContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rc
}

func (h *holder) merge(partial RequestContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rc = merged(h.rc, partial)
}

// merged returns base with every non-zero field of partial applied.
func merged(base, partial RequestContext) RequestContext {
	if partial.UserID != "" {
		base.UserID = partial.UserID
	}
	if partial.Role != "" {
		base.Role = partial.Role
	}
	if partial.IP != "" {
		base.IP = partial.IP
	}
	if partial.Reason != "" {
		base.Reason = partial.Reason
	}
	if partial.ESignPassword != "" {
		base.ESignPassword = partial.ESignPassword
	}
	if partial.RequestID != "" {
		base.RequestID = partial.RequestID
	}
	if partial.SkipAudit {
		base.SkipAudit = true
	}
	return base
}

func holderFrom(ctx context.Context) *holder {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(holderKey{}).(*holder)
	return h
}

// With returns a context whose active RequestContext is rc. The returned
// context gets its own holder, so it does not affect the parent flow.
func With(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, holderKey{}, &holder{rc: rc})
}

// Run executes fn with rc as the active context for everything fn triggers.
func Run(ctx context.Context, rc RequestContext, fn func(ctx context.Context) error) error {
	return fn(With(ctx, rc))
}

// RunValue is Run for work that produces a value.
func RunValue[T any](ctx context.Context, rc RequestContext, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(With(ctx, rc))
}

// Current returns a copy of the active RequestContext. ok is false when no
// request context is active, e.g. in background jobs.
func Current(ctx context.Context) (rc RequestContext, ok bool) {
	h := holderFrom(ctx)
	if h == nil {
		return RequestContext{}, false
	}
	return h.load(), true
}

// Patch merges the non-zero fields of partial into the active context and
// returns ctx unchanged. Without an active context it establishes a new one
// and returns the derived context, which callers must use from then on.
// Branches that already copied the previous context are not updated.
func Patch(ctx context.Context, partial RequestContext) context.Context {
	if h := holderFrom(ctx); h != nil {
		h.merge(partial)
		return ctx
	}
	return With(ctx, partial)
}

// WithSkipAudit returns a context, scoped to the returned value, in which
// writes are not recorded. The caller's flow keeps auditing.
func WithSkipAudit(ctx context.Context) context.Context {
	rc, _ := Current(ctx)
	rc.SkipAudit = true
	return With(ctx, rc)
}
