package internal

import (
	"context"
	"time"
)

type ctxKey string

const requestMetaKey ctxKey = "requestMeta"

// RequestMeta carries client details that audit records and logs pick up downstream.
type RequestMeta struct {
	TraceID   string
	IPAddress string
	UserAgent string
}

func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if meta, ok := ctx.Value(requestMetaKey).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}

const actorKey ctxKey = "actor"

// ContextWithActor records the authenticated user acting on the request.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFromContext returns the acting user id, or 0 when the request is anonymous.
func ActorFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if id, ok := ctx.Value(actorKey).(int64); ok {
		return id
	}
	return 0
}
