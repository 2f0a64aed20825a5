package auth

import (
	"context"
	"log/slog"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/telemetry"
)

// Requirement is attached to an operation when its route is registered.
// Roles match if any one is held; every permission must be held.
type Requirement struct {
	Roles       []string
	Permissions []string
}

func (r Requirement) Empty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

type Outcome string

const (
	Allow               Outcome = "allow"
	DenyUnauthenticated Outcome = "deny_unauthenticated"
	DenyForbidden       Outcome = "deny_forbidden"
	DenyUnavailable     Outcome = "deny_unavailable"
)

// Decision is the guard's verdict. Callers branch on Allowed or render Err.
type Decision struct {
	Outcome Outcome
	Reason  string
	// Missing lists the permissions that were denied, if any.
	Missing []string
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Err maps a denial onto the error taxonomy; nil when allowed.
func (d Decision) Err() *appErrors.AppError {
	switch d.Outcome {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return appErrors.ErrMissingToken
	case DenyUnavailable:
		return appErrors.NewUnavailableError("authorization store unavailable", nil)
	}
	if d.Reason == reasonRole {
		return appErrors.ErrInsufficientRole
	}
	return appErrors.ErrInsufficientPermission.WithDetails(map[string]any{"missing": d.Missing})
}

const (
	reasonNoIdentity = "no authenticated identity"
	reasonNoRequire  = "no requirement"
	reasonRole       = "role not held"
	reasonPermission = "permission not granted"
	reasonResolver   = "permission lookup failed"
	reasonClaims     = "granted by token claims"
	reasonResolved   = "granted by resolver"
	reasonRoleOnly   = "role held"
)

// PermissionChecker answers the fallback question for permissions missing
// from the token claims.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, action string) (bool, error)
}

// Guard decides role and permission sufficiency for one request. It holds no
// locks and keeps no state between calls.
type Guard struct {
	checker PermissionChecker
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewGuard(checker PermissionChecker, logger *slog.Logger, metrics *telemetry.Metrics) *Guard {
	return &Guard{checker: checker, logger: logger, metrics: metrics}
}

func (g *Guard) Authorize(ctx context.Context, id *Identity, req Requirement) Decision {
	d := g.decide(ctx, id, req)
	g.metrics.AuthzDecision(string(d.Outcome))
	if !d.Allowed() {
		var userID int64
		if id != nil {
			userID = id.UserID
		}
		g.logger.WarnContext(ctx, "access denied",
			"user_id", userID,
			"outcome", d.Outcome,
			"reason", d.Reason,
			"required_roles", req.Roles,
			"required_permissions", req.Permissions,
			"missing", d.Missing)
	}
	return d
}

func (g *Guard) decide(ctx context.Context, id *Identity, req Requirement) Decision {
	if id == nil {
		return Decision{Outcome: DenyUnauthenticated, Reason: reasonNoIdentity}
	}
	if req.Empty() {
		return Decision{Outcome: Allow, Reason: reasonNoRequire}
	}

	if len(req.Roles) > 0 && !hasAnyRole(id.Roles, req.Roles) {
		return Decision{Outcome: DenyForbidden, Reason: reasonRole}
	}
	if len(req.Permissions) == 0 {
		return Decision{Outcome: Allow, Reason: reasonRoleOnly}
	}

	missing := missingPermissions(id.Permissions, req.Permissions)
	if len(missing) == 0 {
		return Decision{Outcome: Allow, Reason: reasonClaims}
	}

	for _, action := range missing {
		ok, err := g.checker.HasPermission(ctx, id.UserID, action)
		if err != nil {
			g.logger.ErrorContext(ctx, "permission lookup failed", "user_id", id.UserID, "permission", action, "error", err)
			return Decision{Outcome: DenyUnavailable, Reason: reasonResolver, Missing: []string{action}}
		}
		if !ok {
			return Decision{Outcome: DenyForbidden, Reason: reasonPermission, Missing: []string{action}}
		}
	}
	return Decision{Outcome: Allow, Reason: reasonResolved}
}
