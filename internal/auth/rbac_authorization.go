package auth

import (
	"net/http"

	"github.com/frahmantamala/backoffice/internal/transport"
)

// RBACAuthorization turns guard decisions into HTTP middleware.
type RBACAuthorization struct {
	guard *Guard
	base  *transport.BaseHandler
}

func NewRBACAuthorization(guard *Guard, base *transport.BaseHandler) *RBACAuthorization {
	return &RBACAuthorization{guard: guard, base: base}
}

func (ra *RBACAuthorization) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())

			decision := ra.guard.Authorize(r.Context(), id, req)
			if !decision.Allowed() {
				ra.base.WriteAppError(w, decision.Err())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return ra.Require(Requirement{Roles: roles})
}

func (ra *RBACAuthorization) RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return ra.Require(Requirement{Permissions: permissions})
}
