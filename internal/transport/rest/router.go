package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/backoffice/internal/audit"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/category"
	"github.com/frahmantamala/backoffice/internal/discovery"
	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/permission"
	"github.com/frahmantamala/backoffice/internal/telemetry"
	"github.com/frahmantamala/backoffice/internal/transport/middleware"
	"github.com/frahmantamala/backoffice/internal/transport/swagger"
	"github.com/frahmantamala/backoffice/internal/user"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

const (
	APIPrefix = "/api/v1"
	RoleAdmin = "ADMIN"
)

// ExcludedFromDiscovery lists path prefixes that never become permissions:
// public endpoints, the caller's own session and profile, and tooling.
var ExcludedFromDiscovery = []string{
	APIPrefix + "/health",
	APIPrefix + "/ping",
	APIPrefix + "/auth",
	APIPrefix + "/users/me",
	"/swagger",
	"/openapi.yml",
	"/metrics",
}

// Dependencies carries everything the router mounts. Handlers left nil are
// not mounted.
type Dependencies struct {
	DB      *sqlx.DB
	Cache   kvstore.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	AllowedOrigins []string
	// TrustProxy lets forwarding headers set the client address that the
	// login limiter and audit entries see.
	TrustProxy bool
	OpenAPISpec    string
	MetricsPath    string

	LoginLimiter *middleware.RateLimiter
	// Strict reloads the user on every request; Fast trusts the session-bound claims.
	Strict auth.TokenVerifier
	Fast   auth.TokenVerifier
	RBAC   *auth.RBACAuthorization

	Auth        *auth.Handler
	Users       *user.Handler
	Permissions *permission.Handler
	Categories  *category.Handler
	Audit       *audit.Handler
}

func NewRouter(deps Dependencies) *chi.Mux {
	if deps.Logger == nil {
		deps.Logger = logger.LoggerWrapper()
	}
	router := chi.NewRouter()
	RegisterAllRoutes(router, deps)
	return router
}

func RegisterAllRoutes(router *chi.Mux, deps Dependencies) {
	healthHandler := NewHealthHandler(deps.DB, deps.Cache)

	// Apply global middleware
	router.Use(cors.Handler(corsOptions(deps.AllowedOrigins)))
	if deps.TrustProxy {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID(deps.Logger))
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(deps.Metrics.Instrument)

	if deps.OpenAPISpec != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, deps.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}
	if deps.MetricsPath != "" {
		router.Method(http.MethodGet, deps.MetricsPath, deps.Metrics.Handler())
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if deps.Auth != nil {
			r.Route("/auth", func(ar chi.Router) {
				login := http.HandlerFunc(deps.Auth.Login)
				if deps.LoginLimiter != nil {
					ar.Method(http.MethodPost, "/login", deps.LoginLimiter.Middleware(login))
				} else {
					ar.Post("/login", login)
				}

				ar.Group(func(sr chi.Router) {
					sr.Use(auth.Authenticate(deps.Fast, deps.Auth.BaseHandler))
					sr.Post("/refresh", deps.Auth.Refresh)
					sr.Post("/logout", deps.Auth.Logout)
				})
			})
		}

		if deps.Categories != nil {
			r.Group(func(cr chi.Router) {
				cr.Use(auth.Authenticate(deps.Fast, deps.Categories.BaseHandler))
				guarded(cr, deps.RBAC, http.MethodGet, "/categories", deps.Categories.GetCategories)
				guarded(cr, deps.RBAC, http.MethodPost, "/categories", deps.Categories.CreateCategory)
				guarded(cr, deps.RBAC, http.MethodGet, "/categories/{id}", deps.Categories.GetCategory)
				guarded(cr, deps.RBAC, http.MethodPut, "/categories/{id}", deps.Categories.UpdateCategory)
				guarded(cr, deps.RBAC, http.MethodDelete, "/categories/{id}", deps.Categories.DeleteCategory)
			})
		}

		if deps.Users != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(auth.Authenticate(deps.Strict, deps.Users.BaseHandler))
				pr.Get("/users/me", deps.Users.GetCurrentUser)
			})
		}

		if deps.Permissions != nil && deps.Users != nil && deps.Auth != nil {
			r.Group(func(admin chi.Router) {
				admin.Use(auth.Authenticate(deps.Strict, deps.Permissions.BaseHandler))
				admin.Use(deps.RBAC.RequireRoles(RoleAdmin))

				admin.Get("/permissions", deps.Permissions.ListPermissions)
				admin.Post("/permissions", deps.Permissions.CreatePermission)
				admin.Get("/permissions/{id}", deps.Permissions.GetPermission)
				admin.Put("/permissions/{id}", deps.Permissions.UpdatePermission)
				admin.Delete("/permissions/{id}", deps.Permissions.DeletePermission)

				admin.Get("/roles", deps.Users.ListRoles)
				admin.Post("/roles", deps.Users.CreateRole)
				admin.Get("/roles/{id}/permissions", deps.Permissions.ListRolePermissions)
				admin.Put("/roles/{id}/permissions/{permissionId}", deps.Permissions.AssignPermissionToRole)
				admin.Delete("/roles/{id}/permissions/{permissionId}", deps.Permissions.RemovePermissionFromRole)

				admin.Put("/users/{id}/roles/{roleId}", deps.Users.AssignRole)
				admin.Delete("/users/{id}/roles/{roleId}", deps.Users.RemoveRole)
				admin.Delete("/users/{id}/session", deps.Auth.ForceLogout)

				if deps.Audit != nil {
					admin.Get("/audit", deps.Audit.ListRecent)
				}
			})
		}
	})
}

// guarded mounts h behind the permission that discovery derives for the same
// route, so the requirement and the catalog entry cannot drift apart.
func guarded(r chi.Router, rbac *auth.RBACAuthorization, method, pattern string, h http.HandlerFunc) {
	action, ok := discovery.DeriveAction(method, APIPrefix+pattern)
	if !ok {
		panic(fmt.Sprintf("no permission derivable for %s %s", method, pattern))
	}
	r.With(rbac.RequirePermissions(action)).Method(method, pattern, h)
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.TraceHeader},
		ExposedHeaders:   []string{middleware.TraceHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}
}
