package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/audit"
	auditPostgres "github.com/frahmantamala/backoffice/internal/audit/postgres"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/category"
	categoryPostgres "github.com/frahmantamala/backoffice/internal/category/postgres"
	auditDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/audit"
	categoryDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/category"
	permissionDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/user"
	"github.com/frahmantamala/backoffice/internal/discovery"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/permission"
	permissionPostgres "github.com/frahmantamala/backoffice/internal/permission/postgres"
	"github.com/frahmantamala/backoffice/internal/session"
	"github.com/frahmantamala/backoffice/internal/telemetry"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/internal/transport/middleware"
	"github.com/frahmantamala/backoffice/internal/transport/rest"
	"github.com/frahmantamala/backoffice/internal/user"
	userPostgres "github.com/frahmantamala/backoffice/internal/user/postgres"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var _ = Describe("Router", func() {
	var (
		ctx         context.Context
		router      *chi.Mux
		permissions *permission.Service
		adminToken  string
		posToken    string
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(
			&userDatamodel.User{}, &userDatamodel.Role{}, &userDatamodel.UserRole{},
			&permissionDatamodel.Permission{}, &permissionDatamodel.RolePermission{},
			&categoryDatamodel.ProductCategory{}, &auditDatamodel.AuditLog{},
		)).To(Succeed())
		Expect(db.Create(&auditDatamodel.AuditLog{
			ID: "01J00000000000000000000001", Action: "auth.login_failed", OccurredAt: time.Now(),
		}).Error).To(Succeed())

		hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		for _, u := range []userDatamodel.User{
			{ID: 1, Email: "admin@example.com", Name: "Admin", PasswordHash: string(hash), IsActive: true},
			{ID: 7, Email: "cashier@example.com", Name: "Cashier", PasswordHash: string(hash), IsActive: true},
		} {
			Expect(db.Create(&u).Error).To(Succeed())
		}
		Expect(db.Create(&userDatamodel.Role{ID: 1, Name: "ADMIN"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.Role{ID: 2, Name: "POS"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.UserRole{UserID: 1, RoleID: 1}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.UserRole{UserID: 7, RoleID: 2}).Error).To(Succeed())

		lg := logger.Discard()
		reg := prometheus.NewRegistry()
		metrics := telemetry.New(reg, reg)
		users := user.NewService(userPostgres.NewUserRepository(db), lg)
		permissions = permission.NewService(permissionPostgres.NewPermissionRepository(db), users, memory.New(0, 0), lg, permission.WithMetrics(metrics))
		sessions := session.New(memory.New(0, 0))
		tokens := auth.NewJWTTokenGenerator("router-test-secret", "backoffice-test", time.Hour)
		authSvc := auth.NewService(users, tokens, sessions, permissions, lg, auth.WithBCryptCost(bcrypt.MinCost))
		categories := category.NewService(categoryPostgres.NewCategoryRepository(db), lg)

		base := transport.NewBaseHandler(lg)
		router = rest.NewRouter(rest.Dependencies{
			Logger:       lg,
			Metrics:      metrics,
			MetricsPath:  "/metrics",
			LoginLimiter: middleware.NewRateLimiter(100, 100, 100, time.Minute, base),
			Strict:       auth.NewDBAuthoritativeVerifier(tokens, users, sessions, permissions, lg),
			Fast:         auth.NewSessionBoundVerifier(tokens, sessions),
			RBAC:         auth.NewRBACAuthorization(auth.NewGuard(permissions, lg, metrics), base),
			Auth:         auth.NewHandler(base, authSvc),
			Users:        user.NewHandler(base, users, permissions, permissions),
			Permissions:  permission.NewHandler(base, permissions),
			Categories:   category.NewHandler(base, categories),
			Audit:        audit.NewHandler(base, auditPostgres.NewAuditRepository(db)),
		})

		actions := discovery.NewRegistry(permissions, lg, discovery.WithExcludedPrefixes(rest.ExcludedFromDiscovery...))
		_, err = actions.FromRouter(ctx, router)
		Expect(err).NotTo(HaveOccurred())

		admin, err := authSvc.IssueToken(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		adminToken = admin.AccessToken
		pos, err := authSvc.IssueToken(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		posToken = pos.AccessToken
	})

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("discovers a permission for every guarded operation", func() {
		all, err := permissions.AllPermissions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(permission.Actions(all)).To(ContainElements(
			"list:categories", "view:categories", "create:categories", "update:categories", "delete:categories",
			"list:permissions", "update:permissions", "delete:sessions", "list:audits",
		))
		Expect(permission.Actions(all)).NotTo(ContainElement(ContainSubstring("login")))
	})

	It("keeps the admin API behind the ADMIN role", func() {
		Expect(do(http.MethodGet, "/api/v1/permissions", "", "").Code).To(Equal(http.StatusUnauthorized))
		Expect(do(http.MethodGet, "/api/v1/permissions", posToken, "").Code).To(Equal(http.StatusForbidden))
		Expect(do(http.MethodGet, "/api/v1/permissions", adminToken, "").Code).To(Equal(http.StatusOK))
	})

	It("grants a role a permission and the holder can use it at once", func() {
		// Given the cashier is denied, and the denial is cached
		Expect(do(http.MethodGet, "/api/v1/categories", posToken, "").Code).To(Equal(http.StatusForbidden))

		all, err := permissions.AllPermissions(ctx)
		Expect(err).NotTo(HaveOccurred())
		var listID int64
		for _, p := range all {
			if p.Action == "list:categories" {
				listID = p.ID
			}
		}
		Expect(listID).NotTo(BeZero())

		// When the admin grants it to POS
		path := "/api/v1/roles/2/permissions/" + itoa(listID)
		Expect(do(http.MethodPut, path, adminToken, "").Code).To(Equal(http.StatusNoContent))

		// Then the same token is allowed through the resolver fallback
		Expect(do(http.MethodGet, "/api/v1/categories", posToken, "").Code).To(Equal(http.StatusOK))
	})

	It("serves the caller's profile", func() {
		rec := do(http.MethodGet, "/api/v1/users/me", posToken, "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"cashier@example.com"`))
	})

	It("force-logs-out another user", func() {
		Expect(do(http.MethodDelete, "/api/v1/users/7/session", adminToken, "").Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodGet, "/api/v1/users/me", posToken, "").Code).To(Equal(http.StatusUnauthorized))
	})

	It("answers 404 when force-logging-out an unknown user", func() {
		rec := do(http.MethodDelete, "/api/v1/users/999/session", adminToken, "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring(string(appErrors.ErrCodeUserNotFound)))
	})

	It("serves the audit trail to administrators only", func() {
		Expect(do(http.MethodGet, "/api/v1/audit", posToken, "").Code).To(Equal(http.StatusForbidden))

		rec := do(http.MethodGet, "/api/v1/audit?limit=10", adminToken, "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"auth.login_failed"`))
	})

	It("exposes metrics", func() {
		do(http.MethodGet, "/api/v1/permissions", posToken, "")
		rec := do(http.MethodGet, "/metrics", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("backoffice_authz_decisions_total"))
	})
})

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
