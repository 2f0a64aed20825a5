package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/backoffice/internal/auth"
	permissionDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/user"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/permission"
	permissionPostgres "github.com/frahmantamala/backoffice/internal/permission/postgres"
	"github.com/frahmantamala/backoffice/internal/session"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/internal/user"
	userPostgres "github.com/frahmantamala/backoffice/internal/user/postgres"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var _ = Describe("Auth HTTP flow", func() {
	var (
		ctx      context.Context
		sessions *session.Store
		router   *chi.Mux
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
		)).To(Succeed())

		// Given user 7 holding POS, and POS granted read:inventory
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Create(&userDatamodel.User{ID: 7, Email: "cashier@example.com", Name: "Cashier", PasswordHash: string(hash), IsActive: true}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.Role{ID: 1, Name: "ADMIN"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.Role{ID: 2, Name: "POS"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.UserRole{UserID: 7, RoleID: 2}).Error).To(Succeed())
		Expect(db.Create(&permissionDatamodel.Permission{ID: 1, Action: "read:inventory"}).Error).To(Succeed())
		Expect(db.Create(&permissionDatamodel.RolePermission{RoleID: 2, PermissionID: 1}).Error).To(Succeed())

		lg := logger.Discard()
		users := user.NewService(userPostgres.NewUserRepository(db), lg)
		resolver := permission.NewService(permissionPostgres.NewPermissionRepository(db), users, memory.New(0, 0), lg)
		sessions = session.New(memory.New(0, 0))
		tokens := auth.NewJWTTokenGenerator(testSecret, testIssuer, time.Hour)
		service := auth.NewService(users, tokens, sessions, resolver, lg, auth.WithBCryptCost(bcrypt.MinCost))

		base := transport.NewBaseHandler(lg)
		handler := auth.NewHandler(base, service)
		rbac := auth.NewRBACAuthorization(auth.NewGuard(resolver, lg, nil), base)
		authn := auth.Authenticate(auth.NewSessionBoundVerifier(tokens, sessions), base)

		ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		router = chi.NewRouter()
		router.Post("/auth/login", handler.Login)
		router.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/auth/logout", handler.Logout)
			r.With(rbac.RequirePermissions("read:inventory")).Get("/inventory", ok)
			r.With(rbac.RequireRoles("ADMIN")).Get("/admin", ok)
		})
	})

	do := func(method, path, token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("logs in, authorizes, forbids, logs out and then rejects the token", func() {
		// When logging in
		rec := do(http.MethodPost, "/auth/login", "", auth.LoginDTO{Email: "cashier@example.com", Password: password})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp auth.TokenResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.User.Roles).To(Equal([]string{"POS"}))
		Expect(resp.User.Permissions).To(Equal([]string{"read:inventory"}))

		// Then the session holds the token under key 7
		stored, err := sessions.Get(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(resp.AccessToken))

		Expect(do(http.MethodGet, "/inventory", resp.AccessToken, nil).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodGet, "/admin", resp.AccessToken, nil).Code).To(Equal(http.StatusForbidden))

		// When logging out
		Expect(do(http.MethodPost, "/auth/logout", resp.AccessToken, nil).Code).To(Equal(http.StatusNoContent))
		_, err = sessions.Get(ctx, 7)
		Expect(err).To(MatchError(session.ErrNoSession))

		// Then the same token is unauthenticated
		Expect(do(http.MethodGet, "/inventory", resp.AccessToken, nil).Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects requests without a bearer token", func() {
		Expect(do(http.MethodGet, "/inventory", "", nil).Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects bad credentials with 401", func() {
		rec := do(http.MethodPost, "/auth/login", "", auth.LoginDTO{Email: "cashier@example.com", Password: "wrong"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
