package user_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/internal/user"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

type MockPermissions struct {
	err error
}

func (m *MockPermissions) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []string{"read:inventory"}, nil
}

type MockAssigner struct {
	assigned [][2]int64
	removed  [][2]int64
}

func (m *MockAssigner) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if roleID == 99 {
		return appErrors.ErrRoleNotFound
	}
	m.assigned = append(m.assigned, [2]int64{userID, roleID})
	return nil
}

func (m *MockAssigner) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	m.removed = append(m.removed, [2]int64{userID, roleID})
	return nil
}

var _ = Describe("UserHandler", func() {
	var (
		perms    *MockPermissions
		assigner *MockAssigner
		router   *chi.Mux
	)

	BeforeEach(func() {
		perms = &MockPermissions{}
		assigner = &MockAssigner{}
		svc := user.NewService(NewMockRepository(), logger.Discard())
		h := user.NewHandler(transport.NewBaseHandler(logger.Discard()), svc, perms, assigner)

		router = chi.NewRouter()
		router.Get("/users/me", h.GetCurrentUser)
		router.Get("/roles", h.ListRoles)
		router.Post("/roles", h.CreateRole)
		router.Put("/users/{id}/roles/{roleId}", h.AssignRole)
		router.Delete("/users/{id}/roles/{roleId}", h.RemoveRole)
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	asUser := func(req *http.Request, id int64) *http.Request {
		return req.WithContext(appErrors.ContextWithActor(req.Context(), id))
	}

	Describe("GET /users/me", func() {
		It("returns the caller's profile with permissions", func() {
			rec := serve(asUser(httptest.NewRequest(http.MethodGet, "/users/me", nil), 7))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["email"]).To(Equal("cashier@example.com"))
			Expect(body["permissions"]).To(ConsistOf("read:inventory"))
			Expect(body).NotTo(HaveKey("password_hash"))
		})

		It("is unauthorized without an actor", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/users/me", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("fails closed when permissions cannot be resolved", func() {
			perms.err = errors.New("db down")
			rec := serve(asUser(httptest.NewRequest(http.MethodGet, "/users/me", nil), 7))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	It("creates a role", func() {
		req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"MANAGER"}`))
		rec := serve(req)
		Expect(rec.Code).To(Equal(http.StatusCreated))
	})

	It("rejects unknown fields in the body", func() {
		req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"MANAGER","admin":true}`))
		Expect(serve(req).Code).To(Equal(http.StatusBadRequest))
	})

	Describe("role membership", func() {
		It("assigns and removes", func() {
			Expect(serve(httptest.NewRequest(http.MethodPut, "/users/7/roles/1", nil)).Code).To(Equal(http.StatusNoContent))
			Expect(serve(httptest.NewRequest(http.MethodDelete, "/users/7/roles/1", nil)).Code).To(Equal(http.StatusNoContent))
			Expect(assigner.assigned).To(Equal([][2]int64{{7, 1}}))
			Expect(assigner.removed).To(Equal([][2]int64{{7, 1}}))
		})

		It("maps an unknown role to 404", func() {
			Expect(serve(httptest.NewRequest(http.MethodPut, "/users/7/roles/99", nil)).Code).To(Equal(http.StatusNotFound))
		})

		It("rejects a non-numeric id", func() {
			Expect(serve(httptest.NewRequest(http.MethodPut, "/users/abc/roles/1", nil)).Code).To(Equal(http.StatusBadRequest))
		})
	})
})
