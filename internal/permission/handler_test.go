package permission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/permission"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var _ = Describe("Permission Handler", func() {
	var (
		router  *chi.Mux
		service *permission.Service
	)

	BeforeEach(func() {
		service = permission.NewService(NewMockCatalog(), NewMockDirectory(1, 2), memory.New(100, time.Hour), logger.Discard())
		handler := permission.NewHandler(transport.NewBaseHandler(logger.Discard()), service)

		router = chi.NewRouter()
		router.Get("/permissions", handler.ListPermissions)
		router.Post("/permissions", handler.CreatePermission)
		router.Get("/permissions/{id}", handler.GetPermission)
		router.Put("/permissions/{id}", handler.UpdatePermission)
		router.Delete("/permissions/{id}", handler.DeletePermission)
		router.Get("/roles/{id}/permissions", handler.ListRolePermissions)
		router.Put("/roles/{id}/permissions/{permissionId}", handler.AssignPermissionToRole)
		router.Delete("/roles/{id}/permissions/{permissionId}", handler.RemovePermissionFromRole)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("creates a permission with 201 and returns the existing row with 200", func() {
		rec := do(http.MethodPost, "/permissions", `{"action":"list:products","description":"List products"}`)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var created permission.Permission
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.Action).To(Equal("list:products"))

		rec = do(http.MethodPost, "/permissions", `{"action":"list:products"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = do(http.MethodGet, "/permissions", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		var list permission.PermissionsResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(Succeed())
		Expect(list.Permissions).To(HaveLen(1))
	})

	It("rejects an invalid body with 400", func() {
		rec := do(http.MethodPost, "/permissions", `{"action":`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(http.MethodPost, "/permissions", `{"action":"not a permission"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 for unknown ids", func() {
		rec := do(http.MethodGet, "/permissions/77", "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring("PERMISSION_NOT_FOUND"))

		rec = do(http.MethodPut, "/roles/9/permissions/1", "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring("ROLE_NOT_FOUND"))
	})

	It("returns 400 for a malformed id", func() {
		rec := do(http.MethodDelete, "/permissions/abc", "")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("assigns, lists and removes role permissions", func() {
		p, _, err := service.CreatePermission(context.Background(), permission.CreatePermissionDTO{Action: "read:inventory"})
		Expect(err).NotTo(HaveOccurred())

		rec := do(http.MethodPut, "/roles/2/permissions/"+itoa(p.ID), "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		rec = do(http.MethodGet, "/roles/2/permissions", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("read:inventory"))

		rec = do(http.MethodDelete, "/roles/2/permissions/"+itoa(p.ID), "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		rec = do(http.MethodGet, "/roles/2/permissions", "")
		Expect(rec.Body.String()).NotTo(ContainSubstring("read:inventory"))
	})

	It("updates and deletes a permission", func() {
		p, _, err := service.CreatePermission(context.Background(), permission.CreatePermissionDTO{Action: "read:inventory"})
		Expect(err).NotTo(HaveOccurred())

		rec := do(http.MethodPut, "/permissions/"+itoa(p.ID), `{"description":"Read stock levels"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Read stock levels"))

		rec = do(http.MethodDelete, "/permissions/"+itoa(p.ID), "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		rec = do(http.MethodGet, "/permissions/"+itoa(p.ID), "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
