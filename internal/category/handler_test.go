package category_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/backoffice/internal/category"
	categoryPostgres "github.com/frahmantamala/backoffice/internal/category/postgres"
	categoryDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/category"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var _ = Describe("Category Handler Integration", func() {
	var router *chi.Mux

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&categoryDatamodel.ProductCategory{})).To(Succeed())

		repo := categoryPostgres.NewCategoryRepository(db)
		service := category.NewService(repo, logger.Discard())
		handler := category.NewHandler(transport.NewBaseHandler(logger.Discard()), service)

		for _, name := range []string{"Beverages", "Snacks"} {
			_, err := service.Create(context.Background(), category.CreateCategoryDTO{Name: name, Description: name + " aisle"})
			Expect(err).NotTo(HaveOccurred())
		}

		router = chi.NewRouter()
		router.Get("/categories", handler.GetCategories)
		router.Post("/categories", handler.CreateCategory)
		router.Get("/categories/{id}", handler.GetCategory)
		router.Put("/categories/{id}", handler.UpdateCategory)
		router.Delete("/categories/{id}", handler.DeleteCategory)
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("lists active categories as JSON", func() {
		w := serve(http.MethodGet, "/categories", "")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response category.CategoriesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Categories).To(HaveLen(2))
		Expect(response.Categories[0].Name).To(Equal("Beverages"))
	})

	It("creates, updates, views and deactivates", func() {
		w := serve(http.MethodPost, "/categories", `{"name":"Frozen","description":"cold"}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		var created category.Category
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())

		path := "/categories/" + strconv.FormatInt(created.ID, 10)
		Expect(serve(http.MethodPut, path, `{"description":"frozen food"}`).Code).To(Equal(http.StatusOK))

		w = serve(http.MethodGet, path, "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("frozen food"))

		Expect(serve(http.MethodDelete, path, "").Code).To(Equal(http.StatusNoContent))

		var response category.CategoriesResponse
		Expect(json.NewDecoder(serve(http.MethodGet, "/categories", "").Body).Decode(&response)).To(Succeed())
		Expect(response.Categories).To(HaveLen(2))
	})

	It("maps errors onto status codes", func() {
		Expect(serve(http.MethodGet, "/categories/999", "").Code).To(Equal(http.StatusNotFound))
		Expect(serve(http.MethodGet, "/categories/abc", "").Code).To(Equal(http.StatusBadRequest))
		Expect(serve(http.MethodPost, "/categories", `{"name":"Snacks"}`).Code).To(Equal(http.StatusConflict))
		Expect(serve(http.MethodPost, "/categories", `{"name":`).Code).To(Equal(http.StatusBadRequest))
	})
})
