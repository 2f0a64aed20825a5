package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/transport/rest"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

type downStore struct{ kvstore.Store }

func (downStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

var _ = Describe("Health", func() {
	var (
		mock sqlmock.Sqlmock
		db   *sqlx.DB
	)

	BeforeEach(func() {
		raw, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())
		mock = m
		db = sqlx.NewDb(raw, "sqlmock")
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	get := func(deps rest.Dependencies, path string) *httptest.ResponseRecorder {
		deps.Logger = logger.Discard()
		router := rest.NewRouter(deps)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("reports healthy when the database and cache answer", func() {
		mock.ExpectPing()

		rec := get(rest.Dependencies{DB: db, Cache: memory.New(0, 0)}, "/api/v1/health")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(rest.HealthHealthy))
		Expect(resp.Components).To(HaveKey("postgres"))
		Expect(resp.Components).To(HaveKey("cache"))
	})

	It("reports unavailable when the database ping fails", func() {
		mock.ExpectPing().WillReturnError(errors.New("connection reset"))

		rec := get(rest.Dependencies{DB: db}, "/api/v1/health")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Body.String()).To(ContainSubstring("connection reset"))
	})

	It("reports unavailable when the cache is unreachable", func() {
		mock.ExpectPing()

		rec := get(rest.Dependencies{DB: db, Cache: downStore{}}, "/api/v1/health")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("answers ping without touching dependencies", func() {
		rec := get(rest.Dependencies{DB: db}, "/api/v1/ping")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Trace-ID")).NotTo(BeEmpty())
	})
})
