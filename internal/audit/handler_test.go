package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/audit"
	auditDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/audit"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

type mockAuditRepo struct {
	rows      []*auditDatamodel.AuditLog
	err       error
	lastLimit int
}

func (m *mockAuditRepo) Create(ctx context.Context, log *auditDatamodel.AuditLog) error {
	m.rows = append(m.rows, log)
	return nil
}

func (m *mockAuditRepo) ListRecent(ctx context.Context, limit int) ([]*auditDatamodel.AuditLog, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.rows) {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

var _ = Describe("Audit Handler", func() {
	var (
		repo    *mockAuditRepo
		handler *audit.Handler
	)

	BeforeEach(func() {
		uid := int64(7)
		repo = &mockAuditRepo{rows: []*auditDatamodel.AuditLog{
			{ID: "01J00000000000000000000002", UserID: &uid, Action: "auth.logout", OccurredAt: time.Now()},
			{ID: "01J00000000000000000000001", Action: "auth.login_failed", Details: `{"email":"x@example.com"}`, IPAddress: "10.0.0.1", OccurredAt: time.Now().Add(-time.Minute)},
		}}
		handler = audit.NewHandler(transport.NewBaseHandler(logger.Discard()), repo)
	})

	list := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/audit"+query, nil)
		w := httptest.NewRecorder()
		handler.ListRecent(w, req)
		return w
	}

	It("lists the newest entries with decoded details", func() {
		// When
		w := list("")

		// Then
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(repo.lastLimit).To(Equal(audit.DefaultListLimit))

		var response audit.EntriesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Entries).To(HaveLen(2))
		Expect(response.Entries[0].Action).To(Equal("auth.logout"))
		Expect(*response.Entries[0].UserID).To(Equal(int64(7)))
		Expect(response.Entries[1].UserID).To(BeNil())
		Expect(string(response.Entries[1].Details)).To(MatchJSON(`{"email":"x@example.com"}`))
	})

	It("honours the limit parameter", func() {
		w := list("?limit=1")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(repo.lastLimit).To(Equal(1))
		var response audit.EntriesResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Entries).To(HaveLen(1))
	})

	It("rejects a limit outside the allowed range", func() {
		for _, q := range []string{"?limit=0", "?limit=-3", "?limit=501", "?limit=ten"} {
			w := list(q)
			Expect(w.Code).To(Equal(http.StatusBadRequest), q)
			Expect(w.Body.String()).To(ContainSubstring(string(appErrors.ErrCodeValidationFailed)))
		}
		Expect(repo.lastLimit).To(BeZero())
	})

	It("reports an unreachable store as unavailable", func() {
		repo.err = errors.New("connection refused")

		w := list("")

		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(w.Body.String()).NotTo(ContainSubstring("connection refused"))
	})
})
