package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/internal/transport/middleware"
	"github.com/frahmantamala/backoffice/internal/transport/rest"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

type rejectingAuth struct{}

func (rejectingAuth) Login(context.Context, auth.LoginDTO) (*auth.TokenResponse, error) {
	return nil, appErrors.ErrInvalidCredentials
}

func (rejectingAuth) Refresh(context.Context, *auth.Identity) (*auth.TokenResponse, error) {
	return nil, appErrors.ErrInvalidToken
}

func (rejectingAuth) InvalidateSession(context.Context, int64) error { return nil }

func (rejectingAuth) ForceLogout(context.Context, int64) error { return nil }

var _ = Describe("Login limiter and forwarding headers", func() {
	build := func(trustProxy bool) http.Handler {
		lg := logger.Discard()
		base := transport.NewBaseHandler(lg)
		return rest.NewRouter(rest.Dependencies{
			Logger:       lg,
			TrustProxy:   trustProxy,
			LoginLimiter: middleware.NewRateLimiter(0.001, 1, 100, time.Minute, base),
			Auth:         auth.NewHandler(base, rejectingAuth{}),
		})
	}

	login := func(h http.Handler, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	It("ignores X-Forwarded-For by default so a client cannot pick a fresh bucket", func() {
		// Given a router that does not trust forwarding headers
		h := build(false)

		// When one socket spends its only token and retries under a new forwarded address
		Expect(login(h, "10.0.0.1")).To(Equal(http.StatusUnauthorized))
		code := login(h, "10.0.0.2")

		// Then the retry is still limited
		Expect(code).To(Equal(http.StatusTooManyRequests))
	})

	It("keys the limiter on the forwarded address behind a trusted proxy", func() {
		// Given a router deployed behind a proxy that sets X-Forwarded-For
		h := build(true)

		// When two different clients arrive through the same proxy
		Expect(login(h, "10.0.0.1")).To(Equal(http.StatusUnauthorized))
		code := login(h, "10.0.0.2")

		// Then each has its own bucket
		Expect(code).To(Equal(http.StatusUnauthorized))
		Expect(login(h, "10.0.0.1")).To(Equal(http.StatusTooManyRequests))
	})
})
