package auth_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/session"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

// brokenStore fails every call, standing in for an unreachable session backend.
type brokenStore struct{ kvstore.Store }

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

var _ = Describe("Token verifiers", func() {
	var (
		ctx      context.Context
		now      time.Time
		users    *MockUsers
		resolver *MockResolver
		sessions *session.Store
		tokens   *auth.JWTTokenGenerator
		service  *auth.Service
		dbAuth   *auth.DBAuthoritativeVerifier
		bound    *auth.SessionBoundVerifier
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		users = NewMockUsers()
		resolver = NewMockResolver()
		sessions = session.New(memory.New(0, 0))
		tokens = auth.NewJWTTokenGenerator(testSecret, testIssuer, time.Hour).
			WithClock(func() time.Time { return now })
		service = auth.NewService(users, tokens, sessions, resolver, logger.Discard(), auth.WithBCryptCost(bcrypt.MinCost))
		dbAuth = auth.NewDBAuthoritativeVerifier(tokens, users, sessions, resolver, logger.Discard())
		bound = auth.NewSessionBoundVerifier(tokens, sessions)
	})

	issue := func(userID int64) string {
		resp, err := service.IssueToken(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		return resp.AccessToken
	}

	Describe("shared rejections", func() {
		verifiers := func() []auth.TokenVerifier { return []auth.TokenVerifier{dbAuth, bound} }

		It("rejects a token signed with another secret", func() {
			other := auth.NewJWTTokenGenerator("other-secret", testIssuer, time.Hour)
			forged, _, err := other.Generate(&auth.Identity{UserID: 7, Roles: []string{"ADMIN"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Set(ctx, 7, forged, time.Hour)).To(Succeed())

			for _, v := range verifiers() {
				id, err := v.Verify(ctx, forged)
				Expect(id).To(BeNil())
				Expect(err).To(MatchError(appErrors.ErrInvalidToken), v.Name())
			}
		})

		It("rejects an expired token", func() {
			token := issue(7)
			now = now.Add(2 * time.Hour)

			for _, v := range verifiers() {
				_, err := v.Verify(ctx, token)
				Expect(err).To(MatchError(appErrors.ErrTokenExpired), v.Name())
			}
		})

		It("rejects garbage", func() {
			for _, v := range verifiers() {
				_, err := v.Verify(ctx, "not.a.jwt")
				Expect(err).To(MatchError(appErrors.ErrInvalidToken), v.Name())
			}
		})

		It("rejects a token whose session was revoked", func() {
			token := issue(7)
			Expect(sessions.Delete(ctx, 7)).To(Succeed())

			for _, v := range verifiers() {
				_, err := v.Verify(ctx, token)
				Expect(err).To(MatchError(appErrors.ErrSessionInvalid), v.Name())
			}
		})

		It("fails closed when the session store is unreachable", func() {
			token := issue(7)
			down := session.New(brokenStore{})
			for _, v := range []auth.TokenVerifier{
				auth.NewDBAuthoritativeVerifier(tokens, users, down, resolver, logger.Discard()),
				auth.NewSessionBoundVerifier(tokens, down),
			} {
				_, err := v.Verify(ctx, token)
				appErr, ok := appErrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(appErrors.ErrorTypeUnavailable), v.Name())
			}
		})
	})

	Describe("DBAuthoritativeVerifier", func() {
		It("reflects role and permission changes made after issuance", func() {
			token := issue(7)
			users.SetRoles(7, "POS", "MANAGER")
			resolver.Grant(7, "update:inventory")

			id, err := dbAuth.Verify(ctx, token)

			Expect(err).NotTo(HaveOccurred())
			Expect(id.Verifier).To(Equal(auth.VerifierDBAuthoritative))
			Expect(id.Roles).To(ConsistOf("POS", "MANAGER"))
			Expect(id.Permissions).To(ContainElement("update:inventory"))
		})

		It("accepts any live session, not only the bound token", func() {
			old := issue(7)
			issue(7)

			_, err := dbAuth.Verify(ctx, old)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a deleted user", func() {
			token := issue(7)
			delete(users.users, 7)

			_, err := dbAuth.Verify(ctx, token)
			Expect(err).To(MatchError(appErrors.ErrInvalidToken))
		})

		It("rejects a deactivated user", func() {
			token := issue(7)
			users.users[7].IsActive = false

			_, err := dbAuth.Verify(ctx, token)
			Expect(err).To(MatchError(appErrors.ErrSessionInvalid))
		})

		It("fails closed when the identity store errors", func() {
			token := issue(7)
			users.err = errors.New("db down")

			_, err := dbAuth.Verify(ctx, token)
			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(appErrors.ErrorTypeUnavailable))
		})
	})

	Describe("SessionBoundVerifier", func() {
		It("trusts the claims without touching the identity store or resolver", func() {
			token := issue(7)
			calls := resolver.Calls()
			users.err = errors.New("must not be called")

			id, err := bound.Verify(ctx, token)

			Expect(err).NotTo(HaveOccurred())
			Expect(id.Verifier).To(Equal(auth.VerifierSessionBound))
			Expect(id.Roles).To(Equal([]string{"POS"}))
			Expect(id.Permissions).To(Equal([]string{"read:inventory"}))
			Expect(resolver.Calls()).To(Equal(calls))
		})
	})
})
