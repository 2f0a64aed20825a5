package auth_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var _ = Describe("Guard", func() {
	var (
		ctx      context.Context
		resolver *MockResolver
		guard    *auth.Guard
		cashier  *auth.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		resolver = NewMockResolver()
		guard = auth.NewGuard(resolver, logger.Discard(), nil)
		cashier = &auth.Identity{UserID: 7, Roles: []string{"POS"}, Permissions: []string{"read:inventory"}}
	})

	It("denies a missing identity as unauthenticated", func() {
		d := guard.Authorize(ctx, nil, auth.Requirement{})

		Expect(d.Outcome).To(Equal(auth.DenyUnauthenticated))
		Expect(d.Err()).To(MatchError(appErrors.ErrMissingToken))
	})

	It("allows any authenticated caller when nothing is required", func() {
		d := guard.Authorize(ctx, cashier, auth.Requirement{})
		Expect(d.Allowed()).To(BeTrue())
		Expect(d.Err()).To(BeNil())
	})

	It("allows from token claims without calling the resolver", func() {
		// Given
		req := auth.Requirement{Permissions: []string{"read:inventory"}}

		// When
		d := guard.Authorize(ctx, cashier, req)

		// Then
		Expect(d.Allowed()).To(BeTrue())
		Expect(resolver.Calls()).To(BeZero())
	})

	It("denies a role mismatch regardless of permission claims", func() {
		cashier.Permissions = append(cashier.Permissions, "create:permission", "delete:permission")

		d := guard.Authorize(ctx, cashier, auth.Requirement{
			Roles:       []string{"ADMIN"},
			Permissions: []string{"create:permission"},
		})

		Expect(d.Outcome).To(Equal(auth.DenyForbidden))
		Expect(d.Err()).To(MatchError(appErrors.ErrInsufficientRole))
		Expect(resolver.Calls()).To(BeZero())
	})

	It("matches any one of several roles", func() {
		d := guard.Authorize(ctx, cashier, auth.Requirement{Roles: []string{"ADMIN", "POS"}})
		Expect(d.Allowed()).To(BeTrue())
	})

	It("falls back to the resolver for permissions missing from the claims", func() {
		resolver.Grant(7, "update:inventory")

		d := guard.Authorize(ctx, cashier, auth.Requirement{Permissions: []string{"read:inventory", "update:inventory"}})

		Expect(d.Allowed()).To(BeTrue())
		Expect(resolver.Calls()).To(Equal(1))
	})

	It("requires every permission", func() {
		d := guard.Authorize(ctx, cashier, auth.Requirement{Permissions: []string{"read:inventory", "delete:product"}})

		Expect(d.Outcome).To(Equal(auth.DenyForbidden))
		Expect(d.Missing).To(Equal([]string{"delete:product"}))
		Expect(d.Err()).To(MatchError(appErrors.ErrInsufficientPermission))
	})

	It("fails closed when the resolver errors", func() {
		resolver.err = errors.New("db down")

		d := guard.Authorize(ctx, cashier, auth.Requirement{Permissions: []string{"delete:product"}})

		Expect(d.Outcome).To(Equal(auth.DenyUnavailable))
		Expect(d.Allowed()).To(BeFalse())
		Expect(d.Err().Type).To(Equal(appErrors.ErrorTypeUnavailable))
	})
})
