package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/session"
)

const (
	VerifierDBAuthoritative = "db_authoritative"
	VerifierSessionBound    = "session_bound"
)

// TokenVerifier turns a bearer token into an Identity. Every rejection is an
// *AppError; a nil Identity is never returned without an error.
type TokenVerifier interface {
	Name() string
	Verify(ctx context.Context, token string) (*Identity, error)
}

// DBAuthoritativeVerifier reloads the user and resolves permissions fresh on
// every request. The session only has to exist; it is not compared with the token.
type DBAuthoritativeVerifier struct {
	tokens   *JWTTokenGenerator
	users    UserDirectory
	sessions SessionStore
	resolver PermissionResolver
	logger   *slog.Logger
}

func NewDBAuthoritativeVerifier(tokens *JWTTokenGenerator, users UserDirectory, sessions SessionStore, resolver PermissionResolver, logger *slog.Logger) *DBAuthoritativeVerifier {
	return &DBAuthoritativeVerifier{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
	}
}

func (v *DBAuthoritativeVerifier) Name() string { return VerifierDBAuthoritative }

func (v *DBAuthoritativeVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()

	u, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidToken.WithCause(err)
		}
		return nil, appErrors.NewUnavailableError("identity store unavailable", err)
	}
	if !u.IsActive {
		return nil, appErrors.ErrSessionInvalid.WithCause(appErrors.ErrUserInactive)
	}

	if _, err := v.sessions.Get(ctx, userID); err != nil {
		return nil, sessionError(err)
	}

	perms, err := v.resolver.UserPermissions(ctx, userID)
	if err != nil {
		v.logger.Error("permission resolution failed during verification", "user_id", userID, "error", err)
		return nil, appErrors.NewUnavailableError("permission store unavailable", err)
	}

	return &Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Roles:       u.Roles,
		Permissions: perms,
		ExpiresAt:   claims.ExpiresAt.Time,
		Verifier:    VerifierDBAuthoritative,
	}, nil
}

// SessionBoundVerifier trusts the claims once the presented token is exactly
// the one bound to the user's session. Rotated or revoked tokens are rejected
// even while their signature and expiry are still valid.
type SessionBoundVerifier struct {
	tokens   *JWTTokenGenerator
	sessions SessionStore
}

func NewSessionBoundVerifier(tokens *JWTTokenGenerator, sessions SessionStore) *SessionBoundVerifier {
	return &SessionBoundVerifier{tokens: tokens, sessions: sessions}
}

func (v *SessionBoundVerifier) Name() string { return VerifierSessionBound }

func (v *SessionBoundVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()

	stored, err := v.sessions.Get(ctx, userID)
	if err != nil {
		return nil, sessionError(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return nil, appErrors.ErrSessionInvalid
	}

	return &Identity{
		UserID:      userID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		ExpiresAt:   claims.ExpiresAt.Time,
		Verifier:    VerifierSessionBound,
	}, nil
}

// A missing session is an authentication failure; an unreachable store fails closed.
func sessionError(err error) error {
	if errors.Is(err, session.ErrNoSession) {
		return appErrors.ErrSessionInvalid
	}
	return appErrors.NewUnavailableError("session store unavailable", err)
}
