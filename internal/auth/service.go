package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/core/common/validation"
	"github.com/frahmantamala/backoffice/internal/telemetry"
)

// Service issues tokens and manages the session that makes them revocable.
// Sessions are keyed by user id alone, so a new login anywhere replaces the
// previous session for that user.
type Service struct {
	users       UserDirectory
	credentials *CredentialVerifier
	tokens      *JWTTokenGenerator
	sessions    SessionStore
	resolver    PermissionResolver
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	audit       Auditor
	bcryptCost  int
}

type ServiceOption func(*Service)

func WithServiceMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithServiceAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithBCryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

func NewService(users UserDirectory, tokens *JWTTokenGenerator, sessions SessionStore, resolver PermissionResolver, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		users:       users,
		credentials: NewCredentialVerifier(users),
		tokens:      tokens,
		sessions:    sessions,
		resolver:    resolver,
		logger:      logger,
		audit:       noopAuditor{},
		bcryptCost:  12,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues a session-bound token.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*TokenResponse, error) {
	if verr := validation.ValidateCredentials(dto.Email, dto.Password); verr != nil {
		return nil, verr
	}

	u, err := s.credentials.Verify(ctx, dto.Email, dto.Password)
	if err != nil {
		s.metrics.Login("failure")
		s.logger.Warn("login rejected", "email", dto.Email, "error", err)
		s.audit.Record(ctx, 0, "auth.login_failed", map[string]any{"email": dto.Email, "reason": reason(err)})
		return nil, err
	}

	resp, err := s.IssueToken(ctx, u.ID)
	if err != nil {
		s.metrics.Login("error")
		return nil, err
	}

	s.metrics.Login("success")
	s.logger.Info("login succeeded", "user_id", u.ID)
	s.audit.Record(ctx, u.ID, "auth.login", map[string]any{"roles": resp.User.Roles})
	return resp, nil
}

// IssueToken mints a token for the user's current roles and permissions and
// overwrites the user's session with it for the same TTL.
func (s *Service) IssueToken(ctx context.Context, userID int64) (*TokenResponse, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, appErrors.ErrUserInactive
	}

	perms, err := s.resolver.UserPermissions(ctx, userID)
	if err != nil {
		return nil, appErrors.NewUnavailableError("permission store unavailable", err)
	}

	identity := &Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Roles:       u.Roles,
		Permissions: perms,
	}

	token, expiresAt, err := s.tokens.Generate(identity)
	if err != nil {
		// Signing only fails on a broken key configuration.
		s.logger.Error("token signing failed", "user_id", userID, "error", err)
		return nil, appErrors.NewInternalError("failed to issue token", err)
	}

	if err := s.sessions.Set(ctx, userID, token, s.tokens.TTL()); err != nil {
		s.logger.Error("failed to store session", "user_id", userID, "error", err)
		return nil, appErrors.NewUnavailableError("session store unavailable", err)
	}

	identity.ExpiresAt = expiresAt
	return newTokenResponse(token, identity, s.tokens.TTL()), nil
}

// Refresh rotates the caller's token; the presented token stops verifying.
func (s *Service) Refresh(ctx context.Context, id *Identity) (*TokenResponse, error) {
	resp, err := s.IssueToken(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("token refreshed", "user_id", id.UserID)
	s.audit.Record(ctx, id.UserID, "auth.refresh", nil)
	return resp, nil
}

// InvalidateSession deletes the user's session; any outstanding token fails
// verification from then on.
func (s *Service) InvalidateSession(ctx context.Context, userID int64) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete session", "user_id", userID, "error", err)
		return appErrors.NewUnavailableError("session store unavailable", err)
	}
	s.logger.Info("session invalidated", "user_id", userID, "actor_id", appErrors.ActorFromContext(ctx))
	s.audit.Record(ctx, userID, "auth.logout", map[string]any{"actor_id": appErrors.ActorFromContext(ctx)})
	return nil
}

// ForceLogout revokes another user's session on behalf of an administrator.
// Unknown user ids are reported as not found rather than silently accepted.
func (s *Service) ForceLogout(ctx context.Context, userID int64) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return appErrors.ErrUserNotFound
		}
		return appErrors.NewUnavailableError("identity store unavailable", err)
	}
	return s.InvalidateSession(ctx, userID)
}

// HashPassword creates a bcrypt hash using the configured cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func reason(err error) string {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return "error"
}
