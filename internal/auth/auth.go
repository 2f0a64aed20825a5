package auth

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/backoffice/internal/user"
)

// Claims is the signed payload of an access token. Roles are always present;
// Permissions are a snapshot taken at issuance and may lag the catalog.
type Claims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID      int64     `json:"id"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"-"`
	// Verifier names the strategy that produced this identity.
	Verifier string `json:"-"`
}

func (i *Identity) HasRole(name string) bool {
	return slices.Contains(i.Roles, name)
}

func (i *Identity) HasPermission(action string) bool {
	return slices.Contains(i.Permissions, action)
}

// UserDirectory is the identity store as seen by authentication.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, userID int64) (*user.User, error)
}

// PermissionResolver resolves effective permissions, normally through the cache.
type PermissionResolver interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	HasPermission(ctx context.Context, userID int64, action string) (bool, error)
}

// SessionStore binds a user id to the one token currently allowed for it.
type SessionStore interface {
	Set(ctx context.Context, userID int64, token string, ttl time.Duration) error
	Get(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

// Auditor receives fire-and-forget authentication events.
type Auditor interface {
	Record(ctx context.Context, userID int64, action string, details map[string]any)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, int64, string, map[string]any) {}
