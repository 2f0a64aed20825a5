package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/user"
)

// CredentialVerifier checks an email/password pair against the identity store.
type CredentialVerifier struct {
	users UserDirectory
}

func NewCredentialVerifier(users UserDirectory) *CredentialVerifier {
	return &CredentialVerifier{users: users}
}

// Verify returns the user on success. Unknown emails and wrong passwords are
// indistinguishable to the caller; an inactive account is reported only after
// the password matched.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*user.User, error) {
	u, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	if !u.IsActive {
		return nil, appErrors.ErrUserInactive
	}
	return u, nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
