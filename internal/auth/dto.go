package auth

import "time"

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
	User        *Identity `json:"user"`
}

func newTokenResponse(token string, id *Identity, ttl time.Duration) *TokenResponse {
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   id.ExpiresAt,
		ExpiresIn:   int64(ttl.Seconds()),
		User:        id,
	}
}
