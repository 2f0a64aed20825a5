// Package session binds each user to the single token currently allowed to act
// for them. Issuing a new token overwrites the previous binding, so the last
// login wins and every earlier token stops verifying.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/backoffice/internal/kvstore"
)

// ErrNoSession is returned when the user has no live session.
var ErrNoSession = errors.New("session: no live session")

type Store struct {
	kv kvstore.Store
}

// New wraps a key-value store dedicated to sessions; keys are decimal user ids.
func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Set overwrites the user's session with token for ttl.
func (s *Store) Set(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if err := s.kv.Set(ctx, key(userID), token, ttl); err != nil {
		return fmt.Errorf("store session for user %d: %w", userID, err)
	}
	return nil
}

// Get returns the bound token or ErrNoSession.
func (s *Store) Get(ctx context.Context, userID int64) (string, error) {
	token, err := s.kv.Get(ctx, key(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("load session for user %d: %w", userID, err)
	}
	return token, nil
}

// Delete revokes the session immediately. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.kv.Delete(ctx, key(userID)); err != nil {
		return fmt.Errorf("delete session for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}
