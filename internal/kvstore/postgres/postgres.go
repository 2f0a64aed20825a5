package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/backoffice/internal/kvstore"
)

// Entry is the row layout shared by every table backed by this store.
type Entry struct {
	Key       string     `gorm:"column:key;primaryKey"`
	Value     string     `gorm:"column:value;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
}

// Store persists entries in a relational table so sessions survive restarts and
// are shared between API instances.
type Store struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

var _ kvstore.Store = (*Store)(nil)

func NewStore(db *gorm.DB, table string) *Store {
	return &Store{db: db, table: table, now: time.Now}
}

// Timestamps are stored in UTC so string-typed columns compare correctly.
func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// WithClock overrides the time source; used by tests.
func (s *Store) WithClock(fn func() time.Time) *Store {
	s.now = fn
	return s
}

func (s *Store) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := s.scoped(ctx).
		Where("key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", s.clock()).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", kvstore.ErrNotFound
		}
		return "", err
	}
	return e.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := Entry{Key: key, Value: value}
	if ttl > 0 {
		exp := s.clock().Add(ttl)
		e.ExpiresAt = &exp
	}
	return s.scoped(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&e).Error
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.scoped(ctx).Where("key IN ?", keys).Delete(&Entry{}).Error
}

func (s *Store) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.scoped(ctx).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Where("expires_at IS NULL OR expires_at > ?", s.clock()).
		Order("key").
		Pluck("key", &keys).Error
	return keys, err
}

// PurgeExpired deletes rows whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.scoped(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.clock()).Delete(&Entry{})
	return res.RowsAffected, res.Error
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *Store) Close() error {
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
