package permission

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/telemetry"
)

const (
	keyAllPermissions     = "permissions:all"
	prefixUserPermissions = "permissions:user:"
	prefixRolePermissions = "permissions:roles:"
	prefixHasPermission   = "has_permission:"
)

// Cache kinds used as the metrics label.
const (
	cacheAll   = "all"
	cacheUser  = "user"
	cacheRoles = "roles"
	cacheHas   = "has_permission"
)

func userPermissionsKey(userID int64) string {
	return prefixUserPermissions + strconv.FormatInt(userID, 10)
}

func hasPermissionPrefix(userID int64) string {
	return prefixHasPermission + strconv.FormatInt(userID, 10) + ":"
}

func hasPermissionKey(userID int64, action string) string {
	return hasPermissionPrefix(userID) + action
}

// rolePermissionsKey is independent of the order the role ids are given in.
func rolePermissionsKey(roleIDs []int64) string {
	return prefixRolePermissions + joinIDs(normalizeIDs(roleIDs))
}

func normalizeIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// roleKeyMentions reports whether a role-set key covers any of roleIDs.
func roleKeyMentions(key string, roleIDs []int64) bool {
	csv := strings.TrimPrefix(key, prefixRolePermissions)
	for _, part := range strings.Split(csv, ",") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		if slices.Contains(roleIDs, id) {
			return true
		}
	}
	return false
}

// cacheAside returns the cached value for key, loading and storing it on a miss.
// A cache that errors is bypassed; only load errors reach the caller.
func cacheAside[T any](ctx context.Context, s *Service, kind, key string, load func(context.Context) (T, error)) (T, error) {
	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal([]byte(raw), &v)
		if uerr == nil {
			s.metrics.CacheRequest(kind, telemetry.CacheHit)
			return v, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key, "error", uerr)
		s.metrics.CacheRequest(kind, telemetry.CacheError)
	case errors.Is(err, kvstore.ErrNotFound):
		s.metrics.CacheRequest(kind, telemetry.CacheMiss)
	default:
		s.logger.Warn("permission cache read failed, falling back to catalog", "key", key, "error", err)
		s.metrics.CacheRequest(kind, telemetry.CacheError)
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return v, nil
	}
	if err := s.cache.Set(ctx, key, string(encoded), s.ttl); err != nil {
		s.logger.Warn("permission cache write failed", "key", key, "error", err)
	}
	return v, nil
}
