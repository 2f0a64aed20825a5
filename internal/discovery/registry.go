// Package discovery derives permissions from the operations a server exposes
// and upserts them into the catalog once at boot.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"

	"github.com/frahmantamala/backoffice/internal/permission"
)

// Catalog is the idempotent create of the permission service.
type Catalog interface {
	CreatePermission(ctx context.Context, dto permission.CreatePermissionDTO) (*permission.Permission, bool, error)
}

// Report summarises one discovery run.
type Report struct {
	Created  []string
	Existing []string
	Skipped  []string
}

func (r *Report) merge(o Report) {
	r.Created = append(r.Created, o.Created...)
	r.Existing = append(r.Existing, o.Existing...)
	r.Skipped = append(r.Skipped, o.Skipped...)
}

type Registry struct {
	catalog  Catalog
	logger   *slog.Logger
	excluded []string

	mu   sync.Mutex
	seen map[string]bool
}

type Option func(*Registry)

// WithExcludedPrefixes leaves paths under these prefixes out of discovery,
// such as health checks and login.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(r *Registry) { r.excluded = append(r.excluded, prefixes...) }
}

func NewRegistry(catalog Catalog, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		catalog: catalog,
		logger:  logger,
		seen:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterAction derives the action for one operation and ensures it exists
// in the catalog. Registering the same action again is a no-op.
func (r *Registry) RegisterAction(ctx context.Context, method, path string) (Report, error) {
	var rep Report
	if r.isExcluded(path) {
		rep.Skipped = append(rep.Skipped, method+" "+path)
		return rep, nil
	}

	action, ok := DeriveAction(method, path)
	if !ok {
		rep.Skipped = append(rep.Skipped, method+" "+path)
		return rep, nil
	}

	r.mu.Lock()
	done := r.seen[action]
	r.mu.Unlock()
	if done {
		rep.Existing = append(rep.Existing, action)
		return rep, nil
	}

	_, created, err := r.catalog.CreatePermission(ctx, permission.CreatePermissionDTO{
		Action:      action,
		Description: fmt.Sprintf("Discovered from %s %s", strings.ToUpper(method), path),
	})
	if err != nil {
		return rep, fmt.Errorf("register %s %s as %q: %w", method, path, action, err)
	}

	r.mu.Lock()
	r.seen[action] = true
	r.mu.Unlock()

	if created {
		r.logger.Info("permission discovered", "action", action, "method", method, "path", path)
		rep.Created = append(rep.Created, action)
	} else {
		rep.Existing = append(rep.Existing, action)
	}
	return rep, nil
}

func (r *Registry) isExcluded(path string) bool {
	for _, p := range r.excluded {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// FromRouter registers every route mounted on routes.
func (r *Registry) FromRouter(ctx context.Context, routes chi.Routes) (Report, error) {
	var total Report
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		rep, err := r.RegisterAction(ctx, method, route)
		total.merge(rep)
		return err
	})
	if err != nil {
		return total, err
	}
	r.logRun("router", total)
	return total, nil
}

// FromOpenAPI registers every operation declared in the document at path.
// Server URL prefixes are prepended so exclusions match the routed paths.
func (r *Registry) FromOpenAPI(ctx context.Context, path string) (Report, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return Report{}, fmt.Errorf("invalid openapi document: %w", err)
	}

	prefix := serverPrefix(doc)
	var total Report
	for route, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			rep, err := r.RegisterAction(ctx, method, prefix+route)
			total.merge(rep)
			if err != nil {
				return total, err
			}
		}
	}
	r.logRun("openapi", total)
	return total, nil
}

func serverPrefix(doc *openapi3.T) string {
	if len(doc.Servers) == 0 {
		return ""
	}
	u, err := url.Parse(doc.Servers[0].URL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}

func (r *Registry) logRun(source string, rep Report) {
	r.logger.Info("action discovery finished",
		"source", source,
		"created", len(rep.Created),
		"existing", len(rep.Existing),
		"skipped", len(rep.Skipped))
}
