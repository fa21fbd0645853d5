package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/paasify/cfvault/pkg/secrets"
)

// Resolver reads secrets through a Provider, caching results locally to
// reduce backend calls.
type Resolver struct {
	logger   *zap.Logger
	backend  string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[map[string]string]
}

// NewResolver constructs a caching resolver. backend names the provider in
// logs ("vault" or "aws").
func NewResolver(
	logger *zap.Logger,
	backend string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[map[string]string],
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:   logger,
		backend:  backend,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches or caches the secret map stored at path.
func (r *Resolver) Resolve(ctx context.Context, path string) (map[string]string, error) {
	if data, ok := r.cache.Get(path); ok {
		return data, nil
	}

	data, err := r.provider.GetSecret(ctx, path)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("backend", r.backend),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("resolve secret %q: %w", path, err)
	}

	r.cache.Put(path, data)
	r.logger.Debug("secrets.resolved",
		zap.String("backend", r.backend),
		zap.String("path", path),
		zap.Int("fields", len(data)))
	return data, nil
}

// Lookup returns one field of the secret at path. ok is false when the
// secret or the field does not exist.
func (r *Resolver) Lookup(ctx context.Context, path, field string) (string, bool, error) {
	data, err := r.Resolve(ctx, path)
	if err != nil {
		return "", false, err
	}
	v, ok := data[field]
	return v, ok, nil
}

// Bust drops the cached secret at path (e.g., on rotation).
func (r *Resolver) Bust(path string) {
	r.cache.Bust(path)
}
