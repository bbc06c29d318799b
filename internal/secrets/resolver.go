// Package secrets resolves per-principal secrets from a secrets Provider.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/private-otc/pkg/secrets"
)

// Resolver loads a typed record for a principal (e.g. an admin) from the
// secrets provider and caches it.
//
// Secret naming convention: {env}/{principalID}/{scope}
type Resolver[T any] struct {
	logger   *zap.Logger
	env      string
	scope    string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
}

// NewResolver constructs a Resolver for one scope, e.g. "otc-admin".
func NewResolver[T any](
	logger *zap.Logger,
	env string,
	scope string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
) *Resolver[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver[T]{
		logger:   logger,
		env:      strings.ToLower(env),
		scope:    strings.ToLower(scope),
		provider: provider,
		cache:    cache,
	}
}

func (r *Resolver[T]) cacheKey(id string) string {
	return strings.ToLower(id + "|" + r.scope)
}

// SecretName returns the provider key for id.
func (r *Resolver[T]) SecretName(id string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, id, r.scope))
}

// Resolve returns the cached record for id, or fetches and parses it.
// parse should reject records missing required fields.
func (r *Resolver[T]) Resolve(ctx context.Context, id string, parse func(map[string]string) (T, error)) (T, error) {
	var zero T
	if strings.ContainsAny(id, "/|") || id == "" {
		return zero, fmt.Errorf("invalid principal id %q", id)
	}

	key := r.cacheKey(id)
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	name := r.SecretName(id)
	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed", zap.String("key", name), zap.Error(err))
		return zero, fmt.Errorf("resolve %s secret for %q: %w", r.scope, id, err)
	}

	v, err := parse(raw)
	if err != nil {
		return zero, fmt.Errorf("parse secret %q: %w", name, err)
	}
	r.cache.Put(key, v)

	r.logger.Debug("secrets.resolved", zap.String("id", id), zap.String("scope", r.scope))
	return v, nil
}

// Forget drops id from the cache so the next Resolve refetches.
func (r *Resolver[T]) Forget(id string) {
	r.cache.Bust(r.cacheKey(id))
}

// Discover lists principal IDs with a secret under {env}/*/{scope}.
func (r *Resolver[T]) Discover(ctx context.Context) ([]string, error) {
	prefix := r.env + "/"
	suffix := "/" + r.scope

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover %s principals: %w", r.scope, err)
	}

	var ids []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, suffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(lower, prefix), suffix)
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}

	r.logger.Info("secrets.principals_discovered",
		zap.String("scope", r.scope),
		zap.Int("count", len(ids)))
	return ids, nil
}
