// Package adminauth verifies operator credentials for whitelist management.
//
// A credential is "<adminId>:<apiKey>". Keys come from a static table or from
// the secrets provider under {env}/{adminId}/otc-admin with field api_key.
package adminauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/secrets"
	pkgsecrets "github.com/Checker-Finance/private-otc/pkg/secrets"
)

// SecretScope is the last path segment of admin secrets.
const SecretScope = "otc-admin"

// Authenticator checks an admin credential and returns the admin id.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (string, error)
}

// ParseCredential splits "<adminId>:<apiKey>".
func ParseCredential(credential string) (adminID, apiKey string, err error) {
	id, key, ok := strings.Cut(strings.TrimSpace(credential), ":")
	if !ok || id == "" || key == "" {
		return "", "", otcerr.ErrAdminUnauthorized.WithMessage("malformed admin credential")
	}
	return id, key, nil
}

func keysEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// Static authenticates against a fixed id → key table.
type Static struct {
	keys map[string]string
}

// NewStatic builds a Static authenticator. Entries are "<adminId>:<apiKey>".
func NewStatic(entries []string) (*Static, error) {
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		id, key, err := ParseCredential(e)
		if err != nil {
			return nil, errors.New("adminauth: static entry must be <adminId>:<apiKey>")
		}
		keys[strings.ToLower(id)] = key
	}
	return &Static{keys: keys}, nil
}

func (s *Static) Authenticate(_ context.Context, credential string) (string, error) {
	id, key, err := ParseCredential(credential)
	if err != nil {
		return "", err
	}
	want, ok := s.keys[strings.ToLower(id)]
	// compared on misses too; timing must not depend on the id
	if !keysEqual(key, want) || !ok {
		return "", otcerr.ErrAdminUnauthorized
	}
	return strings.ToLower(id), nil
}

// SecretsAuthenticator resolves admin keys through a secrets.Resolver.
type SecretsAuthenticator struct {
	logger   *zap.Logger
	resolver *secrets.Resolver[string]
}

// NewSecretsAuthenticator builds an authenticator over provider.
func NewSecretsAuthenticator(logger *zap.Logger, env string, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[string]) *SecretsAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecretsAuthenticator{
		logger:   logger,
		resolver: secrets.NewResolver[string](logger, env, SecretScope, provider, cache),
	}
}

func parseAdminSecret(m map[string]string) (string, error) {
	key := m["api_key"]
	if key == "" {
		return "", errors.New("api_key missing")
	}
	return key, nil
}

func (a *SecretsAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	id, key, err := ParseCredential(credential)
	if err != nil {
		return "", err
	}
	want, err := a.resolver.Resolve(ctx, id, parseAdminSecret)
	if errors.Is(err, pkgsecrets.ErrSecretNotFound) {
		return "", otcerr.ErrAdminUnauthorized
	}
	if err != nil {
		a.logger.Error("adminauth.resolve_failed", zap.String("admin", id), zap.Error(err))
		return "", otcerr.Internal(err)
	}
	if !keysEqual(key, want) {
		// refetch on the next attempt in case the key was rotated
		a.resolver.Forget(id)
		a.logger.Warn("adminauth.rejected", zap.String("admin", id))
		return "", otcerr.ErrAdminUnauthorized
	}
	return strings.ToLower(id), nil
}

// Admins lists admin ids with a provisioned secret.
func (a *SecretsAuthenticator) Admins(ctx context.Context) ([]string, error) {
	return a.resolver.Discover(ctx)
}
