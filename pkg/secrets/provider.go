package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrSecretNotFound is returned by providers when the named secret does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// Provider defines a generic secrets manager interface.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its JSON key-value map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)

	// ListSecrets returns the names of all secrets starting with prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}

// StaticProvider serves secrets from memory. Used for local runs and tests
// where AWS Secrets Manager is not reachable.
type StaticProvider struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewStaticProvider returns a provider seeded with the given secrets.
func NewStaticProvider(seed map[string]map[string]string) *StaticProvider {
	p := &StaticProvider{secrets: make(map[string]map[string]string, len(seed))}
	for name, kv := range seed {
		p.Set(name, kv)
	}
	return p
}

// Set stores (or replaces) a secret.
func (p *StaticProvider) Set(name string, kv map[string]string) {
	cp := make(map[string]string, len(kv))
	for k, v := range kv {
		cp[k] = v
	}
	p.mu.Lock()
	p.secrets[strings.ToLower(name)] = cp
	p.mu.Unlock()
}

func (p *StaticProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	kv, ok := p.secrets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("secret [%s]: %w", name, ErrSecretNotFound)
	}
	cp := make(map[string]string, len(kv))
	for k, v := range kv {
		cp[k] = v
	}
	return cp, nil
}

func (p *StaticProvider) ListSecrets(_ context.Context, prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prefix = strings.ToLower(prefix)
	var names []string
	for name := range p.secrets {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
