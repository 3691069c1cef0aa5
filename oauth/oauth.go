// Package oauth resolves third-party OAuth callbacks into identities. Providers only
// exchange an authorization code; sessions are still issued by the engine.
package oauth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/jobAuth/internal/autherr"
)

// Identity is what a provider asserts about the user after a code exchange.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Provider exchanges an authorization code for an identity.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (Identity, error)
}

var (
	// ErrUnverifiedEmail is returned when the provider does not vouch for the address.
	ErrUnverifiedEmail = errors.New("oauth: provider email not verified")
	// ErrMissingCode is returned for an empty authorization code.
	ErrMissingCode = errors.New("oauth: missing authorization code")
)

// Registry holds providers by lower-cased name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry registers every non-nil provider.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces p.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns the provider registered under name, or autherr.ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	if r == nil {
		return nil, autherr.ErrUnknownProvider
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, autherr.ErrUnknownProvider
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
