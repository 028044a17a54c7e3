package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ExchangeRegistry maps the closed ProviderID set to its exchange adapters.
type ExchangeRegistry struct {
	mu        sync.RWMutex
	exchanges map[ProviderID]Exchanger
}

func NewExchangeRegistry(exchangers ...Exchanger) (*ExchangeRegistry, error) {
	registry := &ExchangeRegistry{exchanges: make(map[ProviderID]Exchanger)}
	for _, exchanger := range exchangers {
		if err := registry.Register(exchanger); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *ExchangeRegistry) Register(exchanger Exchanger) error {
	if exchanger == nil {
		return fmt.Errorf("core: exchanger is nil")
	}
	id := exchanger.ID()
	if !id.Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.exchanges[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.exchanges[id] = exchanger
	return nil
}

func (r *ExchangeRegistry) Get(id ProviderID) (Exchanger, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	exchanger, ok := r.exchanges[id]
	r.mu.RUnlock()
	return exchanger, ok
}

func (r *ExchangeRegistry) Providers() []ProviderID {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]ProviderID, 0, len(r.exchanges))
	for id := range r.exchanges {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Exchange dispatches to the adapter registered for req.Provider. Unknown or
// unregistered providers fail before any network call.
func (r *ExchangeRegistry) Exchange(ctx context.Context, req ExchangeRequest) (CredentialBundle, error) {
	exchanger, ok := r.Get(req.Provider)
	if !ok {
		return CredentialBundle{}, NewExchangeError(ExchangeUnsupportedProvider, req.Provider, "provider is not registered", nil)
	}
	if strings.TrimSpace(req.Code) == "" {
		return CredentialBundle{}, NewExchangeError(ExchangeInvalidRequest, req.Provider, "authorization code is required", nil)
	}
	bundle, err := exchanger.Exchange(ctx, req)
	if err != nil {
		return CredentialBundle{}, err
	}
	bundle.Provider = req.Provider
	if strings.TrimSpace(bundle.OrganizationID) == "" {
		bundle.OrganizationID = req.OrganizationID
	}
	return bundle, nil
}

// AuthorizationURL builds the outbound URL when the adapter supports it.
func (r *ExchangeRegistry) AuthorizationURL(req AuthorizationRequest) (string, error) {
	exchanger, ok := r.Get(req.Provider)
	if !ok {
		return "", NewExchangeError(ExchangeUnsupportedProvider, req.Provider, "provider is not registered", nil)
	}
	authorizer, ok := exchanger.(Authorizer)
	if !ok {
		return "", NewExchangeError(ExchangeUnsupportedProvider, req.Provider, "provider does not build authorization urls", nil)
	}
	return authorizer.AuthorizationURL(req)
}
