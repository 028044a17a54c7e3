package connectors

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
	"github.com/goliatone/go-connectors/providers/dropbox"
	"github.com/goliatone/go-connectors/providers/googledrive"
	"github.com/goliatone/go-connectors/providers/notion"
	"github.com/goliatone/go-connectors/providers/shopify"
)

// ProviderFactory builds the exchanger for one provider from its client
// credentials.
type ProviderFactory func(creds core.ProviderCredentials, opts ...providers.Option) (core.Exchanger, error)

func GoogleDriveProvider(creds core.ProviderCredentials, opts ...providers.Option) (core.Exchanger, error) {
	return googledrive.New(creds, opts...)
}

func DropboxProvider(creds core.ProviderCredentials, opts ...providers.Option) (core.Exchanger, error) {
	return dropbox.New(creds, opts...)
}

func ShopifyProvider(creds core.ProviderCredentials, opts ...providers.Option) (core.Exchanger, error) {
	return shopify.New(creds, opts...)
}

func NotionProvider(creds core.ProviderCredentials, opts ...providers.Option) (core.Exchanger, error) {
	return notion.New(creds, opts...)
}

// ProviderFactories returns the built-in factory for every supported provider.
func ProviderFactories() map[core.ProviderID]ProviderFactory {
	return map[core.ProviderID]ProviderFactory{
		core.ProviderGoogleDrive: GoogleDriveProvider,
		core.ProviderDropbox:     DropboxProvider,
		core.ProviderShopify:     ShopifyProvider,
		core.ProviderNotion:      NotionProvider,
	}
}

// NewExchangeRegistry registers an exchanger for each provider configured in
// cfg.Providers. Providers without credentials stay unregistered and their
// callbacks fail as unsupported. The provider timeout from cfg applies unless
// opts override it.
func NewExchangeRegistry(cfg core.Config, opts ...providers.Option) (*core.ExchangeRegistry, error) {
	factories := ProviderFactories()
	registry, err := core.NewExchangeRegistry()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	providerOpts := append([]providers.Option{providers.WithTimeout(cfg.EffectiveProviderTimeout())}, opts...)
	for _, rawID := range ids {
		id, err := core.ParseProviderID(rawID)
		if err != nil {
			return nil, err
		}
		factory, ok := factories[id]
		if !ok {
			return nil, fmt.Errorf("connectors: no factory for provider %q", id)
		}
		exchanger, err := factory(cfg.Providers[rawID], providerOpts...)
		if err != nil {
			return nil, fmt.Errorf("connectors: build %s exchanger: %w", id, err)
		}
		if err := registry.Register(exchanger); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
