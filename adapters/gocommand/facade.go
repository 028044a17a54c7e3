package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	connectors "github.com/goliatone/go-connectors"
)

// Subscriptions are released together when the owner shuts down.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// SubscribeFacade registers every facade command and query with the
// registry and subscribes them on the global dispatcher. On failure the
// subscriptions made so far are released.
func SubscribeFacade(adapter *RegistryAdapter, facade *connectors.Facade, runnerOpts ...runner.Option) (Subscriptions, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	var subs Subscriptions
	track := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, subscription)
		return nil
	}

	if err := track(RegisterAndSubscribe(adapter, commands.CompleteCallback, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe(adapter, commands.BeginConnect, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe(adapter, commands.WriteCredential, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery(adapter, queries.CredentialStatus, runnerOpts...)); err != nil {
		return nil, err
	}
	if queries.VerifyAuditChain != nil {
		if err := track(RegisterAndSubscribeQuery(adapter, queries.VerifyAuditChain, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
