// Package providers holds the shared token-endpoint client used by the
// provider adapters under providers/<name>. Each adapter implements
// core.Exchanger and core.Authorizer for one closed core.ProviderID.
package providers
