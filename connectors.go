// Package connectors wires the OAuth integration connector: provider
// exchangers, the credential vault, the audit log and the command/query
// facade used by the HTTP layer.
package connectors

import "github.com/goliatone/go-connectors/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ProviderID = core.ProviderID

type CallbackRequest = core.CallbackRequest
type CallbackOutcome = core.CallbackOutcome
type BeginConnectRequest = core.BeginConnectRequest
type BeginConnectResponse = core.BeginConnectResponse
type WriteCredentialRequest = core.WriteCredentialRequest
type Principal = core.Principal

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithClock              = core.WithClock
	WithStateCodec         = core.WithStateCodec
	WithExchangeRegistry   = core.WithExchangeRegistry
	WithVault              = core.WithVault
	WithCredentialStore    = core.WithCredentialStore
	WithSecretProvider     = core.WithSecretProvider
	WithCredentialCodec    = core.WithCredentialCodec
	WithAuditSink          = core.WithAuditSink
	WithIdentityVerifier   = core.WithIdentityVerifier
	WithMembershipResolver = core.WithMembershipResolver
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
