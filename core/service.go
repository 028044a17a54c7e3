package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type CallbackState string

const (
	CallbackAuthenticating    CallbackState = "AUTHENTICATING"
	CallbackStateVerified     CallbackState = "STATE_VERIFIED"
	CallbackProviderExchanged CallbackState = "PROVIDER_EXCHANGED"
	CallbackVaulted           CallbackState = "VAULTED"
	CallbackRedirected        CallbackState = "REDIRECTED"
	CallbackFailed            CallbackState = "FAILED"
)

// Redirect error codes. They are the only failure detail a browser sees.
const (
	RedirectMissingParameters   = "missing_parameters"
	RedirectUnsupportedProvider = "unsupported_provider"
	RedirectInvalidState        = "invalid_state"
	RedirectConnectionFailed    = "connection_failed"
	RedirectStorageFailed       = "storage_failed"
)

type CallbackRequest struct {
	BearerToken  string
	Code         string
	State        string
	Provider     string
	ProviderHint string
	RedirectURI  string
}

// CallbackOutcome is the terminal result of a callback. RedirectURL is set
// whenever the flow got past authentication; Err is set for 401/403 results.
type CallbackOutcome struct {
	State       CallbackState
	Provider    ProviderID
	ErrorCode   string
	HTTPStatus  int
	RedirectURL string
	Err         error
}

func (o CallbackOutcome) Redirect() bool {
	return o.RedirectURL != ""
}

type BeginConnectRequest struct {
	Provider     string
	RedirectURI  string
	ProviderHint string
	Scopes       []string
}

type BeginConnectResponse struct {
	URL   string
	State string
}

type WriteCredentialRequest struct {
	OrganizationID string
	Provider       string
	AccessToken    string
	RefreshToken   string
	TokenType      string
	ExpiresAt      *time.Time
	Scope          string
	Metadata       map[string]any
}

// Principal is an authenticated caller together with their primary
// organization membership.
type Principal struct {
	Identity   Identity
	Membership Membership
}

type Service struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	clock              Clock
	stateCodec         *StateTokenCodec
	registry           *ExchangeRegistry
	vault              *Vault
	auditor            *Auditor
	identityVerifier   IdentityVerifier
	membershipResolver MembershipResolver
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connectors", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connectors"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = systemClock
	}

	finalConfig, err := LoadConfig(context.Background(), builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.registry == nil {
		return nil, fmt.Errorf("core: exchange registry is required")
	}
	if builder.identityVerifier == nil {
		return nil, fmt.Errorf("core: identity verifier is required")
	}
	if builder.membershipResolver == nil {
		return nil, fmt.Errorf("core: membership resolver is required")
	}
	if builder.stateCodec == nil {
		codec, codecErr := NewStateTokenCodecFromConfig(finalConfig,
			WithStateClock(builder.clock),
			WithStateLogger(logger),
		)
		if codecErr != nil {
			return nil, codecErr
		}
		builder.stateCodec = codec
	}
	if builder.vault == nil {
		builder.vault = NewVault(builder.credentialStore, builder.secretProvider,
			WithVaultCodec(builder.credentialCodec),
			WithVaultClock(builder.clock),
			WithVaultWriteTimeout(finalConfig.Vault.WriteTimeout),
		)
	}

	service := &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorMapper:        builder.errorMapper,
		clock:              builder.clock,
		stateCodec:         builder.stateCodec,
		registry:           builder.registry,
		vault:              builder.vault,
		auditor:            NewAuditor(builder.auditSink, logger),
		identityVerifier:   builder.identityVerifier,
		membershipResolver: builder.membershipResolver,
	}
	if !service.vault.KeyConfigured() {
		logger.Warn("credential vault has no encryption key: credential writes will be refused")
	}
	return service, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

// MapError runs err through the configured error mapper.
func (s *Service) MapError(err error) *goerrors.Error {
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	return s.errorMapper(err)
}

// Authenticate resolves a bearer credential to an identity and its primary
// organization membership.
func (s *Service) Authenticate(ctx context.Context, bearerToken string) (Principal, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return Principal{}, NewUnauthenticatedError(ErrUnauthenticated)
	}
	identity, err := s.identityVerifier.VerifyBearer(ctx, bearerToken)
	if err != nil {
		return Principal{}, NewUnauthenticatedError(err)
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return Principal{}, NewUnauthenticatedError(ErrUnauthenticated)
	}
	membership, err := s.membershipResolver.PrimaryMembership(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return Principal{}, NewForbiddenError(err)
		}
		return Principal{}, err
	}
	if strings.TrimSpace(membership.OrganizationID) == "" {
		return Principal{}, NewForbiddenError(ErrNoMembership)
	}
	return Principal{Identity: identity, Membership: membership}, nil
}

// CompleteCallback drives one OAuth callback through
// AUTHENTICATING → STATE_VERIFIED → PROVIDER_EXCHANGED → VAULTED → REDIRECTED.
// Any step may end the flow in FAILED.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (outcome CallbackOutcome) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": strings.TrimSpace(req.Provider),
	}
	defer func() {
		fields["callback_state"] = string(outcome.State)
		failure := outcome.Err
		if outcome.ErrorCode != "" {
			fields["error_code"] = outcome.ErrorCode
			if failure == nil {
				failure = errors.New(outcome.ErrorCode)
			}
		}
		s.observeOperation(ctx, startedAt, "oauth_callback", failure, fields)
	}()

	principal, err := s.Authenticate(ctx, req.BearerToken)
	if err != nil {
		mapped := s.MapError(err)
		return CallbackOutcome{State: CallbackFailed, HTTPStatus: mapped.Code, Err: mapped}
	}
	fields["organization_id"] = TruncateIdentifier(principal.Membership.OrganizationID)

	code := strings.TrimSpace(req.Code)
	state := strings.TrimSpace(req.State)
	if code == "" || state == "" || strings.TrimSpace(req.Provider) == "" {
		return s.failureRedirect(RedirectMissingParameters, "")
	}
	providerID, err := ParseProviderID(req.Provider)
	if err != nil {
		return s.failureRedirect(RedirectUnsupportedProvider, "")
	}

	verification := s.stateCodec.Verify(state, principal.Identity.UserID)
	if !verification.OK {
		fields["state_reason"] = string(verification.Reason)
		if verification.Reason.Audited() {
			s.auditor.Record(ctx, AuditEvent{
				ActorID:        principal.Identity.UserID,
				OrganizationID: principal.Membership.OrganizationID,
				Action:         AuditActionStateMismatch,
				ResourceType:   AuditResourceOAuthCallback,
				ResourceID:     string(providerID),
				Metadata: map[string]any{
					"provider_id":  string(providerID),
					"state_reason": string(verification.Reason),
				},
			})
		}
		return s.failureRedirect(RedirectInvalidState, providerID)
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = strings.TrimSpace(s.config.CallbackURL)
	}
	bundle, err := s.registry.Exchange(ctx, ExchangeRequest{
		Provider:       providerID,
		OrganizationID: principal.Membership.OrganizationID,
		Code:           code,
		RedirectURI:    redirectURI,
		ProviderHint:   strings.TrimSpace(req.ProviderHint),
	})
	if err != nil {
		var exchangeErr *ExchangeError
		if errors.As(err, &exchangeErr) {
			fields["exchange_kind"] = string(exchangeErr.Kind)
			if exchangeErr.ProviderStatus > 0 {
				fields["provider_status"] = exchangeErr.ProviderStatus
			}
			if exchangeErr.Kind == ExchangeUnsupportedProvider {
				return s.failureRedirect(RedirectUnsupportedProvider, providerID)
			}
		}
		s.logWithLevel(ctx, "warn", "provider exchange failed", map[string]any{
			"provider_id":     string(providerID),
			"organization_id": TruncateIdentifier(principal.Membership.OrganizationID),
			"error":           err.Error(),
		})
		s.auditor.Record(ctx, AuditEvent{
			ActorID:        principal.Identity.UserID,
			OrganizationID: principal.Membership.OrganizationID,
			Action:         AuditActionExchangeFailed,
			ResourceType:   AuditResourceOAuthCallback,
			ResourceID:     string(providerID),
			Metadata:       exchangeAuditMetadata(providerID, err),
		})
		return s.failureRedirect(RedirectConnectionFailed, providerID)
	}

	if err := s.vault.Write(ctx, bundle); err != nil {
		s.logWithLevel(ctx, "error", "credential vault write failed", map[string]any{
			"provider_id":     string(providerID),
			"organization_id": TruncateIdentifier(principal.Membership.OrganizationID),
			"error":           err.Error(),
		})
		s.auditor.Record(ctx, AuditEvent{
			ActorID:        principal.Identity.UserID,
			OrganizationID: principal.Membership.OrganizationID,
			Action:         AuditActionVaultFailed,
			ResourceType:   AuditResourceCredential,
			ResourceID:     string(providerID),
			Metadata:       vaultAuditMetadata(providerID, err),
		})
		return s.failureRedirect(RedirectStorageFailed, providerID)
	}

	return CallbackOutcome{
		State:       CallbackRedirected,
		Provider:    providerID,
		HTTPStatus:  http.StatusFound,
		RedirectURL: s.integrationsRedirect(url.Values{"success": {"true"}, "provider": {string(providerID)}}),
	}
}

func (s *Service) failureRedirect(code string, provider ProviderID) CallbackOutcome {
	return CallbackOutcome{
		State:       CallbackFailed,
		Provider:    provider,
		ErrorCode:   code,
		HTTPStatus:  http.StatusFound,
		RedirectURL: s.integrationsRedirect(url.Values{"error": {code}}),
	}
}

func (s *Service) integrationsRedirect(params url.Values) string {
	target, err := url.Parse(strings.TrimSpace(s.config.IntegrationsURL))
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	query := target.Query()
	for key, values := range params {
		query[key] = values
	}
	target.RawQuery = query.Encode()
	return target.String()
}

// BeginConnect issues a state token bound to the caller and builds the
// provider authorization URL that carries it.
func (s *Service) BeginConnect(ctx context.Context, principal Principal, req BeginConnectRequest) (response BeginConnectResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     strings.TrimSpace(req.Provider),
		"organization_id": TruncateIdentifier(principal.Membership.OrganizationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_connect", err, fields)
	}()

	if strings.TrimSpace(req.Provider) == "" {
		return BeginConnectResponse{}, NewBadInputError("provider", "Missing required field: provider")
	}
	providerID, err := ParseProviderID(req.Provider)
	if err != nil {
		return BeginConnectResponse{}, s.MapError(err)
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = strings.TrimSpace(s.config.CallbackURL)
	}
	if redirectURI == "" {
		return BeginConnectResponse{}, NewBadInputError("redirect_uri", "Missing required field: redirect_uri")
	}

	state, err := s.stateCodec.Issue(principal.Identity.UserID)
	if err != nil {
		return BeginConnectResponse{}, s.MapError(err)
	}
	authURL, err := s.registry.AuthorizationURL(AuthorizationRequest{
		Provider:     providerID,
		State:        state,
		RedirectURI:  redirectURI,
		ProviderHint: strings.TrimSpace(req.ProviderHint),
		Scopes:       append([]string(nil), req.Scopes...),
	})
	if err != nil {
		return BeginConnectResponse{}, s.MapError(err)
	}
	return BeginConnectResponse{URL: authURL, State: state}, nil
}

// WriteCredential stores a bundle the client already holds. Fields are
// checked in a fixed order so the first missing one is reported.
func (s *Service) WriteCredential(ctx context.Context, principal Principal, req WriteCredentialRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     strings.TrimSpace(req.Provider),
		"organization_id": TruncateIdentifier(req.OrganizationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "write_credential", err, fields)
	}()

	for _, required := range []struct {
		field string
		value string
	}{
		{field: "org_id", value: req.OrganizationID},
		{field: "provider", value: req.Provider},
		{field: "access_token", value: req.AccessToken},
	} {
		if strings.TrimSpace(required.value) == "" {
			return NewBadInputError(required.field, "Missing required field: "+required.field)
		}
	}
	providerID, err := ParseProviderID(req.Provider)
	if err != nil {
		return s.MapError(err)
	}
	if err := s.requireMember(ctx, principal, req.OrganizationID); err != nil {
		return err
	}

	err = s.vault.Write(ctx, CredentialBundle{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		Provider:       providerID,
		TokenType:      req.TokenType,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		ExpiresAt:      cloneTimePointer(req.ExpiresAt),
		Scope:          req.Scope,
		Metadata:       copyAnyMap(req.Metadata),
	})
	if err != nil {
		var vaultErr *VaultError
		if errors.As(err, &vaultErr) && vaultErr.Kind != VaultInvalidBundle {
			s.auditor.Record(ctx, AuditEvent{
				ActorID:        principal.Identity.UserID,
				OrganizationID: req.OrganizationID,
				Action:         AuditActionVaultFailed,
				ResourceType:   AuditResourceCredential,
				ResourceID:     string(providerID),
				Metadata:       vaultAuditMetadata(providerID, err),
			})
		}
		return s.MapError(err)
	}
	return nil
}

// CredentialStatus reports whether a credential exists without reading it.
func (s *Service) CredentialStatus(ctx context.Context, principal Principal, organizationID string, provider string) (connected bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     strings.TrimSpace(provider),
		"organization_id": TruncateIdentifier(organizationID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "credential_status", err, fields)
	}()

	providerID, err := ParseProviderID(provider)
	if err != nil {
		return false, s.MapError(err)
	}
	if strings.TrimSpace(organizationID) == "" {
		return false, NewBadInputError("org_id", "Missing required field: org_id")
	}
	if err := s.requireMember(ctx, principal, organizationID); err != nil {
		return false, err
	}
	exists, err := s.vault.Exists(ctx, organizationID, providerID)
	if err != nil {
		return false, s.MapError(err)
	}
	return exists, nil
}

func (s *Service) requireMember(ctx context.Context, principal Principal, organizationID string) error {
	organizationID = strings.TrimSpace(organizationID)
	if principal.Membership.OrganizationID == organizationID {
		return nil
	}
	member, err := s.membershipResolver.IsMember(ctx, principal.Identity.UserID, organizationID)
	if err != nil {
		return s.MapError(err)
	}
	if !member {
		return NewForbiddenError(ErrForbidden)
	}
	return nil
}

func exchangeAuditMetadata(provider ProviderID, err error) map[string]any {
	metadata := map[string]any{"provider_id": string(provider)}
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		metadata["exchange_kind"] = string(exchangeErr.Kind)
		if exchangeErr.ProviderStatus > 0 {
			metadata["provider_status"] = exchangeErr.ProviderStatus
		}
	}
	return metadata
}

func vaultAuditMetadata(provider ProviderID, err error) map[string]any {
	metadata := map[string]any{"provider_id": string(provider)}
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		metadata["vault_kind"] = string(vaultErr.Kind)
	}
	return metadata
}
