package connectors

import (
	"fmt"

	connectorcommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/inbound"
	connectorquery "github.com/goliatone/go-connectors/query"
)

type CommandQueryService interface {
	connectorcommand.MutatingService
	connectorquery.CredentialStatusReader
}

type Commands struct {
	CompleteCallback *connectorcommand.CompleteCallbackCommand
	BeginConnect     *connectorcommand.BeginConnectCommand
	WriteCredential  *connectorcommand.WriteCredentialCommand
}

type Queries struct {
	CredentialStatus *connectorquery.CredentialStatusQuery
	VerifyAuditChain *connectorquery.VerifyAuditChainQuery
}

// Facade groups the command and query handlers built over one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	auditReader connectorquery.AuditReader
}

// WithAuditReader enables the audit chain verification query.
func WithAuditReader(reader connectorquery.AuditReader) FacadeOption {
	return func(options *facadeOptions) {
		options.auditReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("connectors: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CompleteCallback: connectorcommand.NewCompleteCallbackCommand(service),
		BeginConnect:     connectorcommand.NewBeginConnectCommand(service),
		WriteCredential:  connectorcommand.NewWriteCredentialCommand(service),
	}
	facade.queries = Queries{
		CredentialStatus: connectorquery.NewCredentialStatusQuery(service),
	}
	if cfg.auditReader != nil {
		facade.queries.VerifyAuditChain = connectorquery.NewVerifyAuditChainQuery(cfg.auditReader)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// InboundHandlers exposes the facade handlers to the HTTP router.
func (f *Facade) InboundHandlers() inbound.Handlers {
	if f == nil {
		return inbound.Handlers{}
	}
	return inbound.Handlers{
		CompleteCallback: f.commands.CompleteCallback,
		BeginConnect:     f.commands.BeginConnect,
		WriteCredential:  f.commands.WriteCredential,
		CredentialStatus: f.queries.CredentialStatus,
	}
}
