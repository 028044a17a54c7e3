package connectors

import (
	"context"
	"testing"

	"github.com/goliatone/go-connectors/core"
	connectorquery "github.com/goliatone/go-connectors/query"
)

type stubFacadeService struct{}

func (stubFacadeService) CompleteCallback(context.Context, core.CallbackRequest) core.CallbackOutcome {
	return core.CallbackOutcome{State: core.CallbackRedirected}
}

func (stubFacadeService) BeginConnect(context.Context, core.Principal, core.BeginConnectRequest) (core.BeginConnectResponse, error) {
	return core.BeginConnectResponse{}, nil
}

func (stubFacadeService) WriteCredential(context.Context, core.Principal, core.WriteCredentialRequest) error {
	return nil
}

func (stubFacadeService) CredentialStatus(context.Context, core.Principal, string, string) (bool, error) {
	return false, nil
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestNewFacade_BuildsHandlers(t *testing.T) {
	facade, err := NewFacade(stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.CompleteCallback == nil || commands.BeginConnect == nil || commands.WriteCredential == nil {
		t.Fatalf("expected every command to be built: %#v", commands)
	}
	if facade.Queries().CredentialStatus == nil {
		t.Fatalf("expected credential status query")
	}
	if facade.Queries().VerifyAuditChain != nil {
		t.Fatalf("expected audit query to stay nil without a reader")
	}

	handlers := facade.InboundHandlers()
	if handlers.CompleteCallback == nil || handlers.BeginConnect == nil || handlers.WriteCredential == nil || handlers.CredentialStatus == nil {
		t.Fatalf("expected inbound handlers to be populated")
	}
}

func TestNewFacade_AuditChainQuery(t *testing.T) {
	sink := core.NewMemoryAuditSink()
	ctx := context.Background()
	for _, action := range []string{core.AuditActionStateMismatch, core.AuditActionExchangeFailed} {
		if err := sink.Record(ctx, core.AuditEvent{Action: action, OrganizationID: "org-1"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	facade, err := NewFacade(stubFacadeService{}, WithAuditReader(sink))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	report, err := facade.Queries().VerifyAuditChain.Query(ctx, connectorquery.VerifyAuditChainMessage{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Events != 2 || !report.Intact || report.BrokenAt != -1 {
		t.Fatalf("unexpected report %#v", report)
	}
}
