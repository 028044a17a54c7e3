package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

type CredentialStatusReader interface {
	CredentialStatus(ctx context.Context, principal core.Principal, organizationID string, provider string) (bool, error)
}

type AuditReader interface {
	List(ctx context.Context) ([]core.AuditEvent, error)
}

// CredentialStatus never carries token material, only whether a row exists.
type CredentialStatus struct {
	OrganizationID string `json:"org_id"`
	Provider       string `json:"provider"`
	Connected      bool   `json:"connected"`
}

type AuditChainReport struct {
	Events   int  `json:"events"`
	Intact   bool `json:"intact"`
	BrokenAt int  `json:"broken_at"`
}

type CredentialStatusQuery struct {
	reader CredentialStatusReader
}

func NewCredentialStatusQuery(reader CredentialStatusReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, msg CredentialStatusMessage) (CredentialStatus, error) {
	if q == nil || q.reader == nil {
		return CredentialStatus{}, queryDependencyError("query: credential status reader is required")
	}
	connected, err := q.reader.CredentialStatus(ctx, msg.Principal, msg.OrganizationID, msg.Provider)
	if err != nil {
		return CredentialStatus{}, err
	}
	return CredentialStatus{
		OrganizationID: strings.TrimSpace(msg.OrganizationID),
		Provider:       strings.TrimSpace(msg.Provider),
		Connected:      connected,
	}, nil
}

type VerifyAuditChainQuery struct {
	reader AuditReader
}

func NewVerifyAuditChainQuery(reader AuditReader) *VerifyAuditChainQuery {
	return &VerifyAuditChainQuery{reader: reader}
}

// Query recomputes every hash in the audit log. BrokenAt is -1 when the
// chain is intact.
func (q *VerifyAuditChainQuery) Query(ctx context.Context, _ VerifyAuditChainMessage) (AuditChainReport, error) {
	if q == nil || q.reader == nil {
		return AuditChainReport{}, queryDependencyError("query: audit reader is required")
	}
	events, err := q.reader.List(ctx)
	if err != nil {
		return AuditChainReport{}, err
	}
	brokenAt, err := core.VerifyChain(events)
	if err != nil {
		return AuditChainReport{}, err
	}
	return AuditChainReport{
		Events:   len(events),
		Intact:   brokenAt < 0,
		BrokenAt: brokenAt,
	}, nil
}
