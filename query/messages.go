package query

import (
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	TypeCredentialStatus = "connectors.query.credential.status"
	TypeVerifyAuditChain = "connectors.query.audit.verify"
)

type CredentialStatusMessage struct {
	Principal      core.Principal
	OrganizationID string
	Provider       string
}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

func (m CredentialStatusMessage) Validate() error {
	if strings.TrimSpace(m.Principal.Identity.UserID) == "" {
		return queryValidationError("principal", "authenticated principal is required")
	}
	if strings.TrimSpace(m.OrganizationID) == "" {
		return queryValidationError("org_id", "Missing required field: org_id")
	}
	if strings.TrimSpace(m.Provider) == "" {
		return queryValidationError("provider", "Missing required field: provider")
	}
	return nil
}

type VerifyAuditChainMessage struct{}

func (VerifyAuditChainMessage) Type() string { return TypeVerifyAuditChain }

func (VerifyAuditChainMessage) Validate() error { return nil }
