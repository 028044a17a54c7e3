package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

var (
	_ gocmd.Querier[CredentialStatusMessage, CredentialStatus] = (*CredentialStatusQuery)(nil)
	_ gocmd.Querier[VerifyAuditChainMessage, AuditChainReport] = (*VerifyAuditChainQuery)(nil)

	_ CredentialStatusReader = (*core.Service)(nil)
	_ AuditReader            = (*core.MemoryAuditSink)(nil)
)
