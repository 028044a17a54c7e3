package sqlstore

import (
	"errors"

	"github.com/goliatone/go-connectors/core"
)

var ErrCredentialNotFound = errors.New("sqlstore: credential not found")

var (
	_ core.CredentialStore    = (*CredentialStore)(nil)
	_ core.AuditSink          = (*AuditStore)(nil)
	_ core.MembershipResolver = (*MembershipStore)(nil)
	_ core.MembershipResolver = (*CachedMembershipResolver)(nil)
)
