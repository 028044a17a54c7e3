package command

import (
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	TypeCompleteCallback = "connectors.command.callback.complete"
	TypeBeginConnect     = "connectors.command.connect.begin"
	TypeWriteCredential  = "connectors.command.credential.write"
)

// CompleteCallbackMessage carries the raw callback parameters. Missing values
// are not rejected here: the callback flow turns them into a redirect.
type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (CompleteCallbackMessage) Validate() error {
	return nil
}

type BeginConnectMessage struct {
	Principal core.Principal
	Request   core.BeginConnectRequest
}

func (BeginConnectMessage) Type() string { return TypeBeginConnect }

func (m BeginConnectMessage) Validate() error {
	if strings.TrimSpace(m.Principal.Identity.UserID) == "" {
		return commandValidationError("principal", "authenticated principal is required")
	}
	if strings.TrimSpace(m.Request.Provider) == "" {
		return commandValidationError("provider", "Missing required field: provider")
	}
	return nil
}

type WriteCredentialMessage struct {
	Principal core.Principal
	Request   core.WriteCredentialRequest
}

func (WriteCredentialMessage) Type() string { return TypeWriteCredential }

// Validate reports the first missing field in the order org_id, provider,
// access_token.
func (m WriteCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Principal.Identity.UserID) == "" {
		return commandValidationError("principal", "authenticated principal is required")
	}
	for _, required := range []struct {
		field string
		value string
	}{
		{field: "org_id", value: m.Request.OrganizationID},
		{field: "provider", value: m.Request.Provider},
		{field: "access_token", value: m.Request.AccessToken},
	} {
		if strings.TrimSpace(required.value) == "" {
			return commandValidationError(required.field, "Missing required field: "+required.field)
		}
	}
	return nil
}
