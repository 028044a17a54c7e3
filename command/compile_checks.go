package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

var (
	_ gocmd.Commander[CompleteCallbackMessage] = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[BeginConnectMessage]     = (*BeginConnectCommand)(nil)
	_ gocmd.Commander[WriteCredentialMessage]  = (*WriteCredentialCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
