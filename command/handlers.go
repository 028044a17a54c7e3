package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

type MutatingService interface {
	CompleteCallback(ctx context.Context, req core.CallbackRequest) core.CallbackOutcome
	BeginConnect(ctx context.Context, principal core.Principal, req core.BeginConnectRequest) (core.BeginConnectResponse, error)
	WriteCredential(ctx context.Context, principal core.Principal, req core.WriteCredentialRequest) error
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

// Execute stores the outcome for the caller. Callback failures live in the
// outcome; the returned error is reserved for wiring problems.
func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	storeResult(ctx, c.service.CompleteCallback(ctx, msg.Request))
	return nil
}

type BeginConnectCommand struct {
	service MutatingService
}

func NewBeginConnectCommand(service MutatingService) *BeginConnectCommand {
	return &BeginConnectCommand{service: service}
}

func (c *BeginConnectCommand) Execute(ctx context.Context, msg BeginConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.BeginConnect(ctx, msg.Principal, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type WriteCredentialCommand struct {
	service MutatingService
}

func NewWriteCredentialCommand(service MutatingService) *WriteCredentialCommand {
	return &WriteCredentialCommand{service: service}
}

func (c *WriteCredentialCommand) Execute(ctx context.Context, msg WriteCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.WriteCredential(ctx, msg.Principal, msg.Request)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
