package inbound

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-connectors/core"
	goerrors "github.com/goliatone/go-errors"
)

const genericInternalMessage = "An unexpected error occurred"

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

func inboundBadInput(field string, message string) error {
	return core.NewBadInputError(field, message)
}

func inboundWrapBadInput(source error, field string, message string) error {
	if source == nil {
		return inboundBadInput(field, message)
	}
	err := goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ConnectorErrorBadInput)
	if field != "" {
		err.WithMetadata(map[string]any{"field": field})
	}
	return err
}

// envelope maps err into the JSON error body. Server side failures keep
// only the vault message; anything else is replaced by a generic one.
func envelope(mapper ErrorMapper, err error) (int, errorBody) {
	mapped := mapper(err)
	if mapped == nil {
		mapped = core.MapError(err)
	}
	status := mapped.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	textCode := strings.TrimSpace(mapped.TextCode)
	if textCode == "" {
		textCode = core.ConnectorErrorInternal
	}
	message := mapped.Message
	if status >= http.StatusInternalServerError && textCode != core.ConnectorErrorVaultFailure {
		message = genericInternalMessage
	}
	return status, errorBody{Error: errorPayload{
		TextCode: textCode,
		Message:  message,
		Field:    core.ErrorField(mapped),
	}}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
