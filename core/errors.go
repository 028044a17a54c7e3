package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ConnectorErrorUnauthenticated        = "CONNECTOR_UNAUTHENTICATED"
	ConnectorErrorForbidden              = "CONNECTOR_FORBIDDEN"
	ConnectorErrorCSRFInvalid            = "CONNECTOR_CSRF_INVALID"
	ConnectorErrorBadInput               = "CONNECTOR_BAD_INPUT"
	ConnectorErrorUnsupportedProvider    = "CONNECTOR_UNSUPPORTED_PROVIDER"
	ConnectorErrorProviderExchangeFailed = "CONNECTOR_PROVIDER_EXCHANGE_FAILED"
	ConnectorErrorVaultFailure           = "CONNECTOR_VAULT_FAILURE"
	ConnectorErrorInternal               = "CONNECTOR_INTERNAL_ERROR"
)

var (
	ErrUnsupportedProvider = errors.New("core: unsupported provider")
	ErrUnauthenticated     = errors.New("core: missing or invalid bearer credential")
	ErrForbidden           = errors.New("core: caller is not a member of the organization")
	ErrNoMembership        = errors.New("core: caller has no organization membership")

	errCredentialStoreMissing = errors.New("core: credential store is not configured")
)

type ExchangeErrorKind string

const (
	ExchangeUnsupportedProvider ExchangeErrorKind = "UNSUPPORTED_PROVIDER"
	ExchangeProviderRejected    ExchangeErrorKind = "PROVIDER_REJECTED"
	ExchangeProviderUnreachable ExchangeErrorKind = "PROVIDER_UNREACHABLE"
	ExchangeInvalidRequest      ExchangeErrorKind = "INVALID_REQUEST"
)

// ExchangeError describes why a code exchange failed. ProviderStatus is the
// upstream HTTP status when the provider answered at all.
type ExchangeError struct {
	Kind           ExchangeErrorKind
	Provider       ProviderID
	ProviderStatus int
	Message        string
	Cause          error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{"core: exchange " + strings.ToLower(string(e.Kind))}
	if e.Provider != "" {
		parts = append(parts, "provider="+string(e.Provider))
	}
	if e.ProviderStatus > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.ProviderStatus))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewExchangeError(kind ExchangeErrorKind, provider ProviderID, message string, cause error) *ExchangeError {
	return &ExchangeError{
		Kind:     kind,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

func NewProviderRejectedError(provider ProviderID, status int, message string) *ExchangeError {
	return &ExchangeError{
		Kind:           ExchangeProviderRejected,
		Provider:       provider,
		ProviderStatus: status,
		Message:        message,
	}
}

type VaultErrorKind string

const (
	VaultKeyNotConfigured VaultErrorKind = "KEY_NOT_CONFIGURED"
	VaultInvalidBundle    VaultErrorKind = "INVALID_BUNDLE"
	VaultEncryptionFailed VaultErrorKind = "ENCRYPTION_FAILED"
	VaultStorageFailed    VaultErrorKind = "STORAGE_FAILED"
)

type VaultError struct {
	Kind  VaultErrorKind
	Field string
	Cause error
}

func (e *VaultError) Error() string {
	if e == nil {
		return ""
	}
	msg := "core: vault " + strings.ToLower(string(e.Kind))
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *VaultError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewBadInputError builds a validation error whose metadata names the
// offending field so HTTP callers can report it.
func NewBadInputError(field string, message string) *goerrors.Error {
	err := goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ConnectorErrorBadInput)
	if field != "" {
		err.WithMetadata(map[string]any{"field": field})
	}
	return err
}

func NewUnauthenticatedError(cause error) *goerrors.Error {
	return wrapConnectorError(cause, goerrors.CategoryAuth, "Authentication required", ConnectorErrorUnauthenticated)
}

func NewForbiddenError(cause error) *goerrors.Error {
	return wrapConnectorError(cause, goerrors.CategoryAuthz, "Access to the organization is denied", ConnectorErrorForbidden)
}

func NewCSRFError(reason StateRejection) *goerrors.Error {
	err := goerrors.New("OAuth state validation failed", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(ConnectorErrorCSRFInvalid)
	err.WithMetadata(map[string]any{"reason": string(reason)})
	return err
}

func wrapConnectorError(cause error, category goerrors.Category, message string, textCode string) *goerrors.Error {
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(cause, category, message)
	}
	return ensureConnectorErrorEnvelope(err.WithTextCode(textCode))
}

// MapError converts any error surfaced by the connector into the shared
// envelope. Typed connector errors keep their kind; everything else falls
// back to the go-errors default mappers.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureConnectorErrorEnvelope(richErr)
	}

	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		switch exchangeErr.Kind {
		case ExchangeUnsupportedProvider:
			return newConnectorError("Unsupported provider", goerrors.CategoryBadInput, ConnectorErrorUnsupportedProvider)
		case ExchangeInvalidRequest:
			return newConnectorError("Invalid provider request", goerrors.CategoryBadInput, ConnectorErrorBadInput)
		default:
			return newConnectorError("Provider connection failed", goerrors.CategoryExternal, ConnectorErrorProviderExchangeFailed)
		}
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		if vaultErr.Kind == VaultInvalidBundle {
			return NewBadInputError(vaultErr.Field, "Missing or invalid field: "+vaultErr.Field)
		}
		return newConnectorError("Credential storage failed", goerrors.CategoryInternal, ConnectorErrorVaultFailure)
	}

	switch {
	case errors.Is(err, ErrUnsupportedProvider):
		return newConnectorError("Unsupported provider", goerrors.CategoryBadInput, ConnectorErrorUnsupportedProvider)
	case errors.Is(err, ErrUnauthenticated):
		return NewUnauthenticatedError(nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNoMembership):
		return NewForbiddenError(nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureConnectorErrorEnvelope(mapped)
}

func newConnectorError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureConnectorErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureConnectorErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = connectorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultConnectorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && err.TextCode == ConnectorErrorInternal {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultConnectorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ConnectorErrorBadInput
	case goerrors.CategoryAuth:
		return ConnectorErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return ConnectorErrorForbidden
	case goerrors.CategoryExternal:
		return ConnectorErrorProviderExchangeFailed
	default:
		return ConnectorErrorInternal
	}
}

func connectorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorField returns the field named by a validation error, if any.
func ErrorField(err *goerrors.Error) string {
	if err == nil {
		return ""
	}
	if field, _ := err.Metadata["field"].(string); field != "" {
		return field
	}
	for _, fieldErr := range err.AllValidationErrors() {
		if fieldErr.Field != "" {
			return fieldErr.Field
		}
	}
	return ""
}
