package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation          ErrorKind = "ValidationError"
	KindInvalidAuth         ErrorKind = "InvalidAuthentication"
	KindNotAuthorized       ErrorKind = "NotAuthorized"
	KindInvoiceNotFound     ErrorKind = "InvoiceNotFound"
	KindRateLimited         ErrorKind = "RateLimited"
	KindConfigMissing       ErrorKind = "ConfigMissing"
	KindCredentialDecrypt   ErrorKind = "CredentialDecryptionError"
	KindProviderAuthFailed  ErrorKind = "ProviderAuthFailed"
	KindProviderRejected    ErrorKind = "ProviderPushRejected"
	KindProviderUnreachable ErrorKind = "ProviderUnreachable"
	KindInternal            ErrorKind = "Internal"
)

// errorCatalog holds the stable errorId and HTTP status per kind. Callers match
// on errorId, so these strings never change.
var errorCatalog = map[ErrorKind]struct {
	id     string
	status int
}{
	KindValidation:          {"VALIDATION_ERROR", http.StatusBadRequest},
	KindInvalidAuth:         {"INVALID_AUTHENTICATION", http.StatusUnauthorized},
	KindNotAuthorized:       {"NOT_AUTHORIZED", http.StatusForbidden},
	KindInvoiceNotFound:     {"INVOICE_NOT_FOUND", http.StatusNotFound},
	KindRateLimited:         {"RATE_LIMITED", http.StatusTooManyRequests},
	KindConfigMissing:       {"CONFIG_MISSING", http.StatusInternalServerError},
	KindCredentialDecrypt:   {"CREDENTIAL_DECRYPTION_ERROR", http.StatusInternalServerError},
	KindProviderAuthFailed:  {"PROVIDER_AUTH_FAILED", http.StatusBadGateway},
	KindProviderRejected:    {"PROVIDER_PUSH_REJECTED", http.StatusBadGateway},
	KindProviderUnreachable: {"PROVIDER_UNREACHABLE", http.StatusServiceUnavailable},
	KindInternal:            {"INTERNAL_ERROR", http.StatusInternalServerError},
}

// PaymentError is the single error type surfaced by the payment endpoints.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	// ProviderBody is the verbatim upstream response for ProviderPushRejected.
	ProviderBody string
	Err          error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) ErrorID() string {
	if c, ok := errorCatalog[e.Kind]; ok {
		return c.id
	}
	return errorCatalog[KindInternal].id
}

func (e *PaymentError) HTTPStatus() int {
	if c, ok := errorCatalog[e.Kind]; ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// Retryable is true only for failures a caller may safely repeat.
func (e *PaymentError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindProviderUnreachable
}

// Upstream reports provider/network failures, whose message is kept generic.
func (e *PaymentError) Upstream() bool {
	switch e.Kind {
	case KindProviderAuthFailed, KindProviderRejected, KindProviderUnreachable, KindConfigMissing, KindCredentialDecrypt, KindInternal:
		return true
	}
	return false
}

func NewPaymentError(kind ErrorKind, message string, err error) *PaymentError {
	return &PaymentError{Kind: kind, Message: message, Err: err}
}

func ValidationError(message, hint string) *PaymentError {
	return &PaymentError{Kind: KindValidation, Message: message, Hint: hint}
}

func InvalidAuthentication(message string) *PaymentError {
	return &PaymentError{Kind: KindInvalidAuth, Message: message, Hint: "send a valid bearer token"}
}

func NotAuthorized(message string) *PaymentError {
	return &PaymentError{Kind: KindNotAuthorized, Message: message}
}

func InvoiceNotFound(invoiceID string) *PaymentError {
	return &PaymentError{Kind: KindInvoiceNotFound, Message: "invoice " + invoiceID + " not found"}
}

// AsPaymentError wraps anything that is not already a PaymentError as Internal.
func AsPaymentError(err error) *PaymentError {
	if err == nil {
		return nil
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return &PaymentError{Kind: KindInternal, Message: "internal error", Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var pe *PaymentError
	return errors.As(err, &pe) && pe.Kind == kind
}
