package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindModelNotFound      Kind = "model_not_found"
	KindTransport          Kind = "transport_error"
)

// Error is returned by every Client operation that fails. Message is
// suitable for showing to an end user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindTransport when err was not
// produced by this package.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}

// classify maps a transport error into the provider taxonomy. The SDK's
// structured API error is preferred; message matching covers proxies that
// rewrite status codes.
func classify(err error, model string) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	text := strings.ToLower(err.Error())
	var code string
	var status int
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code = strings.ToLower(apiErr.Code)
		status = apiErr.StatusCode
	}

	var kind Kind
	switch {
	case code == "insufficient_quota", strings.Contains(text, "insufficient_quota"):
		kind = KindQuotaExceeded
	case code == "model_not_found", strings.Contains(text, "model_not_found"):
		kind = KindModelNotFound
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = KindInvalidCredentials
	case status == http.StatusNotFound:
		kind = KindModelNotFound
	default:
		kind = kindFromText(text)
	}

	return &Error{Kind: kind, Message: message(kind, model, err), Err: err}
}

func kindFromText(s string) Kind {
	switch {
	case strings.Contains(s, "insufficient_quota"):
		return KindQuotaExceeded
	case strings.Contains(s, "rate limit"):
		return KindRateLimited
	case strings.Contains(s, "invalid api key"), strings.Contains(s, "invalid_api_key"):
		return KindInvalidCredentials
	case strings.Contains(s, "model_not_found"):
		return KindModelNotFound
	}
	return KindTransport
}

func message(kind Kind, model string, err error) string {
	switch kind {
	case KindRateLimited:
		return "Rate limit exceeded. Please try again later."
	case KindInvalidCredentials:
		return "Invalid API key. Please check your configuration."
	case KindQuotaExceeded:
		return "API quota exceeded. Please check your provider account."
	case KindModelNotFound:
		return fmt.Sprintf("Model '%s' not found. Please check your model configuration.", model)
	}
	return fmt.Sprintf("AI service error: %v", err)
}

// HTTPStatus maps a Kind to the status code an HTTP handler should use
// when the error reaches a client.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusPaymentRequired
	case KindModelNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
