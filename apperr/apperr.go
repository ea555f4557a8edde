// Package apperr carries the error taxonomy shared by the service layer and
// the HTTP controllers: a short machine-readable code, the HTTP status to
// answer with, and an optional upstream detail passed through verbatim.
package apperr

import "fmt"

const (
	CodeInvalidBody      = "invalid_body"
	CodeNoItems          = "no_items"
	CodeInvalidItem      = "invalid_item"
	CodeMissingIntent    = "missing_intent"
	CodeNotReady         = "not_ready"
	CodeUpstreamPayment  = "upstream_payment"
	CodeUpstreamCommerce = "upstream_commerce"
	CodeCustomerRequired = "customer_required"
	CodeNotAllowed       = "not_allowed"
	CodeBadSignature     = "bad_signature"
	CodeInternal         = "internal"
)

type Error struct {
	Code    string `json:"error"`
	Status  int    `json:"-"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Upstream wraps a failure from an external API, keeping its body in Detail
// so callers can diagnose without grepping upstream dashboards.
func Upstream(code string, status int, message, detail string) *Error {
	return &Error{Code: code, Status: status, Message: message, Detail: detail}
}

// From returns err as an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: CodeInternal, Status: 500, Message: err.Error()}
}
