// Package apierr provides structured API error types and HTTP status mapping
// for the SiteWarden JSON API.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeQuotaError     = "quota_error"
	TypeUpstreamError  = "upstream_error"
	TypeServerError    = "server_error"
	TypeNotFoundError  = "not_found_error"
	TypeConfigError    = "configuration_error"
)

// Code constants.
const (
	CodeInvalidRequest = "invalid_request"
	CodeQuotaExceeded  = "quota_exceeded"
	CodeUpstreamError  = "upstream_error"
	CodeInternalError  = "internal_error"
	CodeNotFound       = "not_found"
	CodeMissingKey     = "missing_api_key"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteInvalidRequest writes a 400 with a caller-supplied message.
func WriteInvalidRequest(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusBadRequest, msg, TypeInvalidRequest, CodeInvalidRequest)
}

// WriteQuotaExceeded writes a 429 for an exhausted daily quota. The limit
// resets at local midnight, so Retry-After is advisory only.
func WriteQuotaExceeded(ctx *fasthttp.RequestCtx, msg string) {
	ctx.Response.Header.Set("Retry-After", "3600")
	Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeQuotaError, CodeQuotaExceeded)
}

// WriteInternal writes a 500 without leaking internal detail.
func WriteInternal(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusInternalServerError, "internal server error", TypeServerError, CodeInternalError)
}

// WriteNotFound writes a 404 for an unknown route.
func WriteNotFound(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusNotFound, "resource not found", TypeNotFoundError, CodeNotFound)
}
