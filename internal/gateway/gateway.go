// Package gateway drives a protocol action end-to-end: normalize the
// inbound request, dispatch the envelope upstream, classify the
// synchronous acknowledgement, and await the asynchronous result through
// the correlation store.
package gateway

import "fmt"

// Stable machine-readable error codes carried in failure responses.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNoBuyerProfile   = "NO_BUYER_PROFILE"
	CodeBusinessError    = "BUSINESS_ERROR"
	CodeDuplicate        = "DUPLICATE_TRANSACTION"
	CodeTimeout          = "TIMEOUT"
	CodeUpstreamError    = "UPSTREAM_ERROR"
	CodeProfileLookup    = "PROFILE_LOOKUP_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Detail is one field-level error extracted from an upstream structured
// error's paths.
type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a classified failure carrying the HTTP status it should be
// served with. Errors built deeper in the stack (normalizer, correlation
// store) are mapped to APIErrors at the handler boundary instead.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []Detail
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
