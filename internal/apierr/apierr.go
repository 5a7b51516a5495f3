// Package apierr defines the error taxonomy shared by the CLI and sidecar
// HTTP layers (spec.md §7): every domain error is one of five kinds, each
// mapping to a fixed error_code and HTTP status.
package apierr

import "fmt"

// APIVersion is the value every envelope's api_version field carries.
const APIVersion = "v1"

// Code is one of the five error taxonomy codes.
type Code string

const (
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInternalError   Code = "INTERNAL_ERROR"
)

// HTTPStatus returns the HTTP status code that mirrors this taxonomy code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest, CodeValidationError:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeNotFound:
		return 404
	default:
		return 500
	}
}

// Error is a typed domain error carrying a taxonomy code and human message.
type Error struct {
	Code    Code
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BadRequest builds an input-shape error (malformed body, missing field, wrong type).
func BadRequest(format string, args ...interface{}) *Error {
	return newErr(CodeBadRequest, format, args...)
}

// Validation builds a domain-validation error (invalid regex, unknown enum value, etc).
func Validation(format string, args ...interface{}) *Error {
	return newErr(CodeValidationError, format, args...)
}

// NotFound builds a not-found error (unknown id referenced by an operation).
func NotFound(format string, args ...interface{}) *Error {
	return newErr(CodeNotFound, format, args...)
}

// Unauthorized builds an auth error for write endpoints without a valid token.
func Unauthorized(format string, args ...interface{}) *Error {
	return newErr(CodeUnauthorized, format, args...)
}

// Internal builds an internal error; message should carry only the short cause,
// with any stack trace instead going to the per-run log file.
func Internal(format string, args ...interface{}) *Error {
	return newErr(CodeInternalError, format, args...)
}

// As extracts an *Error from err if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// Envelope is the standard error response body shape (spec.md §6).
type Envelope struct {
	OK          bool        `json:"ok"`
	APIVersion  string      `json:"api_version"`
	Status      string      `json:"status"`
	ErrorBody   ErrorBody   `json:"error"`
	ErrorCode   string      `json:"error_code"`
	ErrorMsg    string      `json:"error_message"`
}

// ErrorBody is the nested error detail of the envelope.
type ErrorBody struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ToEnvelope converts a domain error into the wire envelope shape.
func ToEnvelope(apiVersion string, err *Error) Envelope {
	return Envelope{
		OK:         false,
		APIVersion: apiVersion,
		Status:     "error",
		ErrorBody: ErrorBody{
			Type:    string(err.Code),
			Message: err.Message,
			Details: err.Details,
		},
		ErrorCode: string(err.Code),
		ErrorMsg:  err.Message,
	}
}
