// Package domain provides the canonical Spynl error taxonomy.
//
// Every failure the request pipeline knows how to describe is an *Error
// tagged with a Kind. The escalation layer switches on the Kind to pick the
// HTTP status and the response body, so nothing inspects type names at
// runtime.
package domain

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
)

// Kind identifies the category of a Spynl error.
type Kind int

const (
	// KindGeneric is the base Spynl error without a more specific category.
	KindGeneric Kind = iota

	// KindBadOrigin is raised when a request comes from a non-whitelisted origin.
	KindBadOrigin

	// KindIllegalAction is raised when the desired action is not allowed.
	KindIllegalAction

	// KindMissingParameter is raised when a required argument is absent.
	KindMissingParameter

	// KindIllegalParameter is raised when an argument has an illegal value.
	KindIllegalParameter

	// KindBadValidationInstructions covers unusable validation instructions
	// and request payloads that fail their schema.
	KindBadValidationInstructions

	// KindInvalidResponse signals a response that breaks its declared schema.
	KindInvalidResponse

	// KindEmailTemplateNotFound is raised when a mail template is missing.
	KindEmailTemplateNotFound

	// KindEmailRecipientNotGiven is raised when a mail has no recipient.
	KindEmailRecipientNotGiven

	// KindUndeterminedContentType is raised when a body cannot be sniffed.
	KindUndeterminedContentType

	// KindUnsupportedContentType is raised for unregistered content types.
	KindUnsupportedContentType

	// KindDeserializationUnsupported is raised when a content type has no decoder.
	KindDeserializationUnsupported

	// KindSerializationUnsupported is raised when a content type has no encoder.
	KindSerializationUnsupported

	// KindMalformedRequest is raised when a body cannot be parsed.
	KindMalformedRequest

	// KindInternal marks a server-side failure whose message must not reach clients.
	KindInternal
)

var kindNames = map[Kind]string{
	KindGeneric:                    "SpynlException",
	KindBadOrigin:                  "BadOrigin",
	KindIllegalAction:              "IllegalAction",
	KindMissingParameter:           "MissingParameter",
	KindIllegalParameter:           "IllegalParameter",
	KindBadValidationInstructions:  "BadValidationInstructions",
	KindInvalidResponse:            "InvalidResponse",
	KindEmailTemplateNotFound:      "EmailTemplateNotFound",
	KindEmailRecipientNotGiven:     "EmailRecipientNotGiven",
	KindUndeterminedContentType:    "UndeterminedContentTypeException",
	KindUnsupportedContentType:     "UnsupportedContentTypeException",
	KindDeserializationUnsupported: "DeserializationUnsupportedException",
	KindSerializationUnsupported:   "SerializationUnsupportedException",
	KindMalformedRequest:           "MalformedRequestException",
	KindInternal:                   "InternalServerError",
}

// String returns the error type name used in responses.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// HTTPStatus returns the HTTP status an error of this kind escalates to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadOrigin:
		return http.StatusForbidden
	case KindInvalidResponse, KindInternal:
		return http.StatusInternalServerError
	case KindGeneric,
		KindIllegalAction,
		KindMissingParameter,
		KindIllegalParameter,
		KindBadValidationInstructions,
		KindEmailTemplateNotFound,
		KindEmailRecipientNotGiven,
		KindUndeterminedContentType,
		KindUnsupportedContentType,
		KindDeserializationUnsupported,
		KindSerializationUnsupported,
		KindMalformedRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DefaultMessage is used when a generic error is created without a message.
const DefaultMessage = "an internal error has occured"

// Error is a Spynl error. It is created where the failure happens and is
// not modified after it has been returned.
type Error struct {
	// Kind is the category of the error
	Kind Kind

	// Message is shown to the end user
	Message string

	// DeveloperMessage is shown to API consumers; defaults to Message
	DeveloperMessage string

	// DebugMessage is only logged, never sent to clients
	DebugMessage string

	// Details carries structured information added to the response
	Details any

	// Monitor forces reporting to external monitoring
	Monitor bool

	// Source is the file:line where the error was constructed
	Source string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus returns the HTTP status for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// Developer returns the developer message, falling back to Message.
func (e *Error) Developer() string {
	if e.DeveloperMessage != "" {
		return e.DeveloperMessage
	}
	return e.Message
}

// Debug returns the debug message, falling back to Message.
func (e *Error) Debug() string {
	if e.DebugMessage != "" {
		return e.DebugMessage
	}
	return e.Message
}

// Response returns the response body for this error. The debug message is
// never part of it.
func (e *Error) Response() map[string]any {
	resp := map[string]any{
		"status":            "error",
		"type":              e.Kind.String(),
		"message":           e.Message,
		"developer_message": e.Developer(),
	}
	if e.Details != nil {
		resp["details"] = e.Details
	}
	return resp
}

// WithDeveloperMessage sets the developer message.
func (e *Error) WithDeveloperMessage(msg string) *Error {
	e.DeveloperMessage = msg
	return e
}

// WithDebugMessage sets the debug message.
func (e *Error) WithDebugMessage(msg string) *Error {
	e.DebugMessage = msg
	return e
}

// WithDetails attaches structured details to the response.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithMonitor flags the error for external monitoring.
func (e *Error) WithMonitor() *Error {
	e.Monitor = true
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// newError builds an Error and records the caller of the public constructor.
func newError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Source:  callerSource(3),
	}
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// New creates a generic Spynl error.
func New(message string) *Error {
	if message == "" {
		message = DefaultMessage
	}
	return newError(KindGeneric, message)
}

// Newf creates a generic Spynl error with a formatted message.
func Newf(format string, args ...any) *Error {
	return newError(KindGeneric, fmt.Sprintf(format, args...))
}

// NewKind creates an error of the given kind with a custom message.
func NewKind(kind Kind, message string) *Error {
	return newError(kind, message)
}

// ErrBadOrigin creates a BadOrigin error.
func ErrBadOrigin(origin string) *Error {
	return newError(KindBadOrigin,
		fmt.Sprintf("Requests to the Spynl API are not permitted from origin '%s'.", origin))
}

// ErrIllegalAction creates an IllegalAction error.
func ErrIllegalAction(message string) *Error {
	return newError(KindIllegalAction, message)
}

// ErrMissingParameter creates a MissingParameter error.
func ErrMissingParameter(param string) *Error {
	return newError(KindMissingParameter, "Missing required parameter: "+param)
}

// ErrIllegalParameter creates an IllegalParameter error.
func ErrIllegalParameter(param string) *Error {
	return newError(KindIllegalParameter, "Illegal parameter: "+param)
}

// ErrBadValidationInstructions creates a BadValidationInstructions error.
func ErrBadValidationInstructions(detail string) *Error {
	return newError(KindBadValidationInstructions,
		"The description of validations for this endpoint cannot be used: "+detail)
}

// ErrInvalidResponse creates an InvalidResponse error.
func ErrInvalidResponse(detail string) *Error {
	return newError(KindInvalidResponse,
		"Spynl could not generate a valid response: "+detail)
}

// ErrEmailTemplateNotFound creates an EmailTemplateNotFound error.
func ErrEmailTemplateNotFound(template string) *Error {
	return newError(KindEmailTemplateNotFound,
		fmt.Sprintf("The email template <%s> was not found.", template))
}

// ErrEmailRecipientNotGiven creates an EmailRecipientNotGiven error.
func ErrEmailRecipientNotGiven() *Error {
	return newError(KindEmailRecipientNotGiven, "You did not give a recipient for the email.")
}

// ErrUndeterminedContentType creates an UndeterminedContentType error.
func ErrUndeterminedContentType() *Error {
	return newError(KindUndeterminedContentType,
		"The request carries a body but the content type cannot be determined.")
}

// ErrUnsupportedContentType creates an UnsupportedContentType error.
func ErrUnsupportedContentType(contentType string) *Error {
	return newError(KindUnsupportedContentType,
		fmt.Sprintf("Unsupported content type: %q", contentType))
}

// ErrDeserializationUnsupported creates a DeserializationUnsupported error.
func ErrDeserializationUnsupported(contentType string) *Error {
	return newError(KindDeserializationUnsupported,
		fmt.Sprintf("Deserialization for content type %q is unsupported.", contentType))
}

// ErrSerializationUnsupported creates a SerializationUnsupported error.
func ErrSerializationUnsupported(contentType string) *Error {
	return newError(KindSerializationUnsupported,
		fmt.Sprintf("Serialization for content type: %q is not supported.", contentType))
}

// ErrMalformedRequest creates a MalformedRequest error. The cause, when
// given, is included in the message.
func ErrMalformedRequest(contentType string, cause error) *Error {
	if cause == nil {
		return newError(KindMalformedRequest, "Malformed request: "+contentType)
	}
	e := newError(KindMalformedRequest, fmt.Sprintf("Malformed %q request: %v", contentType, cause))
	e.Cause = cause
	return e
}

// ErrInternal creates an Internal error. Its message is only logged.
func ErrInternal(message string) *Error {
	return newError(KindInternal, message)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a Spynl error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPError is a plain HTTP failure raised by routing or by endpoints that
// want a specific status without a Spynl kind.
type HTTPError struct {
	Status  int
	Detail  string
	Details any
	Source  string
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(status int, detail string) *HTTPError {
	return &HTTPError{Status: status, Detail: detail, Source: callerSource(2)}
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

// Name returns the error type name, e.g. "HTTPNotFound".
func (e *HTTPError) Name() string {
	text := http.StatusText(e.Status)
	if text == "" {
		return "HTTPError"
	}
	return "HTTP" + strings.NewReplacer(" ", "", "-", "", "'", "").Replace(text)
}

// Explanation returns the standard explanation for the status.
func (e *HTTPError) Explanation() string {
	return http.StatusText(e.Status)
}

// PermissionDenied is returned when an authorization policy denies access.
type PermissionDenied struct {
	Permission string
	Context    string
	// Reason, if set, replaces the synthesized message.
	Reason string
	Source string
}

// ErrPermissionDenied creates a PermissionDenied error.
func ErrPermissionDenied(permission, context string) *PermissionDenied {
	return &PermissionDenied{Permission: permission, Context: context, Source: callerSource(2)}
}

// Error implements the error interface.
func (e *PermissionDenied) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("Permission to '%s' %s was denied.", e.Permission, e.Context)
}
