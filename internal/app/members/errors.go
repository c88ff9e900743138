package members

import (
	"errors"

	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Error codes. Validation rejections are resolved locally and never reach the
// backend; backend errors indicate the call was attempted and failed.
const (
	CodeValidationRejected   = "VALIDATION_REJECTED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeNotFound             = "NOT_FOUND"
	CodeEmailInUse           = "EMAIL_IN_USE"
	CodeBackendError         = "BACKEND_ERROR"
)

func validationRejected(message string, details map[string]any) *Error {
	return &Error{Status: 422, Code: CodeValidationRejected, Message: message, Details: details}
}

func confirmationRequired(message string) *Error {
	return &Error{Status: 409, Code: CodeConfirmationRequired, Message: message}
}

func notFound() *Error {
	return &Error{Status: 404, Code: CodeNotFound, Message: "member not found"}
}

// mapBackendErr folds a backend failure into exactly one taxonomy kind.
func mapBackendErr(err error) *Error {
	switch {
	case errors.Is(err, memberbackend.ErrNotFound):
		return notFound()
	case errors.Is(err, memberbackend.ErrEmailTaken):
		return &Error{Status: 409, Code: CodeEmailInUse, Message: "email address is already in use"}
	default:
		return &Error{Status: 502, Code: CodeBackendError, Message: "backend request failed, try again"}
	}
}

// IsValidationRejected reports whether err is a local policy rejection that
// never reached the backend.
func IsValidationRejected(err error) bool {
	ae := (*Error)(nil)
	return errors.As(err, &ae) && (ae.Code == CodeValidationRejected || ae.Code == CodeConfirmationRequired)
}

// IsNotFound reports whether err indicates the target member no longer exists.
func IsNotFound(err error) bool {
	ae := (*Error)(nil)
	return errors.As(err, &ae) && ae.Code == CodeNotFound
}
