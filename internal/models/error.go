package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// ErrorKind groups domain errors by how a caller is expected to react.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindAlreadyDeleted ErrorKind = "already_deleted"
	KindForbidden      ErrorKind = "forbidden"
)

// DomainError is a classified failure returned by the admin services.
// Code is stable and machine-readable; Message is safe to show to an operator.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func newDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// Validation errors: the request itself is malformed.
var (
	ErrInvalidReason   = newDomainError(KindValidation, "invalid_reason", "reason is too short")
	ErrInvalidDuration = newDomainError(KindValidation, "invalid_duration", "duration is out of range")
	ErrInvalidRole     = newDomainError(KindValidation, "invalid_role", "role is not recognised")
	ErrInvalidTier     = newDomainError(KindValidation, "invalid_tier", "tier is not allowed")
	ErrInvalidCampaign = newDomainError(KindValidation, "invalid_campaign", "campaign fields are invalid")
	ErrInvalidFilter   = newDomainError(KindValidation, "invalid_filter", "audit log filter is invalid")

	// ErrConstraintViolation is a write rejected by a foreign key, not-null or
	// check constraint in the store.
	ErrConstraintViolation = newDomainError(KindValidation, "constraint_violation", "request violates a data constraint")
)

// Conflict errors: retry with fresh data or pick a different target state.
var (
	ErrConflict               = newDomainError(KindConflict, "conflict", "resource was modified concurrently")
	ErrSameRole               = newDomainError(KindConflict, "same_role", "user already has this role")
	ErrAlreadySuspended       = newDomainError(KindConflict, "already_suspended", "user is already suspended")
	ErrNotSuspended           = newDomainError(KindConflict, "not_suspended", "user is not suspended")
	ErrNotScheduled           = newDomainError(KindConflict, "not_scheduled", "user has no scheduled deletion")
	ErrDuplicateName          = newDomainError(KindConflict, "duplicate_name", "a campaign with this name already exists")
	ErrHasSignups             = newDomainError(KindConflict, "has_signups", "campaign has signups and cannot be deleted")
	ErrCampaignAlreadyInState = newDomainError(KindConflict, "already_in_state", "campaign is already in the requested state")
)

// Terminal errors for the current request.
var (
	ErrNotFound       = newDomainError(KindNotFound, "not_found", "resource not found")
	ErrAlreadyDeleted = newDomainError(KindAlreadyDeleted, "already_deleted", "account has been deleted")
	ErrForbidden      = newDomainError(KindForbidden, "forbidden", "forbidden")
)

// KindOf returns the kind of the first DomainError in err's chain, or "" when
// err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the code of the first DomainError in err's chain.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
