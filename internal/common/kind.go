package common

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable class of a domain error.
type Kind string

const (
	KindBadRequest                  Kind = "BadRequest"
	KindUnauthorized                Kind = "Unauthorized"
	KindInvalidInput                Kind = "InvalidInput"
	KindUserNotFound                Kind = "UserNotFound"
	KindUserBanned                  Kind = "UserBanned"
	KindUserUnconfirmed             Kind = "UserUnconfirmed"
	KindInvalidEmailOrPassword      Kind = "InvalidEmailOrPassword"
	KindTFARequired                 Kind = "TFARequired"
	KindTFARequiredOverEmail        Kind = "TFARequiredOverEmail"
	KindInvalidTOTPCode             Kind = "InvalidTOTPCode"
	KindEmailAlreadyExists          Kind = "EmailAlreadyExists"
	KindConfirmationNotFound        Kind = "ConfirmationNotFound"
	KindConfirmationAlreadyUsed     Kind = "ConfirmationAlreadyUsed"
	KindConfirmationExpired         Kind = "ConfirmationExpired"
	KindConfirmationTooManyAttempts Kind = "ConfirmationTooManyAttempts"
	KindInternalError               Kind = "InternalError"
	KindDatabaseError               Kind = "DatabaseError"
)

type disposition struct {
	message  string
	rollback bool
}

// dispositions holds the default message and rollback flag of every kind.
// Expired and TooManyAttempts commit: the expiry marking or attempt counter
// written before the failure has to survive it.
var dispositions = map[Kind]disposition{
	KindBadRequest:                  {"Bad request", true},
	KindUnauthorized:                {"Unauthorized", true},
	KindInvalidInput:                {"Invalid input", true},
	KindUserNotFound:                {"User not found", true},
	KindUserBanned:                  {"User is banned", true},
	KindUserUnconfirmed:             {"User is not confirmed", true},
	KindInvalidEmailOrPassword:      {"Invalid email or password", true},
	KindTFARequired:                 {"2FA required", true},
	KindTFARequiredOverEmail:        {"2FA required over email", true},
	KindInvalidTOTPCode:             {"Invalid TOTP code", true},
	KindEmailAlreadyExists:          {"Email already exists", true},
	KindConfirmationNotFound:        {"Invalid code/token", true},
	KindConfirmationAlreadyUsed:     {"Confirmation code/token already used", true},
	KindConfirmationExpired:         {"Confirmation code/token expired", false},
	KindConfirmationTooManyAttempts: {"Too many attempts", false},
	KindInternalError:               {"Internal error", true},
	KindDatabaseError:               {"Database error", true},
}

// Error is a domain error carrying its kind and the transaction disposition
// the enclosing unit of work must apply.
type Error struct {
	Kind     Kind
	Message  string
	Rollback bool
	Err      error
}

// NewError returns an error of the given kind with its default message and
// rollback disposition.
func NewError(kind Kind) *Error {
	d, ok := dispositions[kind]
	if !ok {
		d = disposition{message: string(kind), rollback: true}
	}
	return &Error{Kind: kind, Message: d.message, Rollback: d.rollback}
}

// InvalidInput reports a request that failed field validation.
func InvalidInput(message string) *Error {
	e := NewError(KindInvalidInput)
	e.Message = message
	return e
}

// DatabaseError wraps an unexpected store failure. The message and cause are
// meant for operators; see Public.
func DatabaseError(message string, err error) *Error {
	e := NewError(KindDatabaseError)
	e.Message = message
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// RollbackRequired reports whether the enclosing transaction must be aborted.
func (e *Error) RollbackRequired() bool { return e.Rollback }

// KeepChanges returns a copy that lets the enclosing transaction commit.
func (e *Error) KeepChanges() *Error {
	c := *e
	c.Rollback = false
	return &c
}

// Public returns a copy safe for untrusted clients: store diagnostics and
// internal causes are dropped.
func (e *Error) Public() *Error {
	c := &Error{Kind: e.Kind, Message: e.Message, Rollback: e.Rollback}
	if e.Kind == KindDatabaseError || e.Kind == KindInternalError {
		c.Message = "internal error"
	}
	return c
}

// AsError extracts the domain error from err. Anything outside the taxonomy
// is coerced into a rollback-worthy DatabaseError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return DatabaseError("unexpected store failure", err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
