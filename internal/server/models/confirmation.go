package models

import "time"

type ConfirmationAction string

const (
	ActionSignup          ConfirmationAction = "Signup"
	ActionSignin          ConfirmationAction = "Signin"
	ActionPasswordReset   ConfirmationAction = "PasswordReset"
	ActionTwoFactorEnroll ConfirmationAction = "TwoFactorEnroll"
)

func (a ConfirmationAction) Valid() bool {
	switch a {
	case ActionSignup, ActionSignin, ActionPasswordReset, ActionTwoFactorEnroll:
		return true
	}
	return false
}

// Confirmation is a one-time challenge. It can be answered either with Token
// (emailed link) or with CodeToken plus the short numeric Code.
type Confirmation struct {
	AccountID    int64
	Action       ConfirmationAction
	Token        []byte
	CodeToken    []byte
	Code         uint32
	CodeTrials   int
	Used         bool
	Date         time.Time
	RedirectURL  *string
	DeviceString string
	IPAddress    *string
}

// Expired reports whether the confirmation is older than ttl at now.
func (c *Confirmation) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.Date) > ttl
}

// IssuedConfirmation is what the issuer needs to deliver a fresh confirmation.
type IssuedConfirmation struct {
	Token     []byte
	CodeToken []byte
	Code      uint32
}
