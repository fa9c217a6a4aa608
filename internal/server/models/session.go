package models

import "time"

// SessionToken is a bearer credential identified by (AccountID, Token).
type SessionToken struct {
	AccountID    int64
	Token        []byte
	CreationDate time.Time
	LastUseDate  time.Time
	DeviceString string
	IPAddress    *string
}

// Stale reports whether the last recorded use is older than interval at now.
func (t *SessionToken) Stale(now time.Time, interval time.Duration) bool {
	return now.Sub(t.LastUseDate) > interval
}
