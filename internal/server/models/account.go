// Package models defines server-side data models persisted in the database.
package models

import "time"

type AccountStatus string

const (
	StatusUnconfirmed AccountStatus = "Unconfirmed"
	StatusNormal      AccountStatus = "Normal"
	StatusBanned      AccountStatus = "Banned"
	StatusAdmin       AccountStatus = "Admin"
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusUnconfirmed, StatusNormal, StatusBanned, StatusAdmin:
		return true
	}
	return false
}

// Account is a registered user identity. Email is unique across accounts.
type Account struct {
	ID             int64
	Name           string
	Email          string
	PasswordHash   string
	CreationDate   time.Time
	Status         AccountStatus
	StorageCountKo int64
	StorageLimitMo int32
}
