// Package common contains shared constants, sentinel errors and the error
// taxonomy used across pxauth components.
package common

// Metadata keys carried by authenticated requests. Values are the decimal
// account id and the hex-encoded session token.
const (
	UserIDHeaderName    = "x-user-id"
	AuthTokenHeaderName = "x-auth-token"
)
