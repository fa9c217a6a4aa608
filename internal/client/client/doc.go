// Package client contains the transport side of pxctl.
//
// # Overview
//
// The package provides:
//  1. The Client interface: the pxauth calls pxctl makes (SignUp, SignIn,
//     SignInByEmail, ConfirmCode, Status).
//  2. GRPCClient, which dials the server with the JSON codec, attaches the
//     account headers and maps gRPC statuses back to *common.Error.
//  3. InitDatabase and RunMigrations, which open the local SQLite store and
//     apply its embedded goose migrations.
//
// # Error Handling
//
// A server that cannot be reached yields ErrUnavailable. Any other status
// becomes a *common.Error whose Kind is read from the ErrorInfo detail, so
// callers can test it with common.IsKind.
package client
