// Package cli provides pxctl, the interactive pxauth command-line client.
//
// It wires configuration, the local session store, the gRPC client and an
// interactive REPL. Commands:
//   - signup: create an account and confirm it with the emailed code
//   - signin: sign in, answering a TOTP or email challenge when asked
//   - confirm: answer the pending confirmation with its code
//   - status: show the signed-in account
//   - signout: forget the local session
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
