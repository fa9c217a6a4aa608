package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isSignedIn() bool
	SignUp(ctx context.Context) error
	SignIn(ctx context.Context) error
	Confirm(ctx context.Context) error
	Status(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit" and
// dispatches them to a. Handler errors are printed and the loop goes on.
//
//	Signed out: help, signup, signin, confirm, exit
//	Signed in:  help, status, signout, exit
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("px %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch parts[0] {
		case "help":
			if a.isSignedIn() {
				printlnFn("Available commands: status, signout, exit")
			} else {
				printlnFn("Available commands: signup, signin, confirm, exit")
			}

		case "signup":
			cmdErr = a.SignUp(ctx)

		case "signin", "login":
			cmdErr = a.SignIn(ctx)

		case "confirm":
			cmdErr = a.Confirm(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "signout", "logout":
			cmdErr = a.SignOut(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", parts[0])
		}

		if cmdErr != nil {
			printlnFn("Error:", describe(cmdErr))
		}
	}
}
