package client

import "errors"

var (
	ErrUnavailable = errors.New("server unavailable")
	ErrNotSignedIn = errors.New("not signed in")
	ErrNoPending   = errors.New("nothing to confirm")
)
