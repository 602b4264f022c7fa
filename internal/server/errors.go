package server

import (
	"errors"
	"fmt"
)

// ErrBind matches any *BindError via errors.Is.
var ErrBind = errors.New("bind failed")

// ErrAlreadyStarted is returned by Start on a server that was started
// before.  A Server serves at most once.
var ErrAlreadyStarted = errors.New("server already started")

// BindError reports that the listening socket could not be acquired, e.g.
// because the port is in use or the process lacks permission.  It is fatal:
// the server never retries or falls back to another port.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func (e *BindError) Is(target error) bool { return target == ErrBind }
