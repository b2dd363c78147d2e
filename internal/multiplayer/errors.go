package multiplayer

import "errors"

var (
	// ErrIllegalState reports a role transition that is not allowed from the current role.
	ErrIllegalState = errors.New("illegal session state")
	// ErrUnexpectedMessage reports a valid message that does not fit the current session
	// state. Such messages are logged and ignored.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrThreadFault reports a background goroutine that stopped after a panic.
	ErrThreadFault = errors.New("background goroutine faulted")
)
