package terminal

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionInProgress = errors.New("terminal: connection is in progress")
	ErrAlreadyConnected     = errors.New("terminal: host is already connected")
	ErrAlreadyDisconnected  = errors.New("terminal: host is already disconnected")
	ErrHostRequired         = errors.New("terminal: host address or port is not configured")
	ErrConnect              = errors.New("terminal: host connection error")
	ErrDisconnect           = errors.New("terminal: host disconnection error")
	ErrCannotDisconnect     = errors.New("terminal: cannot disconnect the host")
	ErrNotConnected         = errors.New("terminal: cannot connect to host")
	ErrTransactionSend      = errors.New("terminal: transaction sending error")
	ErrDuplicateTransaction = errors.New("terminal: transaction id already used")
	ErrNotFound             = errors.New("terminal: no such transaction")
	ErrLostResponse         = errors.New("terminal: cannot reverse - response not yet received")
	ErrNonReversibleMTI     = errors.New("terminal: non-reversible message type")
	ErrSessionClosed        = errors.New("terminal: session closed")
	ErrSessionRunning       = errors.New("terminal: session already running")
)

// SendError reports a failed send for one transaction.
type SendError struct {
	TransactionID string
	Err           error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("terminal: cannot send transaction %s: %v", e.TransactionID, e.Err)
}

func (e *SendError) Unwrap() []error {
	return []error{ErrTransactionSend, e.Err}
}
