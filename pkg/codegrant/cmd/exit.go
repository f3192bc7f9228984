package cmd

import (
	"context"
	"errors"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
)

const (
	ExitOK        = 0
	ExitError     = 1
	ExitCancelled = 130
)

// ExitCode maps a command error to the process exit status. A flow that ran
// out of time is a failure, not a cancellation.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, auth.ErrCancelled) && !errors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	default:
		return ExitError
	}
}
