package tablet

import "errors"

// Error kinds surfaced at the tablet core boundary. Callers classify with
// errors.Is; the wrapped message carries the diagnostic detail.
var (
	// ErrServiceUnavailable: the peer isn't Running.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrInvalidArgument: the operation payload is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIO: the log or storage engine failed.
	ErrIO = errors.New("i/o error")
	// ErrAborted: consensus aborted the operation's round.
	ErrAborted = errors.New("aborted")
	// ErrIllegalState: a lifecycle violation, indicating a programming bug.
	ErrIllegalState = errors.New("illegal state")
	// ErrExecutorShutdown: work was submitted to a stopped executor.
	ErrExecutorShutdown = errors.New("executor is shut down")
)
