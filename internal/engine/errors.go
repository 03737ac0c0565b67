package engine

import "errors"

// Domain errors. These are precondition violations returned synchronously to
// the caller; none of them is retried automatically.
var (
	ErrSessionAlreadyActive  = errors.New("an active session already exists for this user")
	ErrSessionNotActive      = errors.New("session is not active")
	ErrSessionNotFound       = errors.New("session not found")
	ErrTestNotFound          = errors.New("test not found")
	ErrInvalidTestDefinition = errors.New("test has no questions or a non-positive time limit")
	ErrUnknownQuestion       = errors.New("question does not belong to this test")
	ErrUnknownAnswer         = errors.New("answer does not belong to this question")
	ErrIndexOutOfRange       = errors.New("question index out of range")
	ErrResultNotReady        = errors.New("no result is available for this session")
)
