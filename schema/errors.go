package schema

import "errors"

var (
	// ErrNotFound indicates an unknown token or request id.
	ErrNotFound = errors.New("not found")
	// ErrTimeout indicates a pending result was not completed in time.
	ErrTimeout = errors.New("request timed out")
	// ErrSessionActive indicates a session is already running.
	ErrSessionActive = errors.New("inline session already active")
	// ErrNoDocument indicates the editor context has no attached document.
	ErrNoDocument = errors.New("editor has no document")
	// ErrEmptyPrompt indicates the prompt was empty or below the minimum length.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrPromptTooLong indicates the prompt exceeded the configured bound.
	ErrPromptTooLong = errors.New("prompt too long")
	// ErrNoSuggestions indicates the final response carried no body.
	ErrNoSuggestions = errors.New("no suggestions")
	// ErrAuthExpired indicates the backend asked for re-authentication.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrReferencesBlocked indicates the response contained code references
	// while the user has code references disabled.
	ErrReferencesBlocked = errors.New("code references disabled")
	// ErrTransport indicates a transport-level send failure.
	ErrTransport = errors.New("transport failure")
	// ErrDecrypt indicates a payload could not be decrypted.
	ErrDecrypt = errors.New("decryption failure")
	// ErrRenderFailed indicates a document mutation failed mid render pass.
	ErrRenderFailed = errors.New("render failed")
	// ErrExecutorClosed indicates work was submitted after UI shutdown.
	ErrExecutorClosed = errors.New("ui executor closed")
	// ErrInvalidConfig indicates an unusable engine configuration.
	ErrInvalidConfig = errors.New("invalid engine config")
)
