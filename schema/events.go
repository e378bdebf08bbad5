package schema

// NoticeKind classifies the single user-visible notification emitted per
// failure class.
type NoticeKind string

const (
	// NoticeError is the generic failure notification.
	NoticeError NoticeKind = "error"
	// NoticeNoSuggestions means the backend returned an empty suggestion.
	NoticeNoSuggestions NoticeKind = "no-suggestions"
	// NoticeReferencesBlocked means a suggestion was dropped because it
	// carried code references the user has opted out of.
	NoticeReferencesBlocked NoticeKind = "references-blocked"
	// NoticeAuthExpired means the backend requires re-authentication.
	NoticeAuthExpired NoticeKind = "auth-expired"
)

// ResultEvent delivers a decrypted response to presentation layers.
type ResultEvent struct {
	Tab     TabID
	Body    string
	Partial bool
}

// NoticeEvent delivers a user-facing notification tagged with the
// conversation it belongs to. Err carries the cause, one of the schema
// sentinels for rejection notices or the underlying failure otherwise, so
// sinks can branch with errors.Is.
type NoticeEvent struct {
	Tab     TabID
	Kind    NoticeKind
	Message string
	Err     error
}

// StateEvent reports a session state transition.
type StateEvent struct {
	Tab   TabID
	State SessionState
}
