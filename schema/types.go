package schema

// TabID identifies an inline assist conversation. It is stable for the
// lifetime of one session.
type TabID string

// Token correlates inbound partial-result notifications with the
// outstanding streaming request that produced them.
type Token string

// RequestID identifies a non-streaming request/response exchange.
type RequestID string

// SessionState is the lifecycle state of an inline session.
type SessionState int

const (
	// SessionInactive means no session exists.
	SessionInactive SessionState = iota
	// SessionActive means a session captured a selection and is waiting
	// for the user prompt.
	SessionActive
	// SessionGenerating means a request is in flight and partial results
	// are being rendered.
	SessionGenerating
	// SessionDeciding means the final result is rendered and the user is
	// choosing to accept or reject it.
	SessionDeciding
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionInactive:
		return "inactive"
	case SessionActive:
		return "active"
	case SessionGenerating:
		return "generating"
	case SessionDeciding:
		return "deciding"
	default:
		return "unknown"
	}
}

// UserDecision is the terminal outcome of a session.
type UserDecision string

const (
	// DecisionAccept means the user kept the suggested changes.
	DecisionAccept UserDecision = "accept"
	// DecisionReject means the user restored the original text.
	DecisionReject UserDecision = "reject"
	// DecisionDismiss means the session ended without an explicit choice.
	DecisionDismiss UserDecision = "dismiss"
)

// TextDiff describes one inserted or deleted run of text as absolute
// document offsets. Spans produced by a single diff pass are non-overlapping
// and ordered by ascending offset.
type TextDiff struct {
	Offset   int
	Length   int
	Deletion bool
}

// Position is a zero-based line/character position in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open document range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// CursorState carries the editor cursor or selection range attached to an
// outbound prompt.
type CursorState struct {
	Range Range `json:"range"`
}
