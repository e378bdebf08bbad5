package schema

// ChatPrompt is the user instruction attached to a chat request.
type ChatPrompt struct {
	Prompt        string `json:"prompt"`
	EscapedPrompt string `json:"escapedPrompt"`
	Command       string `json:"command,omitempty"`
}

// InlineChatRequest is the outbound payload for an inline assist prompt.
type InlineChatRequest struct {
	Prompt      ChatPrompt    `json:"prompt"`
	CursorState []CursorState `json:"cursorState,omitempty"`
	FileURI     string        `json:"fileUri,omitempty"`
}

// EncryptedRequest wraps an encrypted payload with the correlation token
// the backend echoes on progress notifications.
type EncryptedRequest struct {
	Message            string `json:"message"`
	PartialResultToken Token  `json:"partialResultToken"`
}

// ProgressNotification is the inbound streaming notification shape.
type ProgressNotification struct {
	Token   Token  `json:"token"`
	Value   string `json:"value"`
	Partial bool   `json:"partialResult"`
}

// FollowUpOption is one backend-suggested follow-up action.
type FollowUpOption struct {
	PillText string `json:"pillText,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Type     string `json:"type,omitempty"`
}

// FollowUp groups follow-up options attached to a result.
type FollowUp struct {
	Text    string           `json:"text,omitempty"`
	Options []FollowUpOption `json:"options,omitempty"`
}

// CodeReference attributes a span of the suggestion to licensed source.
type CodeReference struct {
	LicenseName         string `json:"licenseName,omitempty"`
	Repository          string `json:"repository,omitempty"`
	URL                 string `json:"url,omitempty"`
	Information         string `json:"information,omitempty"`
	RecommendationStart int    `json:"recommendationContentSpanStart,omitempty"`
	RecommendationEnd   int    `json:"recommendationContentSpanEnd,omitempty"`
}

// ChatResult is a decrypted response snapshot, partial or final.
type ChatResult struct {
	MessageID      string          `json:"messageId,omitempty"`
	Body           string          `json:"body"`
	FollowUp       *FollowUp       `json:"followUp,omitempty"`
	CodeReferences []CodeReference `json:"codeReference,omitempty"`
}

// Follow-up option types the backend uses to signal expired credentials.
const (
	FollowUpFullAuth = "full-auth"
	FollowUpReAuth   = "re-auth"
)

// AuthExpired reports whether the result's first follow-up option asks the
// user to re-authenticate.
func (r *ChatResult) AuthExpired() bool {
	if r == nil || r.FollowUp == nil || len(r.FollowUp.Options) == 0 {
		return false
	}
	switch r.FollowUp.Options[0].Type {
	case FollowUpFullAuth, FollowUpReAuth:
		return true
	default:
		return false
	}
}

// SessionMetrics is the outcome record built once per session at teardown.
type SessionMetrics struct {
	RequestID      string
	Language       string
	InputLength    int
	SelectedLines  int
	AddedChars     int
	AddedLines     int
	DeletedChars   int
	DeletedLines   int
	Decision       UserDecision
	StartLatencyMS float64
	EndLatencyMS   float64
}
