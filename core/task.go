package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/inlined/schema"
)

// SessionTask holds the mutable state of one inline assist interaction.
// All fields sit behind a single mutex so related values (timing pairs,
// diff spans and their line counts) are never read torn. The owning
// session is the only writer; readers may come from any goroutine.
type SessionTask struct {
	mu sync.Mutex

	tab   schema.TabID
	state schema.SessionState

	// Selection captured at session start.
	selectionOffset int
	originalText    string
	hasSelection    bool
	selectedLines   int
	startLine       int
	endLine         int

	prompt    string
	cursor    schema.CursorState
	language  string
	requestID string

	// Streaming and render tracking.
	prevResponse   string
	rendered       bool
	prevDisplayLen int

	diffs        []schema.TextDiff
	addedLines   int
	deletedLines int

	decision     schema.UserDecision
	requestAt    time.Time
	firstTokenAt time.Time
	lastTokenAt  time.Time
}

// NewSessionTask captures the selection for a fresh session. A blank
// selection text enters cursor-only mode: the original text is empty and
// the whole suggestion renders as an insertion.
func NewSessionTask(sel Selection) *SessionTask {
	hasSelection := !isBlank(sel.Text)
	original := ""
	selected := 0
	if hasSelection {
		original = sel.Text
		selected = sel.EndLine - sel.StartLine + 1
	}
	return &SessionTask{
		tab:             schema.TabID(uuid.NewString()),
		state:           schema.SessionActive,
		selectionOffset: sel.Offset,
		originalText:    original,
		hasSelection:    hasSelection,
		selectedLines:   selected,
		startLine:       sel.StartLine,
		endLine:         sel.EndLine,
		prevDisplayLen:  len(original),
		decision:        schema.DecisionDismiss,
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Tab returns the session's conversation id.
func (t *SessionTask) Tab() schema.TabID {
	return t.tab
}

// State returns the task's view of the session state.
func (t *SessionTask) State() schema.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState records a state transition.
func (t *SessionTask) SetState(state schema.SessionState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// Active reports whether the task has not reached a terminal state.
func (t *SessionTask) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != schema.SessionInactive
}

// SelectionOffset returns the absolute offset the diffed region starts at.
func (t *SessionTask) SelectionOffset() int {
	return t.selectionOffset
}

// OriginalText returns the captured selection, "" in cursor-only mode.
func (t *SessionTask) OriginalText() string {
	return t.originalText
}

// HasSelection reports whether the session started with a selection.
func (t *SessionTask) HasSelection() bool {
	return t.hasSelection
}

func (t *SessionTask) selectedStartLine() int {
	return t.startLine
}

func (t *SessionTask) selectedEndLine() int {
	return t.endLine
}

// Prompt returns the submitted prompt, "" until submission.
func (t *SessionTask) Prompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompt
}

// SetPrompt stores the submitted prompt and its cursor state.
func (t *SessionTask) SetPrompt(prompt string, cursor schema.CursorState) {
	t.mu.Lock()
	t.prompt = prompt
	t.cursor = cursor
	t.mu.Unlock()
}

// Cursor returns the cursor state captured at prompt submission.
func (t *SessionTask) Cursor() schema.CursorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// SetLanguage tags the session with the edited file's language.
func (t *SessionTask) SetLanguage(language string) {
	t.mu.Lock()
	t.language = language
	t.mu.Unlock()
}

// SetRequestID records the backend message id for the outcome record.
func (t *SessionTask) SetRequestID(id string) {
	t.mu.Lock()
	t.requestID = id
	t.mu.Unlock()
}

// PreviousResponse returns the last rendered body and whether any body has
// been rendered yet. The flag distinguishes "no render" from an empty body.
func (t *SessionTask) PreviousResponse() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prevResponse, t.rendered
}

// PreviousDisplayLength returns the rendered text length from the last
// pass, used to bound the next replace.
func (t *SessionTask) PreviousDisplayLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prevDisplayLen
}

// RecordRender stores the outcome of one render pass in a single critical
// section: body, display length, spans, and line counts stay consistent.
func (t *SessionTask) RecordRender(body string, displayLen int, spans []schema.TextDiff, added, deleted int) {
	t.mu.Lock()
	t.prevResponse = body
	t.rendered = true
	t.prevDisplayLen = displayLen
	t.diffs = spans
	t.addedLines = added
	t.deletedLines = deleted
	t.mu.Unlock()
}

// Diffs returns the span list from the most recent render pass.
func (t *SessionTask) Diffs() []schema.TextDiff {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.diffs
}

// MarkRequest records the dispatch time.
func (t *SessionTask) MarkRequest(now time.Time) {
	t.mu.Lock()
	t.requestAt = now
	t.mu.Unlock()
}

// MarkFirstToken records the first partial render time once.
func (t *SessionTask) MarkFirstToken(now time.Time) {
	t.mu.Lock()
	if t.firstTokenAt.IsZero() {
		t.firstTokenAt = now
	}
	t.mu.Unlock()
}

// MarkLastToken records the final render time.
func (t *SessionTask) MarkLastToken(now time.Time) {
	t.mu.Lock()
	t.lastTokenAt = now
	t.mu.Unlock()
}

// SetDecision records the terminal user decision.
func (t *SessionTask) SetDecision(accepted bool) {
	t.mu.Lock()
	if accepted {
		t.decision = schema.DecisionAccept
	} else {
		t.decision = schema.DecisionReject
	}
	t.mu.Unlock()
}

// Decision returns the recorded outcome, DecisionDismiss by default.
func (t *SessionTask) Decision() schema.UserDecision {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decision
}

// BuildMetrics assembles the outcome record handed to telemetry at
// session end.
func (t *SessionTask) BuildMetrics() schema.SessionMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := schema.SessionMetrics{
		RequestID:      t.requestID,
		Language:       t.language,
		InputLength:    -1,
		SelectedLines:  t.selectedLines,
		AddedLines:     t.addedLines,
		DeletedLines:   t.deletedLines,
		Decision:       t.decision,
		StartLatencyMS: -1,
		EndLatencyMS:   -1,
	}
	if t.decision != schema.DecisionDismiss {
		m.InputLength = len(t.prompt)
		if !t.requestAt.IsZero() && !t.firstTokenAt.IsZero() {
			m.StartLatencyMS = float64(t.firstTokenAt.Sub(t.requestAt).Milliseconds())
		}
		if !t.requestAt.IsZero() && !t.lastTokenAt.IsZero() {
			m.EndLatencyMS = float64(t.lastTokenAt.Sub(t.requestAt).Milliseconds())
		}
	}
	for _, d := range t.diffs {
		if d.Deletion {
			m.DeletedChars += d.Length
		} else {
			m.AddedChars += d.Length
		}
	}
	return m
}
