// Package core implements the inline assist session engine: the session
// lifecycle state machine, the per-session task state, and the diff-driven
// document mutation that renders streamed suggestions in place.
package core

import (
	"context"

	"pkt.systems/inlined/schema"
)

// Annotation kinds drawn over diff spans.
const (
	AnnotationAdded   = "diff.added"
	AnnotationDeleted = "diff.deleted"
	annotationPrefix  = "diff."
)

// Annotation is one highlight over a document range.
type Annotation struct {
	Type   string
	Text   string
	Offset int
	Length int
}

// AnnotatedSpan pairs an annotation with the id the model assigned it.
type AnnotatedSpan struct {
	ID int
	Annotation
}

// AnnotationModel is the host editor's highlight layer.
type AnnotationModel interface {
	Add(ann Annotation) int
	Remove(id int)
	List() []AnnotatedSpan
}

// Document is the host editor's mutable text buffer. Offsets are byte
// offsets into the buffer's current content.
type Document interface {
	Length() int
	GetText(offset, length int) (string, error)
	Replace(offset, length int, text string) error
	// LineOf returns the zero-based line containing the offset.
	LineOf(offset int) (int, error)
	// LineOffset returns the offset of the line's first character.
	LineOffset(line int) (int, error)
	// LineLength returns the line's length including its terminator.
	LineLength(line int) (int, error)
}

// UndoManager groups session mutations into one undoable unit. Undo
// restores the document to its state at Begin and is legal both while the
// compound change is open and after End.
type UndoManager interface {
	Begin()
	End()
	Undo() error
}

// Selection is the editor selection at session start. Text is the selected
// content; a blank Text means cursor-only mode.
type Selection struct {
	Offset    int
	Length    int
	StartLine int
	EndLine   int
	Text      string
}

// Editor is the host editor surface a session operates on.
type Editor interface {
	Document() Document
	Annotations() AnnotationModel
	Undo() UndoManager
	Selection() (Selection, error)
	// SetInputBlocked toggles keyboard input to the edited region.
	SetInputBlocked(blocked bool)
	// FileURI locates the open file, or "" when unsaved.
	FileURI() string
}

// UIExecutor marshals work onto the single UI thread. Sync blocks until
// the work ran (or the executor shut down); Async enqueues and returns.
type UIExecutor interface {
	Sync(fn func() error) error
	Async(fn func())
}

// EventSink receives the engine's outbound notifications. Implementations
// must not call back into the session from the delivering goroutine.
type EventSink interface {
	OnResult(ev schema.ResultEvent)
	OnNotice(ev schema.NoticeEvent)
	OnState(ev schema.StateEvent)
}

// PromptSender dispatches prompts to the assistant backend.
type PromptSender interface {
	SendInlinePrompt(ctx context.Context, tab schema.TabID, req schema.InlineChatRequest) error
	CancelInflight(tab schema.TabID)
}

// TelemetryFunc receives the session outcome record, fire and forget.
type TelemetryFunc func(schema.SessionMetrics)
