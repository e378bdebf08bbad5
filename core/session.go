package core

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"pkt.systems/inlined/internal/logx"
	"pkt.systems/inlined/schema"
	"pkt.systems/pslog"
)

// Deps captures the session's collaborators. Sender, UI and Sink are
// required; Diff and Logger get defaults when nil.
type Deps struct {
	Sender    PromptSender
	Diff      *DiffEngine
	UI        UIExecutor
	Sink      EventSink
	Telemetry TelemetryFunc
	Logger    pslog.Logger
}

// Session is the inline assist lifecycle state machine. At most one
// interaction runs at a time; every transition happens under one mutex so
// callers from any goroutine observe a consistent state. Methods must not
// be called from the UI executor's own goroutine: they marshal document
// work onto it with Sync and would deadlock.
type Session struct {
	cfg       schema.EngineConfig
	sender    PromptSender
	diff      *DiffEngine
	ui        UIExecutor
	sink      EventSink
	telemetry TelemetryFunc
	logger    pslog.Logger

	mu       sync.Mutex
	task     *SessionTask
	editor   Editor
	undoOpen bool
}

// NewSession constructs the session engine.
func NewSession(cfg schema.EngineConfig, deps Deps) (*Session, error) {
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Sender == nil {
		return nil, errors.New("prompt sender is required")
	}
	if deps.UI == nil {
		return nil, errors.New("ui executor is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("event sink is required")
	}
	if deps.Diff == nil {
		deps.Diff = NewDiffEngine()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Session{
		cfg:       normalized,
		sender:    deps.Sender,
		diff:      deps.Diff,
		ui:        deps.UI,
		sink:      deps.Sink,
		telemetry: deps.Telemetry,
		logger:    logger,
	}, nil
}

// Tab returns the running session's conversation id, "" when idle.
func (s *Session) Tab() schema.TabID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return ""
	}
	return s.task.Tab()
}

// State returns the current lifecycle state.
func (s *Session) State() schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return schema.SessionInactive
	}
	return s.task.State()
}

// Start opens a session on the editor: capture the selection, expand it to
// whole lines, open the compound undo unit, and move to the active state.
// A second Start while a session runs fails without touching the running
// one.
func (s *Session) Start(ed Editor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil && s.task.Active() {
		return schema.ErrSessionActive
	}
	if ed == nil || ed.Document() == nil {
		return schema.ErrNoDocument
	}

	var sel Selection
	err := s.ui.Sync(func() error {
		raw, err := ed.Selection()
		if err != nil {
			return err
		}
		sel, err = expandSelection(ed.Document(), raw)
		if err != nil {
			return err
		}
		ed.Undo().Begin()
		return nil
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	s.task = NewSessionTask(sel)
	s.editor = ed
	s.undoOpen = true

	logx.WithTab(s.logger, s.task.Tab()).Debug("session started",
		"selection_lines", sel.EndLine-sel.StartLine+1,
		"cursor_only", !s.task.HasSelection())
	s.sink.OnState(schema.StateEvent{Tab: s.task.Tab(), State: schema.SessionActive})
	return nil
}

// SubmitPrompt validates and dispatches the user's instruction. A blank or
// too-short prompt ends the session; an over-long prompt is rejected while
// the session stays active for another attempt.
func (s *Session) SubmitPrompt(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil || s.task.State() != schema.SessionActive {
		return schema.ErrNotFound
	}
	task := s.task
	log := logx.WithTab(s.logger, task.Tab())

	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < s.cfg.PromptMinLen {
		log.Debug("blank prompt, ending session")
		s.endSessionLocked(false)
		return schema.ErrEmptyPrompt
	}
	if len(trimmed) > s.cfg.PromptMaxLen {
		return schema.ErrPromptTooLong
	}

	cursor := cursorStateFor(task)
	task.SetPrompt(trimmed, cursor)
	task.SetLanguage(languageOf(s.editor.FileURI()))

	if err := s.ui.Sync(func() error {
		s.editor.SetInputBlocked(true)
		return nil
	}); err != nil {
		return fmt.Errorf("submit prompt: %w", err)
	}

	task.MarkRequest(time.Now())
	task.SetState(schema.SessionGenerating)
	s.sink.OnState(schema.StateEvent{Tab: task.Tab(), State: schema.SessionGenerating})

	req := schema.InlineChatRequest{
		Prompt: schema.ChatPrompt{
			Prompt:        trimmed,
			EscapedPrompt: html.EscapeString(trimmed),
		},
		CursorState: []schema.CursorState{cursor},
		FileURI:     s.editor.FileURI(),
	}
	if err := s.sender.SendInlinePrompt(ctx, task.Tab(), req); err != nil {
		log.Warn("prompt dispatch failed", "err", err)
		s.noticeLocked(schema.NoticeError, err, "Failed to send prompt to the assistant")
		s.endSessionLocked(true)
		return fmt.Errorf("submit prompt: %w", err)
	}
	log.Info("prompt dispatched", "prompt_len", len(trimmed))
	return nil
}

// HandleResult consumes one decrypted response snapshot. Snapshots for an
// unknown or ended conversation are dropped. Final snapshots run the
// rejection checks first; surviving bodies render as a diff, and a final
// render moves the session to the deciding state.
func (s *Session) HandleResult(tab schema.TabID, result schema.ChatResult, partial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.task
	if task == nil || task.Tab() != tab || !task.Active() {
		s.logger.Debug("result for inactive session dropped", "tab", tab, "partial", partial)
		return
	}
	log := logx.WithTab(s.logger, tab)

	if result.MessageID != "" {
		task.SetRequestID(result.MessageID)
	}

	if !partial {
		if result.AuthExpired() {
			log.Warn("session rejected: authentication expired")
			s.noticeLocked(schema.NoticeAuthExpired, schema.ErrAuthExpired, "Connection expired, please re-authenticate to continue")
			s.endSessionLocked(true)
			return
		}
		if isBlank(result.Body) {
			log.Info("session rejected: empty suggestion")
			s.noticeLocked(schema.NoticeNoSuggestions, schema.ErrNoSuggestions, "No suggestions from the assistant, please try a different instruction")
			s.endSessionLocked(true)
			return
		}
		if len(result.CodeReferences) > 0 && !s.cfg.ReferencesEnabled {
			log.Info("session rejected: code references disabled", "references", len(result.CodeReferences))
			s.noticeLocked(schema.NoticeReferencesBlocked, schema.ErrReferencesBlocked, "Suggestion included code references which are disabled in your settings")
			s.endSessionLocked(true)
			return
		}
	}

	body := html.UnescapeString(result.Body)
	if partial {
		if isBlank(body) {
			return
		}
		if prev, rendered := task.PreviousResponse(); rendered && prev == body {
			return
		}
	}

	if err := s.diff.Render(s.ui, s.editor, task, body); err != nil {
		log.Error("render failed", "err", err, "partial", partial)
		s.noticeLocked(schema.NoticeError, err, "Failed to display the suggestion")
		s.endSessionLocked(true)
		return
	}
	task.MarkFirstToken(time.Now())
	s.sink.OnResult(schema.ResultEvent{Tab: tab, Body: body, Partial: partial})

	if !partial {
		task.MarkLastToken(time.Now())
		task.SetState(schema.SessionDeciding)
		s.sink.OnState(schema.StateEvent{Tab: tab, State: schema.SessionDeciding})
		if err := s.ui.Sync(func() error {
			s.editor.SetInputBlocked(false)
			return nil
		}); err != nil {
			log.Warn("unblock input failed", "err", err)
		}
	}
}

// HandleFailure ends the session for a backend or transport failure,
// restoring the original text if anything rendered.
func (s *Session) HandleFailure(tab schema.TabID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.task
	if task == nil || task.Tab() != tab || !task.Active() {
		return
	}
	logx.WithTab(s.logger, tab).Warn("session failed", "err", err)
	s.noticeLocked(schema.NoticeError, err, "The assistant request failed, please try again")
	s.endSessionLocked(true)
}

// HandleDecision resolves a rendered diff. Accepting removes the
// deleted-code lines and keeps the suggestion; rejecting removes the
// added-code lines and restores the original text through the compound
// undo. Either way the session ends.
func (s *Session) HandleDecision(accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.task
	if task == nil || task.State() != schema.SessionDeciding {
		return schema.ErrNotFound
	}
	log := logx.WithTab(s.logger, task.Tab())

	if err := s.diff.ApplyDecision(s.ui, s.editor, accepted); err != nil {
		log.Error("decision apply failed", "err", err, "accepted", accepted)
		s.noticeLocked(schema.NoticeError, err, "Failed to apply the decision")
		s.endSessionLocked(true)
		return err
	}

	err := s.ui.Sync(func() error {
		if s.undoOpen {
			s.editor.Undo().End()
			s.undoOpen = false
		}
		if !accepted {
			return s.editor.Undo().Undo()
		}
		return nil
	})
	if err != nil {
		log.Error("undo close failed", "err", err, "accepted", accepted)
	}

	task.SetDecision(accepted)
	log.Info("session decided", "accepted", accepted)
	s.endSessionLocked(false)
	return nil
}

// HandleExternalUndo tears the session down after the user undid the
// rendered change themselves. A session still deciding counts as rejected.
func (s *Session) HandleExternalUndo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.task
	if task == nil || !task.Active() {
		return
	}
	if task.State() == schema.SessionDeciding {
		task.SetDecision(false)
	}
	logx.WithTab(s.logger, task.Tab()).Debug("external undo, ending session")
	s.endSessionLocked(false)
}

// HandleEditorClosed tears the session down when the editor goes away.
func (s *Session) HandleEditorClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil || !s.task.Active() {
		return
	}
	logx.WithTab(s.logger, s.task.Tab()).Debug("editor closed, ending session")
	s.editor = nil
	s.endSessionLocked(false)
}

// noticeLocked emits one user-facing notification for the running session.
func (s *Session) noticeLocked(kind schema.NoticeKind, cause error, msg string) {
	if s.task == nil {
		return
	}
	s.sink.OnNotice(schema.NoticeEvent{Tab: s.task.Tab(), Kind: kind, Message: msg, Err: cause})
}

// endSessionLocked is the single teardown path: cancel any inflight
// request, clear annotations and unblock input, close the compound undo
// (optionally reverting it when restore is set and something rendered),
// hand the outcome record to telemetry, and go inactive. Idempotent.
func (s *Session) endSessionLocked(restore bool) {
	task := s.task
	if task == nil {
		return
	}
	s.sender.CancelInflight(task.Tab())

	ed := s.editor
	if ed != nil {
		err := s.ui.Sync(func() error {
			ClearDiffAnnotations(ed.Annotations())
			ed.SetInputBlocked(false)
			if s.undoOpen {
				ed.Undo().End()
				s.undoOpen = false
				if restore {
					if _, rendered := task.PreviousResponse(); rendered {
						return ed.Undo().Undo()
					}
				}
			}
			return nil
		})
		if err != nil {
			logx.WithTab(s.logger, task.Tab()).Warn("session cleanup failed", "err", err)
		}
	}
	s.undoOpen = false

	task.SetState(schema.SessionInactive)
	if s.telemetry != nil {
		s.telemetry(task.BuildMetrics())
	}
	s.sink.OnState(schema.StateEvent{Tab: task.Tab(), State: schema.SessionInactive})
	s.task = nil
	s.editor = nil
}

// expandSelection widens a non-blank selection to whole lines so the diff
// operates on complete lines. The trailing line terminator is excluded
// from the captured text. Blank selections pass through untouched and
// enter cursor-only mode.
func expandSelection(doc Document, sel Selection) (Selection, error) {
	if isBlank(sel.Text) {
		return sel, nil
	}
	startLine, err := doc.LineOf(sel.Offset)
	if err != nil {
		return Selection{}, err
	}
	end := sel.Offset + sel.Length
	if sel.Length > 0 {
		end--
	}
	endLine, err := doc.LineOf(end)
	if err != nil {
		return Selection{}, err
	}
	start, err := doc.LineOffset(startLine)
	if err != nil {
		return Selection{}, err
	}
	endStart, err := doc.LineOffset(endLine)
	if err != nil {
		return Selection{}, err
	}
	endLen, err := doc.LineLength(endLine)
	if err != nil {
		return Selection{}, err
	}
	length := endStart + endLen - start
	text, err := doc.GetText(start, length)
	if err != nil {
		return Selection{}, err
	}
	text = strings.TrimSuffix(text, "\n")
	return Selection{
		Offset:    start,
		Length:    len(text),
		StartLine: startLine,
		EndLine:   endLine,
		Text:      text,
	}, nil
}

// cursorStateFor derives the request's cursor range from the captured
// selection.
func cursorStateFor(task *SessionTask) schema.CursorState {
	return schema.CursorState{
		Range: schema.Range{
			Start: schema.Position{Line: task.selectedStartLine()},
			End:   schema.Position{Line: task.selectedEndLine()},
		},
	}
}
