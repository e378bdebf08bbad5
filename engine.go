// Package inlined composes the inline assist engine: encrypted chat
// dispatch, streamed progress correlation, and the diff-rendering session
// over a host editor.
package inlined

import (
	"context"
	"encoding/json"
	"errors"

	"pkt.systems/inlined/chat"
	"pkt.systems/inlined/core"
	"pkt.systems/inlined/internal/msgcrypt"
	"pkt.systems/inlined/internal/uiexec"
	"pkt.systems/inlined/schema"
	"pkt.systems/pslog"
)

// EngineDeps captures dependencies required to build the engine. Transport
// is required. Cipher defaults to a key store opened at the configured
// path; UI defaults to an executor the engine owns and closes.
type EngineDeps struct {
	Transport chat.Transport
	Cipher    chat.Cipher
	UI        core.UIExecutor
	Sinks     []core.EventSink
	Telemetry core.TelemetryFunc
	Logger    pslog.Logger
}

// Engine is the compositor. It routes decrypted chat results into the
// session and exposes the session's operations to the host.
type Engine struct {
	cfg     schema.EngineConfig
	manager *chat.Manager
	session *core.Session
	ownUI   *uiexec.Executor
	logger  pslog.Logger
}

// New constructs the engine.
func New(cfg schema.EngineConfig, deps EngineDeps) (*Engine, error) {
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	cipher := deps.Cipher
	if cipher == nil {
		codec, err := msgcrypt.Open(normalized.KeyStorePath, logger)
		if err != nil {
			return nil, err
		}
		cipher = codec
	}

	e := &Engine{cfg: normalized, logger: logger}

	ui := deps.UI
	if ui == nil {
		e.ownUI = uiexec.New()
		ui = e.ownUI
	}

	manager, err := chat.NewManager(normalized, chat.ManagerDeps{
		Transport: deps.Transport,
		Cipher:    cipher,
		Sink:      e,
		Logger:    logger,
	})
	if err != nil {
		e.closeOwned()
		return nil, err
	}
	e.manager = manager

	session, err := core.NewSession(normalized, core.Deps{
		Sender:    manager,
		UI:        ui,
		Sink:      combineSinks(deps.Sinks),
		Telemetry: deps.Telemetry,
		Logger:    logger,
	})
	if err != nil {
		e.closeOwned()
		return nil, err
	}
	e.session = session
	return e, nil
}

func combineSinks(sinks []core.EventSink) core.EventSink {
	filtered := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	switch len(filtered) {
	case 0:
		return nopSink{}
	case 1:
		return filtered[0]
	default:
		return eventFanout{sinks: filtered}
	}
}

// StartSession opens an inline assist session on the editor.
func (e *Engine) StartSession(ed core.Editor) error {
	return e.session.Start(ed)
}

// SubmitPrompt dispatches the user's instruction for the running session.
func (e *Engine) SubmitPrompt(ctx context.Context, prompt string) error {
	return e.session.SubmitPrompt(ctx, prompt)
}

// HandleDecision accepts or rejects the rendered suggestion.
func (e *Engine) HandleDecision(accepted bool) error {
	return e.session.HandleDecision(accepted)
}

// NotifyExternalUndo reports that the user undid the rendered change.
func (e *Engine) NotifyExternalUndo() {
	e.session.HandleExternalUndo()
}

// NotifyEditorClosed reports that the session's editor went away.
func (e *Engine) NotifyEditorClosed() {
	e.session.HandleEditorClosed()
}

// SessionState returns the current session lifecycle state.
func (e *Engine) SessionState() schema.SessionState {
	return e.session.State()
}

// SessionTab returns the running session's conversation id, "" when idle.
func (e *Engine) SessionTab() schema.TabID {
	return e.session.Tab()
}

// HandleProgressNotification decodes a streamed backend notification and
// routes it to the owning conversation. Wire it to the transport's
// notification handler for chat.MethodProgress.
func (e *Engine) HandleProgressNotification(method string, params json.RawMessage) {
	var note schema.ProgressNotification
	if err := json.Unmarshal(params, &note); err != nil {
		e.logger.Warn("progress notification malformed", "method", method, "err", err)
		return
	}
	e.manager.HandleProgress(note)
}

// Call runs a non-streaming backend request under the configured timeout.
func (e *Engine) Call(ctx context.Context, id schema.RequestID, method string, params any) (any, error) {
	return e.manager.RoundTrip(ctx, id, method, params)
}

// CompleteCall resolves a pending call the host answers itself.
func (e *Engine) CompleteCall(id schema.RequestID, value any) {
	e.manager.CompleteRoundTrip(id, value)
}

// OnResult implements chat.ResultSink.
func (e *Engine) OnResult(tab schema.TabID, result schema.ChatResult, partial bool) {
	e.session.HandleResult(tab, result, partial)
}

// OnFailure implements chat.ResultSink.
func (e *Engine) OnFailure(tab schema.TabID, err error) {
	e.session.HandleFailure(tab, err)
}

// Close releases engine-owned resources. Sessions in flight are torn down
// by the host before closing.
func (e *Engine) Close() {
	e.closeOwned()
}

func (e *Engine) closeOwned() {
	if e.ownUI != nil {
		e.ownUI.Close()
	}
}
