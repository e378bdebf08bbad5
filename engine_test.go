package inlined

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/inlined/core"
	"pkt.systems/inlined/schema"
)

type rpcResponse struct {
	raw json.RawMessage
	err error
}

type rpcCall struct {
	method string
	params any
	resp   chan rpcResponse
}

// stubTransport hands each request to the test over a channel so the test
// plays the backend.
type stubTransport struct {
	calls chan rpcCall
}

func newStubTransport() *stubTransport {
	return &stubTransport{calls: make(chan rpcCall, 4)}
}

func (s *stubTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	call := rpcCall{method: method, params: params, resp: make(chan rpcResponse, 1)}
	s.calls <- call
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-call.resp:
		return resp.raw, resp.err
	}
}

func (s *stubTransport) Notify(method string, params any) error { return nil }

type plainCipher struct{}

func (plainCipher) Encrypt(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (plainCipher) Decrypt(s string) (string, error) { return s, nil }

type stubDoc struct {
	text string
}

func (d *stubDoc) Length() int { return len(d.text) }

func (d *stubDoc) GetText(offset, length int) (string, error) {
	if offset < 0 || length < 0 || offset+length > len(d.text) {
		return "", fmt.Errorf("out of range")
	}
	return d.text[offset : offset+length], nil
}

func (d *stubDoc) Replace(offset, length int, text string) error {
	if offset < 0 || length < 0 || offset+length > len(d.text) {
		return fmt.Errorf("out of range")
	}
	d.text = d.text[:offset] + text + d.text[offset+length:]
	return nil
}

func (d *stubDoc) LineOf(offset int) (int, error) {
	if offset < 0 || offset > len(d.text) {
		return 0, fmt.Errorf("out of range")
	}
	return strings.Count(d.text[:offset], "\n"), nil
}

func (d *stubDoc) LineOffset(line int) (int, error) {
	idx := 0
	for i := 0; i < line; i++ {
		n := strings.IndexByte(d.text[idx:], '\n')
		if n < 0 {
			return 0, fmt.Errorf("line out of range")
		}
		idx += n + 1
	}
	return idx, nil
}

func (d *stubDoc) LineLength(line int) (int, error) {
	start, err := d.LineOffset(line)
	if err != nil {
		return 0, err
	}
	if n := strings.IndexByte(d.text[start:], '\n'); n >= 0 {
		return n + 1, nil
	}
	return len(d.text) - start, nil
}

type stubAnnotations struct {
	nextID int
	spans  map[int]core.Annotation
}

func (a *stubAnnotations) Add(ann core.Annotation) int {
	a.nextID++
	a.spans[a.nextID] = ann
	return a.nextID
}

func (a *stubAnnotations) Remove(id int) { delete(a.spans, id) }

func (a *stubAnnotations) List() []core.AnnotatedSpan {
	out := make([]core.AnnotatedSpan, 0, len(a.spans))
	for id, ann := range a.spans {
		out = append(out, core.AnnotatedSpan{ID: id, Annotation: ann})
	}
	return out
}

type stubUndo struct {
	doc      *stubDoc
	snapshot string
}

func (u *stubUndo) Begin()      { u.snapshot = u.doc.text }
func (u *stubUndo) End()        {}
func (u *stubUndo) Undo() error { u.doc.text = u.snapshot; return nil }

type stubEditor struct {
	doc    *stubDoc
	anns   *stubAnnotations
	undo   *stubUndo
	selOff int
	selLen int
}

func newStubEditor(text string, selOff, selLen int) *stubEditor {
	doc := &stubDoc{text: text}
	return &stubEditor{
		doc:    doc,
		anns:   &stubAnnotations{spans: make(map[int]core.Annotation)},
		undo:   &stubUndo{doc: doc},
		selOff: selOff,
		selLen: selLen,
	}
}

func (e *stubEditor) Document() core.Document           { return e.doc }
func (e *stubEditor) Annotations() core.AnnotationModel { return e.anns }
func (e *stubEditor) Undo() core.UndoManager            { return e.undo }
func (e *stubEditor) SetInputBlocked(bool)              {}
func (e *stubEditor) FileURI() string                   { return "file:///demo/main.go" }

func (e *stubEditor) Selection() (core.Selection, error) {
	text, err := e.doc.GetText(e.selOff, e.selLen)
	if err != nil {
		return core.Selection{}, err
	}
	return core.Selection{Offset: e.selOff, Length: e.selLen, Text: text}, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []schema.SessionState
}

func (r *stateRecorder) OnResult(schema.ResultEvent) {}
func (r *stateRecorder) OnNotice(schema.NoticeEvent) {}

func (r *stateRecorder) OnState(ev schema.StateEvent) {
	r.mu.Lock()
	r.states = append(r.states, ev.State)
	r.mu.Unlock()
}

func (r *stateRecorder) sequence() []schema.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.SessionState, len(r.states))
	copy(out, r.states)
	return out
}

func waitForState(t *testing.T, e *Engine, want schema.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.SessionState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, at %v", want, e.SessionState())
}

func encodeResult(t *testing.T, result schema.ChatResult) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	raw, err := json.Marshal(string(inner))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestEngineStreamedSessionAccept(t *testing.T) {
	tr := newStubTransport()
	recorder := &stateRecorder{}
	engine, err := New(schema.EngineConfig{}, EngineDeps{
		Transport: tr,
		Cipher:    plainCipher{},
		Sinks:     []core.EventSink{recorder, &stateRecorder{}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	ed := newStubEditor("foo\nbar\ntail", 0, 7)
	if err := engine.StartSession(ed); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := engine.SubmitPrompt(context.Background(), "replace bar"); err != nil {
		t.Fatalf("submit prompt: %v", err)
	}

	var call rpcCall
	select {
	case call = <-tr.calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("prompt never reached the transport")
	}
	payload, ok := call.params.(schema.EncryptedRequest)
	if !ok {
		t.Fatalf("unexpected wire payload %T", call.params)
	}
	token := payload.PartialResultToken
	if token == "" {
		t.Fatalf("expected a correlation token")
	}

	// Stream a partial snapshot the way the backend would.
	partial, _ := json.Marshal(schema.ChatResult{Body: "foo\nbaz"})
	note, _ := json.Marshal(schema.ProgressNotification{Token: token, Value: string(partial), Partial: true})
	engine.HandleProgressNotification("$/progress", note)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(ed.doc.text, "baz") {
		time.Sleep(5 * time.Millisecond)
	}
	if ed.doc.text != "foo\nbar\nbaz\ntail" {
		t.Fatalf("partial not rendered: %q", ed.doc.text)
	}

	call.resp <- rpcResponse{raw: encodeResult(t, schema.ChatResult{MessageID: "msg-1", Body: "foo\nbaz"})}
	waitForState(t, engine, schema.SessionDeciding)

	if err := engine.HandleDecision(true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ed.doc.text != "foo\nbaz\ntail" {
		t.Fatalf("unexpected document after accept %q", ed.doc.text)
	}
	waitForState(t, engine, schema.SessionInactive)

	states := recorder.sequence()
	want := []schema.SessionState{
		schema.SessionActive,
		schema.SessionGenerating,
		schema.SessionDeciding,
		schema.SessionInactive,
	}
	if len(states) != len(want) {
		t.Fatalf("unexpected state sequence %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: expected %v, got %v", i, want[i], states[i])
		}
	}
}

func TestEngineOrphanProgressIgnored(t *testing.T) {
	tr := newStubTransport()
	engine, err := New(schema.EngineConfig{}, EngineDeps{
		Transport: tr,
		Cipher:    plainCipher{},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	partial, _ := json.Marshal(schema.ChatResult{Body: "ghost"})
	note, _ := json.Marshal(schema.ProgressNotification{Token: "stale", Value: string(partial), Partial: true})
	engine.HandleProgressNotification("$/progress", note)

	if engine.SessionState() != schema.SessionInactive {
		t.Fatalf("orphan progress must not start anything")
	}
}

func TestEngineRequiresTransport(t *testing.T) {
	if _, err := New(schema.EngineConfig{}, EngineDeps{Cipher: plainCipher{}}); err == nil {
		t.Fatalf("expected transport requirement error")
	}
}
