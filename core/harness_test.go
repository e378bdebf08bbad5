package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/inlined/schema"
)

// syncExec runs submitted work inline; tests drive everything from one
// goroutine.
type syncExec struct{}

func (syncExec) Sync(fn func() error) error { return fn() }
func (syncExec) Async(fn func())            { fn() }

type replaceCall struct {
	offset, length int
	text           string
}

type fakeDoc struct {
	text     string
	replaces []replaceCall
}

func (d *fakeDoc) Length() int { return len(d.text) }

func (d *fakeDoc) GetText(offset, length int) (string, error) {
	if offset < 0 || length < 0 || offset+length > len(d.text) {
		return "", fmt.Errorf("get text out of range: %d+%d of %d", offset, length, len(d.text))
	}
	return d.text[offset : offset+length], nil
}

func (d *fakeDoc) Replace(offset, length int, text string) error {
	if offset < 0 || length < 0 || offset+length > len(d.text) {
		return fmt.Errorf("replace out of range: %d+%d of %d", offset, length, len(d.text))
	}
	d.replaces = append(d.replaces, replaceCall{offset: offset, length: length, text: text})
	d.text = d.text[:offset] + text + d.text[offset+length:]
	return nil
}

func (d *fakeDoc) LineOf(offset int) (int, error) {
	if offset < 0 || offset > len(d.text) {
		return 0, fmt.Errorf("offset %d out of range", offset)
	}
	return strings.Count(d.text[:offset], "\n"), nil
}

func (d *fakeDoc) LineOffset(line int) (int, error) {
	if line < 0 {
		return 0, fmt.Errorf("line %d out of range", line)
	}
	idx := 0
	for i := 0; i < line; i++ {
		n := strings.IndexByte(d.text[idx:], '\n')
		if n < 0 {
			return 0, fmt.Errorf("line %d out of range", line)
		}
		idx += n + 1
	}
	return idx, nil
}

func (d *fakeDoc) LineLength(line int) (int, error) {
	start, err := d.LineOffset(line)
	if err != nil {
		return 0, err
	}
	n := strings.IndexByte(d.text[start:], '\n')
	if n < 0 {
		return len(d.text) - start, nil
	}
	return n + 1, nil
}

type fakeAnnotations struct {
	nextID int
	spans  map[int]Annotation
}

func newFakeAnnotations() *fakeAnnotations {
	return &fakeAnnotations{spans: make(map[int]Annotation)}
}

func (a *fakeAnnotations) Add(ann Annotation) int {
	a.nextID++
	a.spans[a.nextID] = ann
	return a.nextID
}

func (a *fakeAnnotations) Remove(id int) {
	delete(a.spans, id)
}

func (a *fakeAnnotations) List() []AnnotatedSpan {
	out := make([]AnnotatedSpan, 0, len(a.spans))
	for id, ann := range a.spans {
		out = append(out, AnnotatedSpan{ID: id, Annotation: ann})
	}
	return out
}

func (a *fakeAnnotations) byType(typ string) []Annotation {
	var out []Annotation
	for _, ann := range a.spans {
		if ann.Type == typ {
			out = append(out, ann)
		}
	}
	return out
}

type fakeUndo struct {
	doc      *fakeDoc
	snapshot string
	begins   int
	ends     int
	undos    int
	open     bool
}

func (u *fakeUndo) Begin() {
	u.begins++
	u.open = true
	u.snapshot = u.doc.text
}

func (u *fakeUndo) End() {
	u.ends++
	u.open = false
}

func (u *fakeUndo) Undo() error {
	u.undos++
	u.doc.text = u.snapshot
	return nil
}

type fakeEditor struct {
	doc     *fakeDoc
	anns    *fakeAnnotations
	undo    *fakeUndo
	selOff  int
	selLen  int
	selErr  error
	fileURI string
	blocks  []bool
}

func newFakeEditor(text string, selOff, selLen int) *fakeEditor {
	doc := &fakeDoc{text: text}
	return &fakeEditor{
		doc:     doc,
		anns:    newFakeAnnotations(),
		undo:    &fakeUndo{doc: doc},
		selOff:  selOff,
		selLen:  selLen,
		fileURI: "file:///tmp/example.go",
	}
}

func (e *fakeEditor) Document() Document {
	if e.doc == nil {
		return nil
	}
	return e.doc
}

func (e *fakeEditor) Annotations() AnnotationModel { return e.anns }
func (e *fakeEditor) Undo() UndoManager            { return e.undo }

func (e *fakeEditor) Selection() (Selection, error) {
	if e.selErr != nil {
		return Selection{}, e.selErr
	}
	text, err := e.doc.GetText(e.selOff, e.selLen)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Offset: e.selOff, Length: e.selLen, Text: text}, nil
}

func (e *fakeEditor) SetInputBlocked(blocked bool) {
	e.blocks = append(e.blocks, blocked)
}

func (e *fakeEditor) FileURI() string { return e.fileURI }

type fakeSender struct {
	mu      sync.Mutex
	reqs    []schema.InlineChatRequest
	tabs    []schema.TabID
	cancels []schema.TabID
	sendErr error
}

func (s *fakeSender) SendInlinePrompt(ctx context.Context, tab schema.TabID, req schema.InlineChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.reqs = append(s.reqs, req)
	s.tabs = append(s.tabs, tab)
	return nil
}

func (s *fakeSender) CancelInflight(tab schema.TabID) {
	s.mu.Lock()
	s.cancels = append(s.cancels, tab)
	s.mu.Unlock()
}

func (s *fakeSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

type recordSink struct {
	mu      sync.Mutex
	results []schema.ResultEvent
	notices []schema.NoticeEvent
	states  []schema.StateEvent
}

func (s *recordSink) OnResult(ev schema.ResultEvent) {
	s.mu.Lock()
	s.results = append(s.results, ev)
	s.mu.Unlock()
}

func (s *recordSink) OnNotice(ev schema.NoticeEvent) {
	s.mu.Lock()
	s.notices = append(s.notices, ev)
	s.mu.Unlock()
}

func (s *recordSink) OnState(ev schema.StateEvent) {
	s.mu.Lock()
	s.states = append(s.states, ev)
	s.mu.Unlock()
}

func (s *recordSink) lastNotice() (schema.NoticeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return schema.NoticeEvent{}, false
	}
	return s.notices[len(s.notices)-1], true
}

func (s *recordSink) stateSequence() []schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.SessionState, 0, len(s.states))
	for _, ev := range s.states {
		out = append(out, ev.State)
	}
	return out
}
