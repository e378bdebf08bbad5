package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"pkt.systems/inlined/schema"
)

// DiffResult is the outcome of one diff pass: the reconstructed text
// (original and suggested lines interleaved) and the spans describing
// which runs were inserted or deleted.
type DiffResult struct {
	Text         string
	Spans        []schema.TextDiff
	AddedLines   int
	DeletedLines int
}

// DiffEngine computes line-level edit scripts between the captured
// selection and a suggestion snapshot, and renders them into the editor.
// Compute is pure; calling it twice with the same inputs yields the same
// result.
type DiffEngine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewDiffEngine constructs a diff engine.
func NewDiffEngine() *DiffEngine {
	return &DiffEngine{dmp: diffmatchpatch.New()}
}

// Compute diffs the original region text against a candidate replacement.
// Span offsets are relative to the region start shifted by base. If the
// original did not end in a newline, a synthetic trailing newline on the
// reconstruction is trimmed.
func (e *DiffEngine) Compute(original, candidate string, base int) DiffResult {
	origLines := splitLines(original)
	newLines := splitLines(candidate)

	var b strings.Builder
	spans := make([]schema.TextDiff, 0, len(newLines))
	pos := 0
	added := 0
	deleted := 0

	for _, run := range e.lineRuns(origLines, newLines) {
		for _, line := range run.lines {
			b.WriteString(line)
			b.WriteByte('\n')
			switch run.kind {
			case editDelete:
				spans = append(spans, schema.TextDiff{Offset: base + pos, Length: len(line), Deletion: true})
				deleted++
			case editInsert:
				spans = append(spans, schema.TextDiff{Offset: base + pos, Length: len(line), Deletion: false})
				added++
			}
			pos += len(line) + 1
		}
	}

	text := b.String()
	if !strings.HasSuffix(original, "\n") && strings.HasSuffix(text, "\n") {
		text = text[:len(text)-1]
	}
	return DiffResult{Text: text, Spans: spans, AddedLines: added, DeletedLines: deleted}
}

// Render runs one diff pass and applies it to the editor: clear the
// previous diff annotations, replace the previously rendered range with
// the reconstruction in a single edit, draw one annotation per span, and
// record the new rendered length on the task. The whole sequence executes
// as one unit on the UI thread.
func (e *DiffEngine) Render(ui UIExecutor, ed Editor, task *SessionTask, body string) error {
	return ui.Sync(func() error {
		doc := ed.Document()
		model := ed.Annotations()

		res := e.Compute(task.OriginalText(), body, task.SelectionOffset())
		ClearDiffAnnotations(model)
		if err := doc.Replace(task.SelectionOffset(), task.PreviousDisplayLength(), res.Text); err != nil {
			return fmt.Errorf("%w: %v", schema.ErrRenderFailed, err)
		}
		for _, d := range res.Spans {
			typ, text := AnnotationAdded, "Added code"
			if d.Deletion {
				typ, text = AnnotationDeleted, "Deleted code"
			}
			model.Add(Annotation{Type: typ, Text: text, Offset: d.Offset, Length: d.Length})
		}
		task.RecordRender(body, len(res.Text), res.Spans, res.AddedLines, res.DeletedLines)
		return nil
	})
}

// ApplyDecision converges the rendered diff to one side. Accepting purges
// the deleted-code lines, rejecting purges the added-code lines; either
// way all diff annotations are cleared afterwards. Lines are removed in
// descending offset order so earlier removals do not shift later ones.
func (e *DiffEngine) ApplyDecision(ui UIExecutor, ed Editor, accepted bool) error {
	return ui.Sync(func() error {
		doc := ed.Document()
		model := ed.Annotations()

		purge := AnnotationAdded
		if accepted {
			purge = AnnotationDeleted
		}
		var victims []AnnotatedSpan
		for _, span := range model.List() {
			if span.Type == purge {
				victims = append(victims, span)
			}
		}
		sort.Slice(victims, func(i, j int) bool { return victims[i].Offset > victims[j].Offset })

		for _, span := range victims {
			line, err := doc.LineOf(span.Offset)
			if err != nil {
				return fmt.Errorf("%w: %v", schema.ErrRenderFailed, err)
			}
			start, err := doc.LineOffset(line)
			if err != nil {
				return fmt.Errorf("%w: %v", schema.ErrRenderFailed, err)
			}
			length, err := doc.LineLength(line)
			if err != nil {
				return fmt.Errorf("%w: %v", schema.ErrRenderFailed, err)
			}
			if err := doc.Replace(start, length, ""); err != nil {
				return fmt.Errorf("%w: %v", schema.ErrRenderFailed, err)
			}
		}
		ClearDiffAnnotations(model)
		return nil
	})
}

// ClearDiffAnnotations removes every annotation this engine draws.
func ClearDiffAnnotations(model AnnotationModel) {
	for _, span := range model.List() {
		if strings.HasPrefix(span.Type, annotationPrefix) {
			model.Remove(span.ID)
		}
	}
}

type editKind int

const (
	editEqual editKind = iota
	editDelete
	editInsert
)

type editRun struct {
	kind  editKind
	lines []string
}

// lineRuns produces the line-level edit script. Each distinct line is
// encoded as one rune so the character matcher operates line-wise; runs
// are normalized so a deletion precedes the insertion that replaces it.
func (e *DiffEngine) lineRuns(a, b []string) []editRun {
	index := make(map[string]rune, len(a)+len(b))
	var table []string

	encode := func(lines []string) string {
		var sb strings.Builder
		for _, line := range lines {
			r, ok := index[line]
			if !ok {
				r = lineRune(len(table))
				index[line] = r
				table = append(table, line)
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	encodedA := encode(a)
	encodedB := encode(b)

	diffs := e.dmp.DiffMain(encodedA, encodedB, false)

	runs := make([]editRun, 0, len(diffs))
	for _, d := range diffs {
		var lines []string
		for _, r := range d.Text {
			lines = append(lines, table[lineIndex(r)])
		}
		var kind editKind
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = editDelete
		case diffmatchpatch.DiffInsert:
			kind = editInsert
		default:
			kind = editEqual
		}
		runs = append(runs, editRun{kind: kind, lines: lines})
	}

	for i := 0; i+1 < len(runs); i++ {
		if runs[i].kind == editInsert && runs[i+1].kind == editDelete {
			runs[i], runs[i+1] = runs[i+1], runs[i]
		}
	}
	return runs
}

// lineRune maps a table index to a rune, skipping the surrogate range.
func lineRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// lineIndex inverts lineRune.
func lineIndex(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r) - 1
}

// splitLines splits on '\n', dropping the empty remainder a trailing
// newline produces.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
