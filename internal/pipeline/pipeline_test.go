package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docgen-backend/internal/provider"
)

// scriptedGenerator returns canned outputs in call order, failing at failAt
// (1-based) if set.
type scriptedGenerator struct {
	outputs []string
	failAt  int
	calls   int
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.failAt != 0 && g.calls == g.failAt {
		return "", &provider.GenerationError{Provider: "scripted", Err: errors.New("model unavailable")}
	}
	return g.outputs[g.calls-1], nil
}

func TestParseTable(t *testing.T) {
	table := ParseTable("Name|Age\nAlice|30\nBob|")
	if len(table.Headers) != 2 || table.Headers[0] != "Name" || table.Headers[1] != "Age" {
		t.Fatalf("bad headers: %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0]["Name"] != "Alice" || table.Rows[0]["Age"] != "30" {
		t.Fatalf("bad first row: %v", table.Rows[0])
	}
	if table.Rows[1]["Name"] != "Bob" || table.Rows[1]["Age"] != "" {
		t.Fatalf("missing trailing field must be empty: %v", table.Rows[1])
	}
}

func TestParseTableTruncatesLongRows(t *testing.T) {
	table := ParseTable("A|B\n1|2|3|4")
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	row := table.Rows[0]
	if len(row) != 2 || row["A"] != "1" || row["B"] != "2" {
		t.Fatalf("long row not truncated to headers: %v", row)
	}
}

func TestParseTableSkipsBlankLines(t *testing.T) {
	table := ParseTable("\n\n  Name | Age  \n\n Alice | 30 \n")
	if len(table.Headers) != 2 || table.Headers[0] != "Name" {
		t.Fatalf("blank lines disturbed headers: %v", table.Headers)
	}
	if len(table.Rows) != 1 || table.Rows[0]["Name"] != "Alice" {
		t.Fatalf("blank lines disturbed rows: %v", table.Rows)
	}
}

func TestRunProducesOrderedSectionsAndProgress(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"  An overview paragraph.  ",
		"Field|Type\nMATNR|CHAR18",
	}}
	exec := New(gen, "Write tersely.")

	var progress []string
	sections, err := exec.Run(context.Background(), []Step{
		{Name: "Overview", Kind: StepText},
		{Name: "Field Mapping", Kind: StepTabular},
	}, "source context", func(msg string) { progress = append(progress, msg) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Title != "Overview" || sections[0].Text != "An overview paragraph." {
		t.Fatalf("bad text section: %+v", sections[0])
	}
	if sections[1].Table == nil || sections[1].Table.Rows[0]["Field"] != "MATNR" {
		t.Fatalf("bad tabular section: %+v", sections[1])
	}

	want := []string{"Processing step 1/2: Overview", "Processing step 2/2: Field Mapping"}
	if fmt.Sprint(progress) != fmt.Sprint(want) {
		t.Fatalf("progress mismatch: %v", progress)
	}

	// Prompts carry kind, guidelines, and shared context.
	for i, p := range gen.prompts {
		if !strings.Contains(p, "Guidelines:\nWrite tersely.") || !strings.Contains(p, "Context:\nsource context") {
			t.Fatalf("prompt %d incomplete: %q", i, p)
		}
	}
	if !strings.Contains(gen.prompts[1], "Generate tabular content for section 'Field Mapping'") {
		t.Fatalf("kind missing from prompt: %q", gen.prompts[1])
	}
}

func TestRunAbortsOnStepFailure(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"one", "", "three"}, failAt: 2}
	exec := New(gen, "")

	var progress []string
	sections, err := exec.Run(context.Background(), []Step{
		{Name: "A", Kind: StepText},
		{Name: "B", Kind: StepText},
		{Name: "C", Kind: StepText},
	}, "ctx", func(msg string) { progress = append(progress, msg) })

	var genErr *provider.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if sections != nil {
		t.Fatalf("partial sections leaked: %+v", sections)
	}
	if gen.calls != 2 {
		t.Fatalf("step 3 ran after step 2 failed: %d calls", gen.calls)
	}
	if len(progress) != 1 {
		t.Fatalf("progress reported for failed step: %v", progress)
	}
}

func TestFreeform(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"  raw answer  "}}
	out, err := New(gen, "unused").Freeform(context.Background(), "the whole context")
	if err != nil {
		t.Fatalf("freeform: %v", err)
	}
	if out != "raw answer" {
		t.Fatalf("got %q", out)
	}
	if !strings.Contains(gen.prompts[0], "the whole context") {
		t.Fatalf("context not passed through: %q", gen.prompts[0])
	}
}
