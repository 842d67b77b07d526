package pipeline

import (
	"context"
	"fmt"
	"strings"

	"docgen-backend/internal/models"
	"docgen-backend/internal/provider"
)

// StepKind selects how a step's raw model output is interpreted.
type StepKind string

const (
	StepText    StepKind = "text"
	StepTabular StepKind = "tabular"
)

// Step declares one ordered generation step of a multi-step agent.
type Step struct {
	Name string   `json:"name"`
	Kind StepKind `json:"kind"`
}

// Progress receives human-readable step updates as they complete.
type Progress func(message string)

// Executor drives a strictly ordered sequence of generation steps over one
// shared context. Steps run sequentially: later prompts may assume earlier
// sections already exist, and progress must reflect true completion order.
type Executor struct {
	gen        provider.Generator
	guidelines string
}

func New(gen provider.Generator, guidelines string) *Executor {
	return &Executor{gen: gen, guidelines: guidelines}
}

// Run executes every step in order and returns the ordered sections. Any
// generation failure aborts the remaining steps and discards everything
// produced so far.
func (e *Executor) Run(ctx context.Context, steps []Step, contextText string, report Progress) ([]models.Section, error) {
	sections := make([]models.Section, 0, len(steps))
	total := len(steps)
	for i, step := range steps {
		raw, err := e.gen.Generate(ctx, e.stepPrompt(step, contextText))
		if err != nil {
			return nil, fmt.Errorf("step %d/%d (%s): %w", i+1, total, step.Name, err)
		}
		if report != nil {
			report(fmt.Sprintf("Processing step %d/%d: %s", i+1, total, step.Name))
		}
		section := models.Section{Title: step.Name}
		if step.Kind == StepTabular {
			section.Table = ParseTable(raw)
		} else {
			section.Text = strings.TrimSpace(raw)
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// Freeform is the degenerate pipeline used when an agent has no step
// definitions: one generation call over the full context, raw text out.
func (e *Executor) Freeform(ctx context.Context, contextText string) (string, error) {
	out, err := e.gen.Generate(ctx, contextText)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *Executor) stepPrompt(step Step, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %s content for section '%s'.\n", step.Kind, step.Name)
	if e.guidelines != "" {
		fmt.Fprintf(&b, "Guidelines:\n%s\n", e.guidelines)
	}
	fmt.Fprintf(&b, "Context:\n%s\n", contextText)
	return b.String()
}

// ParseTable interprets raw model output as a pipe-delimited table. The first
// non-empty line is the header row; each following non-empty line is a data
// row. Short rows are padded with empty strings, long rows truncated to the
// header count.
func ParseTable(raw string) *models.Table {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	table := &models.Table{Rows: []map[string]string{}}
	if len(lines) == 0 {
		return table
	}
	for _, h := range strings.Split(lines[0], "|") {
		table.Headers = append(table.Headers, strings.TrimSpace(h))
	}
	for _, line := range lines[1:] {
		values := strings.Split(line, "|")
		row := make(map[string]string, len(table.Headers))
		for i, h := range table.Headers {
			if i < len(values) {
				row[h] = strings.TrimSpace(values[i])
			} else {
				row[h] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
