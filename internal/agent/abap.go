package agent

import (
	"context"
	"strings"

	"docgen-backend/internal/extract"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/models"
	"docgen-backend/internal/provider"
)

// Output modes for the ABAP generator, chosen by keyword detection on the
// raw user input. The match is literal: a request mentioning "the code you
// explained" selects both modes.
const (
	modeCode        = "code"
	modeExplanation = "explanation"
	modeBoth        = "both"
)

// ABAP is the single-shot generator: one model call produces ABAP code, an
// explanation, or both.
type ABAP struct {
	store     *jobstore.Store
	gen       provider.Generator
	extractor *extract.Extractor
}

func NewABAP(store *jobstore.Store, gen provider.Generator, extractor *extract.Extractor) *ABAP {
	return &ABAP{store: store, gen: gen, extractor: extractor}
}

func (a *ABAP) Name() string { return "abap" }

func (a *ABAP) Describe() string {
	return "Generate SAP ABAP code from natural language or examples"
}

func (a *ABAP) Run(ctx context.Context, jobID, inputText string, files []models.FileRef) (*models.Result, error) {
	if inputText == "" && len(files) == 0 {
		return nil, ErrInvalidInput
	}
	extracted, err := a.extractor.ExtractAll(ctx, files)
	if err != nil {
		return nil, err
	}
	combined := joinNonEmpty("\n", extracted, inputText)

	out, err := a.gen.Generate(ctx, buildABAPPrompt(detectMode(inputText), combined))
	if err != nil {
		return nil, err
	}
	a.store.AppendLog(jobID, "Generated ABAP response")
	return &models.Result{Text: strings.TrimSpace(out)}, nil
}

// detectMode scans the raw user text for literal mode keywords.
func detectMode(input string) string {
	lower := strings.ToLower(input)
	wantsExplanation := containsAny(lower, "explain", "explanation", "why")
	wantsCode := containsAny(lower, "code", "abap")
	switch {
	case wantsExplanation && !wantsCode:
		return modeExplanation
	case wantsExplanation && wantsCode:
		return modeBoth
	default:
		return modeCode
	}
}

func buildABAPPrompt(mode, instructions string) string {
	var b strings.Builder
	b.WriteString("You are an SAP ABAP expert. Generate clean, modular ABAP code following SAP naming conventions. ")
	if mode == modeCode || mode == modeBoth {
		b.WriteString("Return only the final ABAP code. ")
	}
	if mode == modeExplanation {
		b.WriteString("Return only an explanation without any code. ")
	}
	if mode == modeBoth {
		b.WriteString("Return the ABAP code first, then a clear explanation. ")
	}
	b.WriteString("\nInstructions:\n")
	b.WriteString(instructions)
	b.WriteString("\n")
	return b.String()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
