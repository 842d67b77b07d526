package agent

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path/filepath"

	"docgen-backend/internal/assemble"
	"docgen-backend/internal/extract"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/models"
	"docgen-backend/internal/pipeline"
	"docgen-backend/internal/provider"
)

//go:embed rag/*
var ragFS embed.FS

// TSD generates a Technical Specification Document section by section and
// assembles the outputs into a DOCX artifact. Step definitions and writing
// guidelines ship embedded in the binary.
type TSD struct {
	store     *jobstore.Store
	extractor *extract.Extractor
	builder   *assemble.Builder
	exec      *pipeline.Executor
	steps     []pipeline.Step
	outputDir string
	baseURL   string
}

func NewTSD(store *jobstore.Store, gen provider.Generator, extractor *extract.Extractor, builder *assemble.Builder, outputDir, baseURL string) (*TSD, error) {
	rawSteps, err := ragFS.ReadFile("rag/sections.json")
	if err != nil {
		return nil, fmt.Errorf("read section definitions: %w", err)
	}
	var steps []pipeline.Step
	if err := json.Unmarshal(rawSteps, &steps); err != nil {
		return nil, fmt.Errorf("parse section definitions: %w", err)
	}
	guidelines, err := ragFS.ReadFile("rag/guidelines.md")
	if err != nil {
		return nil, fmt.Errorf("read guidelines: %w", err)
	}
	return &TSD{
		store:     store,
		extractor: extractor,
		builder:   builder,
		exec:      pipeline.New(gen, string(guidelines)),
		steps:     steps,
		outputDir: outputDir,
		baseURL:   baseURL,
	}, nil
}

func (t *TSD) Name() string { return "tsd" }

func (t *TSD) Describe() string {
	return "Generate a Technical Specification Document (TSD) from source content"
}

func (t *TSD) Run(ctx context.Context, jobID, inputText string, files []models.FileRef) (*models.Result, error) {
	if inputText == "" && len(files) == 0 {
		return nil, ErrInvalidInput
	}
	extracted, err := t.extractor.ExtractAll(ctx, files)
	if err != nil {
		return nil, err
	}
	contextText := joinNonEmpty("\n", extracted, inputText)

	// No configured steps degrades to a single free-form generation with
	// no document assembly.
	if len(t.steps) == 0 {
		text, err := t.exec.Freeform(ctx, contextText)
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: text}, nil
	}

	sections, err := t.exec.Run(ctx, t.steps, contextText, func(msg string) {
		t.store.AppendLog(jobID, msg)
	})
	if err != nil {
		return nil, err
	}

	filename := jobID + ".docx"
	if err := t.builder.Build(sections, filepath.Join(t.outputDir, filename)); err != nil {
		return nil, err
	}
	return &models.Result{FileURL: t.baseURL + "/" + filename}, nil
}
