package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"docgen-backend/internal/models"
)

// MIME types the extractor understands natively. PDF, DOCX, and images pass
// MIME validation at upload time but extract to "" here: there is no OCR, and
// binary document parsing is deferred to a dedicated service.
const (
	typePDF  = "application/pdf"
	typeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	typeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	typeTxt  = "text/plain"
	typeCSV  = "text/csv"
)

// Extractor pulls plain text out of stored uploads for use as generation
// context.
type Extractor struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Extractor {
	return &Extractor{log: log.With("component", "extract")}
}

// ExtractAll concatenates the extracted text of every file, separated by
// blank lines. Unsupported types contribute an empty string rather than an
// error so one image in a batch does not sink the whole job.
func (e *Extractor) ExtractAll(ctx context.Context, files []models.FileRef) (string, error) {
	texts := make([]string, 0, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		text, err := e.Extract(f)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Filename, err)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// Extract returns the text content of a single file, keyed on MIME type with
// an extension fallback.
func (e *Extractor) Extract(f models.FileRef) (string, error) {
	ext := strings.ToLower(filepath.Ext(f.Path))
	switch {
	case f.ContentType == typeTxt || ext == ".txt" || ext == ".log":
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	case f.ContentType == typeCSV || ext == ".csv":
		return extractCSV(f.Path)
	case f.ContentType == typeXlsx || ext == ".xlsx":
		return extractXLSX(f.Path)
	case f.ContentType == typePDF || ext == ".pdf",
		f.ContentType == typeDocx || ext == ".docx",
		strings.HasPrefix(f.ContentType, "image/"):
		e.log.Debugw("no extractor for type, skipping", "file", f.Filename, "content_type", f.ContentType)
		return "", nil
	default:
		return "", nil
	}
}

// extractCSV reads and re-serializes the file, normalizing quoting and line
// endings so the model sees consistent input.
func extractCSV(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.WriteAll(records); err != nil {
		return "", err
	}
	return b.String(), nil
}

// extractXLSX flattens every sheet into CSV-shaped text, one block per sheet
// headed by the sheet name.
func extractXLSX(path string) (string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var blocks []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString(sheet + "\n")
		w := csv.NewWriter(&b)
		if err := w.WriteAll(rows); err != nil {
			return "", err
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}
