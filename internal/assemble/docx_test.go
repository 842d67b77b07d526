package assemble

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docgen-backend/internal/logger"
	"docgen-backend/internal/models"
)

func readZipEntry(t *testing.T, path, name string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		return string(raw)
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func TestBuildWritesHeadingsParagraphsAndTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "job-1.docx")
	sections := []models.Section{
		{Title: "Overview", Text: "line one\nline two"},
		{Title: "Field Mapping", Table: &models.Table{
			Headers: []string{"Name", "Age"},
			Rows: []map[string]string{
				{"Name": "Alice", "Age": "30"},
				{"Name": "Bob"}, // missing Age renders as empty cell
			},
		}},
	}

	if err := NewBuilder(logger.NewNop()).Build(sections, path); err != nil {
		t.Fatalf("build: %v", err)
	}

	doc := readZipEntry(t, path, "word/document.xml")
	for _, want := range []string{"Overview", "line one", "line two", "Field Mapping", "Name", "Alice", "Bob"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document.xml missing %q", want)
		}
	}
	// Two-column rows: Bob's row still has both cells.
	if got := strings.Count(doc, "<w:tr>"); got != 3 {
		t.Fatalf("expected 3 table rows, got %d", got)
	}
	if got := strings.Count(doc, "<w:tc>"); got != 6 {
		t.Fatalf("expected 6 cells, got %d", got)
	}
	// Required package parts exist.
	readZipEntry(t, path, "[Content_Types].xml")
	readZipEntry(t, path, "_rels/.rels")
}

func TestBuildEscapesMarkup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.docx")
	sections := []models.Section{{Title: "A & B", Text: "value < 10"}}
	if err := NewBuilder(logger.NewNop()).Build(sections, path); err != nil {
		t.Fatalf("build: %v", err)
	}
	doc := readZipEntry(t, path, "word/document.xml")
	if !strings.Contains(doc, "A &amp; B") || !strings.Contains(doc, "value &lt; 10") {
		t.Fatalf("markup not escaped: %s", doc)
	}
}

func TestBuildErrorsAreAssemblyErrors(t *testing.T) {
	// Parent path component is a regular file, so MkdirAll fails.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	err := NewBuilder(logger.NewNop()).Build(nil, filepath.Join(blocker, "sub", "x.docx"))
	if err == nil {
		t.Fatalf("expected error")
	}
	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("expected *AssemblyError, got %T", err)
	}
}
