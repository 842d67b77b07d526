package assemble

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docgen-backend/internal/models"
)

// AssemblyError wraps any failure while constructing the output document.
// It is distinct from generation failures: by the time assembly runs, all
// section content has already been produced.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string { return fmt.Sprintf("document assembly failed: %v", e.Err) }
func (e *AssemblyError) Unwrap() error { return e.Err }

// Builder writes ordered sections into a DOCX file. Only the OOXML parts
// needed for headings, paragraphs, and plain tables are emitted.
type Builder struct {
	log *zap.SugaredLogger
}

func NewBuilder(log *zap.SugaredLogger) *Builder {
	return &Builder{log: log.With("component", "assemble")}
}

// Build produces a document at outputPath from the ordered sections. Each
// section renders as a level-2 heading followed by its content; table content
// uses the section's header order for columns and fills missing cells with
// empty strings.
func (b *Builder) Build(sections []models.Section, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return &AssemblyError{Err: err}
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return &AssemblyError{Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(sections)},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return &AssemblyError{Err: err}
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return &AssemblyError{Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return &AssemblyError{Err: err}
	}
	b.log.Debugw("document written", "path", outputPath, "sections", len(sections))
	return nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func documentXML(sections []models.Section) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, s := range sections {
		writeHeading(&b, s.Title)
		if s.Table != nil {
			writeTable(&b, s.Table)
			continue
		}
		for _, para := range strings.Split(s.Text, "\n") {
			writeParagraph(&b, para)
		}
	}
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeHeading(b *strings.Builder, title string) {
	b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t xml:space="preserve">`)
	b.WriteString(escapeXML(title))
	b.WriteString(`</w:t></w:r></w:p>`)
}

func writeParagraph(b *strings.Builder, text string) {
	b.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
	b.WriteString(escapeXML(text))
	b.WriteString(`</w:t></w:r></w:p>`)
}

func writeTable(b *strings.Builder, table *models.Table) {
	b.WriteString(`<w:tbl><w:tblPr><w:tblBorders>` +
		`<w:top w:val="single" w:sz="4"/><w:bottom w:val="single" w:sz="4"/>` +
		`<w:left w:val="single" w:sz="4"/><w:right w:val="single" w:sz="4"/>` +
		`<w:insideH w:val="single" w:sz="4"/><w:insideV w:val="single" w:sz="4"/>` +
		`</w:tblBorders></w:tblPr>`)
	writeRow(b, table.Headers)
	for _, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for i, h := range table.Headers {
			cells[i] = row[h]
		}
		writeRow(b, cells)
	}
	b.WriteString(`</w:tbl>`)
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString(`<w:tr>`)
	for _, cell := range cells {
		b.WriteString(`<w:tc><w:p><w:r><w:t xml:space="preserve">`)
		b.WriteString(escapeXML(cell))
		b.WriteString(`</w:t></w:r></w:p></w:tc>`)
	}
	b.WriteString(`</w:tr>`)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
