package models

import (
	"time"
)

// Job lifecycle states. Queued is initial; completed and failed are terminal.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Job represents one tracked unit of background agent work.
type Job struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Logs          []string  `json:"logs"`
	Result        *Result   `json:"result,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Result is the opaque payload a finished agent produces: either inline text
// or a URL pointing at a generated artifact. Exactly one side is set.
type Result struct {
	Text    string `json:"text,omitempty"`
	FileURL string `json:"file_url,omitempty"`
}

// FileRef describes one stored upload handed to an agent.
type FileRef struct {
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// Section is one titled unit of generated document content. Text and Table
// are mutually exclusive, decided by the producing pipeline step's kind.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
	Table *Table `json:"table,omitempty"`
}

// Table is tabular section content. Headers preserves column order; rows may
// omit keys, which render as empty cells.
type Table struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}
