package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/vburojevic/mprobe/internal/domain"
)

// SchemaVersion is stamped on every NDJSON line.
const SchemaVersion = domain.SchemaVersion

// ErrorOutput is the NDJSON shape of a command failure
type ErrorOutput struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// InfoOutput is a free-form notice
type InfoOutput struct {
	Type          string `json:"type"` // "info"
	SchemaVersion int    `json:"schemaVersion"`
	Message       string `json:"message"`
	RunID         string `json:"run_id,omitempty"`
}

// NDJSONWriter writes one JSON object per line
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Write encodes any value as a single line
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// WriteStage writes a stage transition
func (w *NDJSONWriter) WriteStage(ev *domain.StageEvent) error {
	return w.Write(ev)
}

// WriteReport writes the final run report
func (w *NDJSONWriter) WriteReport(r *domain.Report) error {
	return w.Write(r)
}

// WriteError writes a structured error with an optional hint
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	out := ErrorOutput{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
	}
	if len(hint) > 0 {
		out.Hint = hint[0]
	}
	return w.Write(out)
}

// WriteInfo writes a notice
func (w *NDJSONWriter) WriteInfo(runID, message string) error {
	return w.Write(InfoOutput{Type: "info", SchemaVersion: SchemaVersion, Message: message, RunID: runID})
}
