package tmux

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ClearPane clears the pane content and scrollback history
func (m *Manager) ClearPane() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pane == "" {
		return ErrNoPaneAvailable
	}

	if _, err := m.tmux.Command("send-keys", "-t", m.pane, "-R"); err != nil {
		return fmt.Errorf("failed to reset terminal: %w", err)
	}
	if _, err := m.tmux.Command("clear-history", "-t", m.pane); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if _, err := m.tmux.Command("send-keys", "-t", m.pane, "clear", "Enter"); err != nil {
		return fmt.Errorf("failed to clear screen: %w", err)
	}
	return nil
}

// ClearPaneWithBanner clears the pane and writes a run header
func (m *Manager) ClearPaneWithBanner(runID, target string, now time.Time) error {
	if err := m.ClearPane(); err != nil {
		return err
	}

	banner := fmt.Sprintf(
		"═══════════════════════════════════════════════════════════\n"+
			"  mprobe - %s\n"+
			"  Run: %s | Started: %s\n"+
			"═══════════════════════════════════════════════════════════",
		target,
		runID,
		now.Format("2006-01-02 15:04:05"),
	)
	return m.WriteLines(strings.Split(banner, "\n"))
}

// WriteLine prints one line in the pane
func (m *Manager) WriteLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pane == "" {
		return ErrNoPaneAvailable
	}

	_, err := m.tmux.Command("send-keys", "-t", m.pane, fmt.Sprintf("printf '%%s\\n' '%s'", quoteSingle(line)), "Enter")
	return err
}

// WriteLines writes multiple lines in order
func (m *Manager) WriteLines(lines []string) error {
	for _, line := range lines {
		if err := m.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// quoteSingle escapes s for use inside a single-quoted shell word.
func quoteSingle(s string) string {
	return strings.ReplaceAll(s, "'", `'"'"'`)
}

// Writer is an io.Writer that forwards complete lines to the pane
type Writer struct {
	manager *Manager
	buffer  strings.Builder
}

// NewWriter creates a new writer that streams to the tmux pane
func NewWriter(manager *Manager) *Writer {
	return &Writer{manager: manager}
}

// Write buffers p and sends every complete line
func (w *Writer) Write(p []byte) (n int, err error) {
	w.buffer.Write(p)

	content := w.buffer.String()
	lines := strings.Split(content, "\n")

	// keep the incomplete tail
	w.buffer.Reset()
	if !strings.HasSuffix(content, "\n") {
		w.buffer.WriteString(lines[len(lines)-1])
	}
	lines = lines[:len(lines)-1]

	for _, line := range lines {
		if line == "" {
			continue
		}
		if err := w.manager.WriteLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any remaining buffered content
func (w *Writer) Flush() error {
	if w.buffer.Len() == 0 {
		return nil
	}
	err := w.manager.WriteLine(w.buffer.String())
	w.buffer.Reset()
	return err
}

var _ io.Writer = (*Writer)(nil)
