package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/vburojevic/mprobe/internal/domain"
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	stylePartial = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
)

// TextWriter renders probe events for humans
type TextWriter struct {
	w     io.Writer
	color bool
}

// NewTextWriter creates a text writer; color enables ANSI styling
func NewTextWriter(w io.Writer, color bool) *TextWriter {
	return &TextWriter{w: w, color: color}
}

func (t *TextWriter) paint(style lipgloss.Style, s string) string {
	if !t.color {
		return s
	}
	return style.Render(s)
}

// StatusMarker is the short label printed in front of a stage line.
func (t *TextWriter) StatusMarker(s domain.Status) string {
	switch s {
	case domain.StatusOK:
		return t.paint(styleOK, "[ok]     ")
	case domain.StatusPartial:
		return t.paint(stylePartial, "[partial]")
	case domain.StatusFailed:
		return t.paint(styleFailed, "[failed] ")
	case domain.StatusSkipped:
		return t.paint(styleDim, "[skipped]")
	}
	return t.paint(styleDim, "[..]     ")
}

// WriteStage prints one line per finished stage; running events are skipped
func (t *TextWriter) WriteStage(ev *domain.StageEvent) error {
	if ev.Status == domain.StatusRunning {
		return nil
	}
	line := fmt.Sprintf("%s %-10s", t.StatusMarker(ev.Status), ev.Stage)
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	if ev.Command != "" {
		line += " " + t.paint(styleDim, "("+ev.Command+")")
	}
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// WriteTable renders rows under header
func (t *TextWriter) WriteTable(header []string, rows [][]string) error {
	table := tablewriter.NewWriter(t.w)
	table.Header(lo.ToAnySlice(header)...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteReport prints the run summary
func (t *TextWriter) WriteReport(r *domain.Report) error {
	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	fmt.Fprintf(&b, "Device:  %s\n", lo.Ternary(r.Device == "", "(none)", r.Device))
	fmt.Fprintf(&b, "Session: scid=%s socket=%s port=%d\n", r.SessionID, r.SocketName, r.VideoPort)

	if v := r.Version; v != nil {
		fmt.Fprintf(&b, "Server version: %s (expected %s)", v.Observed, v.Expected)
		if v.Repushed {
			b.WriteString(" after re-push")
		}
		b.WriteString("\n")
		if v.ErrDescription != "" {
			fmt.Fprintf(&b, "  verification: %s\n", v.ErrDescription)
		}
		if v.LocalBLAKE3 != "" {
			fmt.Fprintf(&b, "  local artifact: %s (%d bytes, blake3 %s)\n", v.LocalArtifact, v.LocalSize, v.LocalBLAKE3)
		}
	}

	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return err
	}

	if h := r.Handshake; h != nil {
		states := lo.Map(h.States, func(s domain.ReaderState, _ int) string { return string(s) })
		fmt.Fprintf(t.w, "Handshake: %s\n", strings.Join(states, " -> "))
		fmt.Fprintf(t.w, "  %d bytes in %d reads, %s", h.Frame.Length, h.Reads, h.Elapsed.Round(time.Millisecond))
		if h.Exit != domain.ExitNone {
			fmt.Fprintf(t.w, ", exit=%s", h.Exit)
		}
		fmt.Fprintln(t.w)
		if h.ErrorMsg != "" {
			fmt.Fprintf(t.w, "  %s\n", h.ErrorMsg)
		}
		if err := t.WriteTable([]string{"Field", "Value"}, frameRows(h.Frame)); err != nil {
			return err
		}
		if h.HexDump != "" {
			fmt.Fprintf(t.w, "Hex: %s\n", h.HexDump)
		}
	}

	if s := r.Server; s != nil {
		if out := strings.TrimSpace(s.Stdout); out != "" {
			fmt.Fprintf(t.w, "Server stdout:\n%s\n", indent(out))
		}
		if out := strings.TrimSpace(s.Stderr); out != "" {
			fmt.Fprintf(t.w, "Server stderr:\n%s\n", indent(out))
		}
	}

	verdict := strings.ToUpper(string(r.Verdict))
	switch r.Verdict {
	case domain.VerdictOK:
		verdict = t.paint(styleOK, verdict)
	case domain.VerdictPartial:
		verdict = t.paint(stylePartial, verdict)
	default:
		verdict = t.paint(styleFailed, verdict)
	}
	line := "Verdict: " + verdict
	if r.Code != "" {
		line += fmt.Sprintf(" [%s]", r.Code)
	}
	if r.Error != "" {
		line += " " + r.Error
	}
	_, err := fmt.Fprintln(t.w, line)
	return err
}

func frameRows(f domain.HandshakeFrame) [][]string {
	dummy := "absent"
	if f.HasDummy {
		dummy = fmt.Sprintf("0x%02x", f.Dummy)
	}
	name := f.Name
	if f.NameState == domain.NameUndecodable {
		name = "(undecodable)"
	}
	return [][]string{
		{"bytes", fmt.Sprint(f.Length)},
		{"dummy", dummy},
		{"device name", name},
		{"name field", string(f.NameState)},
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	return "  " + strings.Join(lines, "\n  ")
}
