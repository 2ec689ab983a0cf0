package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/mprobe/internal/domain"
)

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_StagesUpdateInPlace(t *testing.T) {
	m := New("0A121FDD4003BZ", nil)
	require.NotNil(t, m.Init())

	running := domain.NewStageEvent("run", domain.StageForward, domain.StatusRunning)
	running.Command = "adb -s X forward tcp:27183 localabstract:mirror_1"
	m, _ = send(t, m, StageMsg{Event: running})
	assert.Contains(t, m.View(), "localabstract:mirror_1")

	ok := domain.NewStageEvent("run", domain.StageForward, domain.StatusOK)
	ok.Detail = "tcp:27183 -> mirror_1"
	m, _ = send(t, m, StageMsg{Event: ok})

	require.Len(t, m.stages, 1)
	assert.Equal(t, domain.StatusOK, m.stages[0].status)
	view := m.View()
	assert.Contains(t, view, "tcp:27183 -> mirror_1")
	assert.Contains(t, view, "q to abort")
}

func TestModel_DoneQuitsWithVerdict(t *testing.T) {
	m := New("X", nil)
	sess := domain.NewSession("1", 27183)
	report := domain.NewReport(sess, time.Now())
	report.Verdict = domain.VerdictPartial
	report.Code = domain.KindRemoteClosed

	m, cmd := send(t, m, DoneMsg{Report: report})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Same(t, report, m.Report())
	assert.Contains(t, m.View(), "Verdict: PARTIAL")
	assert.Contains(t, m.View(), "REMOTE_CLOSED")
	assert.False(t, m.Aborted())
}

func TestModel_QuitCancelsRun(t *testing.T) {
	cancelled := false
	m := New("X", func() { cancelled = true })

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.True(t, m.Aborted())
	assert.Contains(t, m.View(), "aborting")
}

func TestModel_QuitAfterDoneDoesNotCancel(t *testing.T) {
	cancelled := false
	m := New("X", func() { cancelled = true })
	m, _ = send(t, m, DoneMsg{Err: domain.ErrDeviceNotFound})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.False(t, cancelled)
	assert.Contains(t, m.View(), "DEVICE_NOT_FOUND")
}
