// Package tmux mirrors probe output into a dedicated tmux session.
package tmux

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// DefaultSessionName is the tmux session used when none is configured.
const DefaultSessionName = "mprobe"

var (
	ErrNoPaneAvailable = errors.New("tmux pane not available")
	ErrTmuxNotFound    = errors.New("tmux not found in PATH")
)

// Config configures the tmux manager
type Config struct {
	SessionName string
}

type client interface {
	Command(args ...string) (string, error)
	HasSession(name string) bool
	NewSession(op *gotmux.SessionOptions) (*gotmux.Session, error)
}

// Manager owns the tmux session the probe writes to.
type Manager struct {
	mu     sync.Mutex
	tmux   client
	config Config
	pane   string // target of the output pane, empty until Setup
}

// NewManager connects to the local tmux server.
func NewManager(cfg Config) (*Manager, error) {
	t, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTmuxNotFound, err)
	}
	return newManager(t, cfg), nil
}

func newManager(c client, cfg Config) *Manager {
	if cfg.SessionName == "" {
		cfg.SessionName = DefaultSessionName
	}
	return &Manager{tmux: c, config: cfg}
}

// Setup creates the session if it does not exist and selects its first pane.
func (m *Manager) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tmux.HasSession(m.config.SessionName) {
		if _, err := m.tmux.NewSession(&gotmux.SessionOptions{Name: m.config.SessionName}); err != nil {
			return fmt.Errorf("failed to create tmux session %s: %w", m.config.SessionName, err)
		}
	}
	m.pane = fmt.Sprintf("%s:0.0", m.config.SessionName)
	return nil
}

// SessionName returns the tmux session name
func (m *Manager) SessionName() string {
	return m.config.SessionName
}

// AttachCommand is the command a user runs to watch the pane.
func (m *Manager) AttachCommand() string {
	return "tmux attach -t " + m.config.SessionName
}
