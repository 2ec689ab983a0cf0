package adb

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a background adb invocation whose output is retained until it
// is terminated and drained.
type Process struct {
	cmd    *exec.Cmd
	args   []string
	stdout lockedBuffer
	stderr lockedBuffer
	done   chan struct{}
	err    error

	once sync.Once
	out  Output
}

// Output is everything a Process wrote, collected by Terminate.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Signaled bool // the probe requested termination while it was running
	Err      error
}

// Start spawns adb with args without waiting for it. drain bounds how long
// Terminate waits for the output pipes to close once the process is gone.
func (c *Client) Start(drain time.Duration, args ...string) (*Process, error) {
	p := &Process{args: args, done: make(chan struct{})}
	p.cmd = exec.Command(c.path, args...)
	p.cmd.Stdout = &p.stdout
	p.cmd.Stderr = &p.stderr
	p.cmd.WaitDelay = drain

	if err := p.cmd.Start(); err != nil {
		return nil, &CommandError{Args: args, ExitCode: -1, Err: err}
	}
	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// StartShell spawns `adb -s serial shell command` in the background.
func (c *Client) StartShell(serial, command string, drain time.Duration) (*Process, error) {
	return c.Start(drain, ShellArgs(serial, command)...)
}

// Args returns the adb arguments the process was started with.
func (p *Process) Args() []string { return p.args }

// PID returns the OS process id of the adb client.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Alive reports, without blocking, whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and its output is collected.
func (p *Process) Done() <-chan struct{} { return p.done }

// Terminate asks the process to exit if it is still running, waits up to
// grace for it, kills it after that, and returns its complete output.
// Output is drained even when the process had already exited. Safe to call
// more than once.
func (p *Process) Terminate(grace time.Duration) Output {
	p.once.Do(func() {
		signaled := false
		if p.Alive() {
			signaled = true
			if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				_ = p.cmd.Process.Kill()
			}
			select {
			case <-p.done:
			case <-time.After(grace):
				_ = p.cmd.Process.Kill()
				<-p.done
			}
		}
		p.out = Output{
			Stdout:   p.stdout.String(),
			Stderr:   p.stderr.String(),
			ExitCode: p.cmd.ProcessState.ExitCode(),
			Signaled: signaled,
			Err:      p.exitErr(),
		}
	})
	return p.out
}

func (p *Process) exitErr() error {
	if p.err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(p.err, &exitErr) {
		return nil
	}
	return fmt.Errorf("wait adb %v: %w", p.args, p.err)
}

// lockedBuffer lets exec's copier goroutine and Terminate share a buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
