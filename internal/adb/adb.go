// Package adb wraps the Android Debug Bridge executable. Every call shells out
// to adb; nothing here speaks the adb server protocol directly.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultPath is used when no adb path is configured; it is resolved on PATH.
const DefaultPath = "adb"

// DefaultTimeout bounds short adb commands (devices, forward, push, shell).
const DefaultTimeout = 10 * time.Second

// Client runs adb commands
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient creates a client for the adb executable at path
func NewClient(path string, timeout time.Duration) *Client {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{path: path, timeout: timeout}
}

// Path returns the adb executable the client invokes
func (c *Client) Path() string { return c.path }

// CommandError is returned when adb exits non-zero or cannot be started.
type CommandError struct {
	Args     []string
	ExitCode int // -1 when the process never ran to completion
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("adb %s", strings.Join(e.Args, " "))
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited %d", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes adb with args and returns its trimmed stdout.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &CommandError{Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			cerr.Err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return strings.TrimSpace(stdout.String()), cerr
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Describe renders an adb invocation for diagnostics.
func Describe(args ...string) string {
	return strings.Join(append([]string{"adb"}, args...), " ")
}

// DevicesArgs lists attached devices with their properties.
func DevicesArgs() []string { return []string{"devices", "-l"} }

// ForwardArgs maps a local TCP port to a device-side abstract socket.
func ForwardArgs(serial string, localPort int, socketName string) []string {
	return []string{"-s", serial, "forward", "tcp:" + strconv.Itoa(localPort), "localabstract:" + socketName}
}

// RemoveForwardArgs removes the forward bound to localPort.
func RemoveForwardArgs(serial string, localPort int) []string {
	return []string{"-s", serial, "forward", "--remove", "tcp:" + strconv.Itoa(localPort)}
}

// PushArgs copies a local file to the device.
func PushArgs(serial, local, remote string) []string {
	return []string{"-s", serial, "push", local, remote}
}

// ShellArgs runs command in the device shell.
func ShellArgs(serial, command string) []string {
	return []string{"-s", serial, "shell", command}
}

// Forward creates a tcp -> localabstract forward on the device.
func (c *Client) Forward(ctx context.Context, serial string, localPort int, socketName string) error {
	_, err := c.Run(ctx, ForwardArgs(serial, localPort, socketName)...)
	return err
}

// RemoveForward removes the forward bound to localPort.
func (c *Client) RemoveForward(ctx context.Context, serial string, localPort int) error {
	_, err := c.Run(ctx, RemoveForwardArgs(serial, localPort)...)
	return err
}

// Push copies local to remote on the device.
func (c *Client) Push(ctx context.Context, serial, local, remote string) error {
	_, err := c.Run(ctx, PushArgs(serial, local, remote)...)
	return err
}

// Shell runs command on the device and returns its output.
func (c *Client) Shell(ctx context.Context, serial, command string) (string, error) {
	return c.Run(ctx, ShellArgs(serial, command)...)
}

// Version returns the first line of `adb version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "version")
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(first), nil
}
