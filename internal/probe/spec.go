package probe

import (
	"fmt"
	"strings"
)

// ServerSpec is everything that goes on the server's command line.
type ServerSpec struct {
	ClasspathArtifact string // artifact path on the device
	ServerClass       string // runtime entry point
	ProtocolVersion   string
	SessionID         string
	LogLevel          string
	MaxSize           int
	TunnelForward     bool
	Audio             bool
	Control           bool
}

func (s ServerSpec) prefix() string {
	return fmt.Sprintf("CLASSPATH=%s app_process / %s", s.ClasspathArtifact, s.ServerClass)
}

// Command is the single shell invocation that starts the server. The
// protocol version is positional; every other option is key=value.
func (s ServerSpec) Command() string {
	args := []string{
		s.prefix(),
		s.ProtocolVersion,
		"scid=" + s.SessionID,
		"log_level=" + s.LogLevel,
		fmt.Sprintf("max_size=%d", s.MaxSize),
		fmt.Sprintf("tunnel_forward=%t", s.TunnelForward),
		fmt.Sprintf("audio=%t", s.Audio),
		fmt.Sprintf("control=%t", s.Control),
	}
	return strings.Join(args, " ")
}

// VersionCommand asks the artifact to report its version.
func (s ServerSpec) VersionCommand() string {
	return s.prefix() + " -v"
}

// KillCommand stops leftover servers that may still own the socket name.
func (s ServerSpec) KillCommand() string {
	return "pkill -f " + s.ServerClass
}
