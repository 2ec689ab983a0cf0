package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SocketPrefix namespaces the device-side abstract socket of a session.
const SocketPrefix = "mirror_"

// UnknownVersion is reported until the server artifact answers its self-check.
const UnknownVersion = "unknown"

// Session is the unit of work for one probe run. It is passed explicitly to
// every component; nothing about a run lives in package state.
type Session struct {
	RunID         string // UUID of this probe run
	DeviceID      string // empty until a ready device is located
	SessionID     string // scid, caller-supplied
	VideoPort     int    // local TCP port bound by the forward
	ServerVersion string // observed server version, UnknownVersion until verified
}

// NewSession creates a session for the given scid and local port.
func NewSession(sessionID string, videoPort int) *Session {
	return &Session{
		RunID:         uuid.NewString(),
		SessionID:     strings.TrimSpace(sessionID),
		VideoPort:     videoPort,
		ServerVersion: UnknownVersion,
	}
}

// SocketName is the abstract socket the forward maps VideoPort to.
func (s *Session) SocketName() string {
	return SocketPrefix + s.SessionID
}

// HasDevice reports whether a device was resolved for the run.
func (s *Session) HasDevice() bool {
	return s != nil && s.DeviceID != ""
}
