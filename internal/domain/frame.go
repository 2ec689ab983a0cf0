package domain

import (
	"bytes"
	"encoding/hex"
	"unicode/utf8"
)

// Handshake frame layout: one dummy byte followed by a NUL-padded device name.
const (
	DummyLen       = 1
	DeviceNameLen  = 64
	HandshakeLen   = DummyLen + DeviceNameLen
	deviceNameFrom = DummyLen
)

// NameState describes how much of the device name field was captured.
type NameState string

const (
	NameAbsent      NameState = "absent"
	NamePartial     NameState = "partial"
	NameComplete    NameState = "complete"
	NameUndecodable NameState = "undecodable"
)

// HandshakeFrame is the decoded first message of the video socket.
// Truncated captures decode to partial frames rather than errors.
type HandshakeFrame struct {
	Length    int       `json:"length"`
	HasDummy  bool      `json:"has_dummy"`
	Dummy     byte      `json:"dummy"`
	Name      string    `json:"device_name,omitempty"`
	NameState NameState `json:"name_state"`
	NameRaw   []byte    `json:"-"`
}

// DecodeHandshake interprets capture as a handshake frame. Bytes past the
// 65-byte frame belong to stream framing and are ignored.
func DecodeHandshake(capture []byte) HandshakeFrame {
	f := HandshakeFrame{Length: len(capture), NameState: NameAbsent}
	if len(capture) == 0 {
		return f
	}
	f.HasDummy = true
	f.Dummy = capture[0]

	end := min(len(capture), HandshakeLen)
	raw := capture[deviceNameFrom:end]
	if len(raw) == 0 {
		return f
	}
	f.NameRaw = append([]byte(nil), raw...)

	trimmed := bytes.TrimRight(raw, "\x00")
	if len(raw) < DeviceNameLen && len(trimmed) == len(raw) {
		// capture may end inside a multi-byte character
		trimmed = dropIncompleteRune(trimmed)
	}
	if !utf8.Valid(trimmed) {
		f.NameState = NameUndecodable
		return f
	}
	f.Name = string(trimmed)
	if len(raw) == DeviceNameLen {
		f.NameState = NameComplete
	} else {
		f.NameState = NamePartial
	}
	return f
}

// dropIncompleteRune removes a trailing multi-byte sequence that was cut short.
func dropIncompleteRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			return b
		}
	}
	return b
}

// Complete reports whether the full frame arrived and the name decoded.
func (f HandshakeFrame) Complete() bool {
	return f.NameState == NameComplete
}

// DecodeErr returns a DECODE_FAILED error when the name field is not text.
func (f HandshakeFrame) DecodeErr() error {
	if f.NameState != NameUndecodable {
		return nil
	}
	return Errorf(KindDecodeFailed, "device name", "name field is not valid UTF-8 (%s)", hex.EncodeToString(f.NameRaw))
}
