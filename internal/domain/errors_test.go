package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := NewError(KindForwardFailed, "forward tcp:27183", errors.New("device offline"))
	wrapped := fmt.Errorf("probe: %w", err)

	assert.ErrorIs(t, wrapped, ErrForwardFailed)
	assert.NotErrorIs(t, wrapped, ErrConnectFailed)
	assert.Equal(t, KindForwardFailed, KindOf(wrapped))
	assert.Equal(t, "FORWARD_FAILED: forward tcp:27183: device offline", err.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindLaunchFailed, "", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "LAUNCH_FAILED: boom", err.Error())
}

func TestReaderTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateDisconnected, StateConnecting))
	assert.True(t, CanTransition(StateConnecting, StateDecoded))
	assert.True(t, CanTransition(StateReading, StateRemoteClosed))
	assert.False(t, CanTransition(StateDisconnected, StateReading))
	assert.False(t, CanTransition(StateDecoded, StateConnecting))
}

func TestSessionSocketName(t *testing.T) {
	s := NewSession(" 12345678 ", 27183)
	assert.Equal(t, "mirror_12345678", s.SocketName())
	assert.Equal(t, UnknownVersion, s.ServerVersion)
	assert.NotEmpty(t, s.RunID)
	assert.False(t, s.HasDevice())
}
