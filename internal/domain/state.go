package domain

// ReaderState is a state of the handshake reader.
type ReaderState string

const (
	StateDisconnected ReaderState = "DISCONNECTED"
	StateConnecting   ReaderState = "CONNECTING"
	StateConnected    ReaderState = "CONNECTED"
	StateReading      ReaderState = "READING"
	StateTimedOut     ReaderState = "TIMED_OUT"
	StateRemoteClosed ReaderState = "REMOTE_CLOSED"
	StateDecoded      ReaderState = "DECODED"
)

// ExitReason says why the read loop stopped.
type ExitReason string

const (
	ExitNone         ExitReason = ""              // never reached READING
	ExitBudget       ExitReason = "budget"        // overall wall-clock budget elapsed
	ExitRemoteClosed ExitReason = "remote_closed" // zero-length read
	ExitIdle         ExitReason = "idle"          // per-call timeout with no new data
	ExitReadError    ExitReason = "read_error"
	ExitCancelled    ExitReason = "cancelled" // caller cancelled the run
)

var transitions = map[ReaderState][]ReaderState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDecoded},
	StateConnected:    {StateReading},
	StateReading:      {StateTimedOut, StateRemoteClosed},
	StateTimedOut:     {StateDecoded},
	StateRemoteClosed: {StateDecoded},
}

// CanTransition reports whether from -> to is an edge of the reader machine.
func CanTransition(from, to ReaderState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
