package domain

import "time"

// SchemaVersion is the version of every NDJSON event the probe emits.
const SchemaVersion = 1

// Stage names, in run order.
const (
	StageLocate    = "locate"
	StageVerify    = "verify"
	StageCleanup   = "kill_stale"
	StageForward   = "forward"
	StageLaunch    = "launch"
	StageHandshake = "handshake"
	StageTeardown  = "teardown"
	StageTerminate = "terminate"
)

// Status is the outcome of one stage.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StageEvent is emitted when a stage starts or finishes
type StageEvent struct {
	Type          string `json:"type"`          // "stage"
	SchemaVersion int    `json:"schemaVersion"` // 1
	RunID         string `json:"run_id"`
	Stage         string `json:"stage"`
	Status        Status `json:"status"`
	Command       string `json:"command,omitempty"` // device tool invocation, if any
	Detail        string `json:"detail,omitempty"`
	Code          Kind   `json:"code,omitempty"` // failure kind
	Bytes         int    `json:"bytes,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// NewStageEvent creates a StageEvent stamped with the current time
func NewStageEvent(runID, stage string, status Status) *StageEvent {
	return &StageEvent{
		Type:          "stage",
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Stage:         stage,
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// WithErr annotates the event with a failure.
func (e *StageEvent) WithErr(err error) *StageEvent {
	if err == nil {
		return e
	}
	e.Code = KindOf(err)
	if e.Detail == "" {
		e.Detail = err.Error()
	}
	return e
}

// VersionReport is the ArtifactVerifier's result.
type VersionReport struct {
	Observed       string `json:"observed"`
	Expected       string `json:"expected"`
	Matches        bool   `json:"matches"` // informational only, never gates the run
	Repushed       bool   `json:"repushed"`
	LocalArtifact  string `json:"local_artifact,omitempty"`
	LocalSize      int64  `json:"local_size,omitempty"`
	LocalBLAKE3    string `json:"local_blake3,omitempty"`
	Err            error  `json:"-"`
	ErrDescription string `json:"error,omitempty"`
}

// ServerOutput is what the server process wrote before it was terminated.
type ServerOutput struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Signaled bool   `json:"signaled"` // termination was requested by the probe

	AliveAfterHandshake bool `json:"alive_after_handshake"`
}

// HandshakeResult is the HandshakeReader's result.
type HandshakeResult struct {
	States   []ReaderState  `json:"states"`
	Exit     ExitReason     `json:"exit,omitempty"`
	Capture  []byte         `json:"-"`
	HexDump  string         `json:"hex,omitempty"`
	Frame    HandshakeFrame `json:"frame"`
	Reads    int            `json:"reads"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
	Err      error          `json:"-"`
	ErrorMsg string         `json:"error,omitempty"`
}

// Final returns the last state before DECODED.
func (r *HandshakeResult) Final() ReaderState {
	for i := len(r.States) - 1; i >= 0; i-- {
		if r.States[i] != StateDecoded {
			return r.States[i]
		}
	}
	return StateDisconnected
}

// Verdict summarises a run.
type Verdict string

const (
	VerdictOK      Verdict = "ok"      // full frame with a decoded device name
	VerdictPartial Verdict = "partial" // some handshake bytes arrived
	VerdictFailed  Verdict = "failed"
)

// Report is the final record of one probe run
type Report struct {
	Type          string           `json:"type"` // "report"
	SchemaVersion int              `json:"schemaVersion"`
	RunID         string           `json:"run_id"`
	Device        string           `json:"device,omitempty"`
	SessionID     string           `json:"scid"`
	SocketName    string           `json:"socket"`
	VideoPort     int              `json:"port"`
	Version       *VersionReport   `json:"version,omitempty"`
	Handshake     *HandshakeResult `json:"handshake,omitempty"`
	Server        *ServerOutput    `json:"server,omitempty"`
	Verdict       Verdict          `json:"verdict"`
	Code          Kind             `json:"code,omitempty"`
	Error         string           `json:"error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// NewReport starts a report for the session
func NewReport(s *Session, started time.Time) *Report {
	return &Report{
		Type:          "report",
		SchemaVersion: SchemaVersion,
		RunID:         s.RunID,
		SessionID:     s.SessionID,
		SocketName:    s.SocketName(),
		VideoPort:     s.VideoPort,
		Verdict:       VerdictFailed,
		StartedAt:     started,
	}
}
