package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/config"
	"github.com/vburojevic/mprobe/internal/domain"
	"github.com/vburojevic/mprobe/internal/history"
	"github.com/vburojevic/mprobe/internal/output"
	"github.com/vburojevic/mprobe/internal/probe"
	"github.com/vburojevic/mprobe/internal/tmux"
	"github.com/vburojevic/mprobe/internal/tui"
)

// ProbeCmd runs one diagnostic session
type ProbeCmd struct {
	Serial        string        `short:"s" help:"Device serial (default: first ready device)"`
	SessionID     string        `name:"scid" default:"${config_scid}" help:"Session id; the device socket is mirror_<scid>"`
	Port          int           `short:"p" default:"${config_port}" help:"Local TCP port forwarded to the device"`
	ServerVersion string        `default:"${config_server_version}" help:"Protocol version passed to the server"`
	Artifact      string        `default:"${config_artifact}" help:"Local server artifact pushed when the version check fails"`
	RemotePath    string        `default:"${config_remote_path}" help:"Server artifact path on the device"`
	Class         string        `default:"${config_class}" help:"Server entry class"`
	MaxSize       int           `default:"${config_max_size}" help:"Maximum video dimension requested from the server"`
	LogLevel      string        `default:"${config_log_level}" enum:"verbose,debug,info,warn,error" help:"Server log level"`
	ConnectDelay  time.Duration `default:"${config_connect_delay}" help:"Wait after launch before connecting"`
	ReadBudget    time.Duration `default:"${config_read_budget}" help:"Overall bound on the handshake read"`
	ReadTimeout   time.Duration `default:"${config_read_timeout}" help:"Idle bound on one read once data has arrived"`
	NoKillStale   bool          `help:"Do not pkill leftover servers before launching"`
	UI            bool          `name:"ui" help:"Show a live progress view"`
	Tmux          bool          `help:"Mirror text output into a tmux session"`
	NoHistory     bool          `help:"Do not record this run in the history database"`
}

// Run executes the probe command
func (c *ProbeCmd) Run(globals *Globals) error {
	if err := validateFlags(globals, c.UI, c.Tmux, isTerminal(globals.Stdout)); err != nil {
		return err
	}
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	timings, err := cfg.Timing.Parse()
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error(), "fix the timing section of the config file")
	}
	if c.ReadBudget <= 0 {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--read-budget must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logPath := globals.LogFile
	if logPath == "" {
		logPath = config.DefaultLogFile()
	}
	var console io.Writer
	if globals.Verbose && !c.UI {
		console = globals.Stderr
	}
	sessLog, err := output.NewSessionLogger(logPath, globals.Verbose, console)
	if err != nil {
		fmt.Fprintf(globals.Stderr, "Warning: diagnostic log disabled: %v\n", err)
		sessLog = output.NopSessionLogger()
	}
	defer sessLog.Close()

	sess := domain.NewSession(c.SessionID, c.Port)
	globals.Debug("run %s: socket %s on port %d", sess.RunID, sess.SocketName(), sess.VideoPort)
	sessLog.Info("probe start",
		zap.String("run_id", sess.RunID),
		zap.String("scid", sess.SessionID),
		zap.Int("port", sess.VideoPort),
		zap.String("adb", globals.AdbPath),
		zap.String("log_file", sessLog.Path()))
	if globals.Format == "ndjson" && !globals.Quiet && sessLog.Path() != "" {
		output.NewNDJSONWriter(globals.Stdout).WriteInfo(sess.RunID, "diagnostic log: "+sessLog.Path())
	}

	client := adb.NewClient(globals.AdbPath, timings.CommandTimeout)
	rc := probe.ReaderConfig{
		ConnectDelay: c.ConnectDelay,
		ReadBudget:   c.ReadBudget,
		ReadTimeout:  c.ReadTimeout,
	}
	opts := probe.Options{
		Serial:         c.Serial,
		Spec:           c.spec(sess),
		LocalArtifact:  c.Artifact,
		KillStale:      cfg.Server.KillStale && !c.NoKillStale,
		CleanupTimeout: timings.CommandTimeout,
	}

	var (
		report *domain.Report
		runErr error
	)
	switch {
	case c.UI:
		report, runErr = c.runWithUI(ctx, globals, client, sessLog.Logger, rc, timings.DrainTimeout, sess, opts)
	case c.Tmux:
		mgr, err := c.setupTmux(globals, sess)
		if err != nil {
			return outputErrorCommon(globals, "TMUX_ERROR", err.Error(), "install tmux or drop --tmux")
		}
		report, runErr = c.runWithTmux(ctx, mgr, client, sessLog.Logger, rc, timings.DrainTimeout, sess, opts)
		if err := newEventSink(globals, globals.Stdout).report(report); err != nil {
			return err
		}
	default:
		sink := newEventSink(globals, globals.Stdout)
		prober := probe.New(probe.NewADBTool(client), sessLog.Logger, rc, timings.DrainTimeout, probe.WithObserver(sink.stage))
		report, runErr = prober.Run(ctx, sess, opts)
		if err := sink.report(report); err != nil {
			return err
		}
	}

	c.record(globals, cfg, sessLog.Logger, report)
	return c.exitStatus(globals, report, runErr)
}

func (c *ProbeCmd) spec(sess *domain.Session) probe.ServerSpec {
	return probe.ServerSpec{
		ClasspathArtifact: c.RemotePath,
		ServerClass:       c.Class,
		ProtocolVersion:   c.ServerVersion,
		SessionID:         sess.SessionID,
		LogLevel:          c.LogLevel,
		MaxSize:           c.MaxSize,
		TunnelForward:     true,
	}
}

func (c *ProbeCmd) runWithUI(ctx context.Context, globals *Globals, client *adb.Client, log *zap.Logger, rc probe.ReaderConfig, drain time.Duration, sess *domain.Session, opts probe.Options) (*domain.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target := c.Serial
	if target == "" {
		target = "first ready device"
	}
	prog := tea.NewProgram(tui.New(target, cancel), tea.WithOutput(globals.Stderr), tea.WithContext(ctx))

	type result struct {
		report *domain.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		prober := probe.New(probe.NewADBTool(client), log, rc, drain, probe.WithObserver(func(ev *domain.StageEvent) {
			prog.Send(tui.StageMsg{Event: ev})
		}))
		r, err := prober.Run(ctx, sess, opts)
		done <- result{report: r, err: err}
		prog.Send(tui.DoneMsg{Report: r, Err: err})
	}()

	final, err := prog.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Warn("progress view failed", zap.Error(err))
	}
	cancel()
	res := <-done

	if uiAborted(final) {
		log.Info("run cancelled from the progress view")
		fmt.Fprintln(globals.Stderr, "Cancelled; cleanup finished")
	}

	if res.report != nil {
		output.NewTextWriter(globals.Stdout, isTerminal(globals.Stdout)).WriteReport(res.report)
	}
	return res.report, res.err
}

// uiAborted reports whether the progress view ended because the user quit.
func uiAborted(final tea.Model) bool {
	m, ok := final.(tui.Model)
	return ok && m.Aborted()
}

func (c *ProbeCmd) setupTmux(globals *Globals, sess *domain.Session) (*tmux.Manager, error) {
	mgr, err := tmux.NewManager(tmux.Config{SessionName: tmux.DefaultSessionName})
	if err != nil {
		return nil, err
	}
	if err := mgr.Setup(); err != nil {
		return nil, err
	}
	target := c.Serial
	if target == "" {
		target = fmt.Sprintf("scid %s port %d", sess.SessionID, sess.VideoPort)
	}
	if err := mgr.ClearPaneWithBanner(sess.RunID, target, time.Now()); err != nil {
		globals.Debug("tmux banner failed: %v", err)
	}
	fmt.Fprintf(globals.Stderr, "Mirroring to tmux session %s (attach: %s)\n", mgr.SessionName(), mgr.AttachCommand())
	return mgr, nil
}

func (c *ProbeCmd) runWithTmux(ctx context.Context, mgr *tmux.Manager, client *adb.Client, log *zap.Logger, rc probe.ReaderConfig, drain time.Duration, sess *domain.Session, opts probe.Options) (*domain.Report, error) {
	pane := tmux.NewWriter(mgr)
	tw := output.NewTextWriter(pane, false)
	prober := probe.New(probe.NewADBTool(client), log, rc, drain, probe.WithObserver(func(ev *domain.StageEvent) {
		tw.WriteStage(ev)
	}))
	report, runErr := prober.Run(ctx, sess, opts)
	tw.WriteReport(report)
	if err := pane.Flush(); err != nil {
		log.Warn("tmux flush failed", zap.Error(err))
	}
	return report, runErr
}

func (c *ProbeCmd) record(globals *Globals, cfg *config.Config, log *zap.Logger, report *domain.Report) {
	if c.NoHistory || !cfg.History.Enabled || report == nil {
		return
	}
	path := cfg.History.Path
	if path == "" {
		path = config.DefaultHistoryPath()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, path)
	if err != nil {
		log.Warn("history unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Record(ctx, report); err != nil {
		log.Warn("history record failed", zap.Error(err))
		return
	}
	globals.Debug("recorded run %s in %s", report.RunID, path)
}

// exitStatus turns the run outcome into the command's error. Partial
// handshakes exit zero; a failed verdict or a terminal stage failure exit
// non-zero.
func (c *ProbeCmd) exitStatus(globals *Globals, report *domain.Report, runErr error) error {
	if runErr != nil {
		kind := domain.KindOf(runErr)
		return outputErrorCommon(globals, string(kind), runErr.Error(), hintFor(kind, c.Port))
	}
	if report != nil && report.Verdict == domain.VerdictFailed {
		code := report.Code
		msg := report.Error
		if msg == "" {
			msg = "handshake produced no bytes"
		}
		return outputErrorCommon(globals, string(code), msg, hintFor(code, c.Port))
	}
	return nil
}

// eventSink renders stage events and the final report in the chosen format.
type eventSink struct {
	globals *Globals
	ndjson  *output.NDJSONWriter
	text    *output.TextWriter
}

func newEventSink(globals *Globals, w io.Writer) *eventSink {
	s := &eventSink{globals: globals}
	if globals.Format == "ndjson" {
		s.ndjson = output.NewNDJSONWriter(w)
	} else {
		s.text = output.NewTextWriter(w, isTerminal(w))
	}
	return s
}

func (s *eventSink) stage(ev *domain.StageEvent) {
	if s.globals.Quiet {
		return
	}
	if s.ndjson != nil {
		s.ndjson.WriteStage(ev)
		return
	}
	s.text.WriteStage(ev)
}

func (s *eventSink) report(r *domain.Report) error {
	if r == nil {
		return nil
	}
	if s.ndjson != nil {
		return s.ndjson.WriteReport(r)
	}
	return s.text.WriteReport(r)
}
