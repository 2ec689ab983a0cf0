package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/vburojevic/mprobe/internal/config"
	"github.com/vburojevic/mprobe/internal/history"
	"github.com/vburojevic/mprobe/internal/output"
)

// HistoryCmd lists recorded probe runs
type HistoryCmd struct {
	Limit  int           `short:"n" default:"20" help:"Number of runs to show"`
	Device string        `short:"s" help:"Only runs against this device serial"`
	RunID  string        `name:"run" help:"Print the full stored report of one run id"`
	Prune  time.Duration `help:"Delete runs older than this before listing"`
}

// HistoryRunOutput is the NDJSON form of one history row
type HistoryRunOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	history.Run
}

// Run executes the history command
func (c *HistoryCmd) Run(globals *Globals) error {
	ctx := context.Background()
	path := c.path(globals)

	store, err := history.Open(ctx, path)
	if err != nil {
		return outputErrorCommon(globals, "HISTORY_ERROR", err.Error(), "check history.path in the config file")
	}
	defer store.Close()

	if c.Prune > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-c.Prune))
		if err != nil {
			return outputErrorCommon(globals, "HISTORY_ERROR", err.Error())
		}
		globals.Debug("pruned %d runs older than %s", n, c.Prune)
	}

	if c.RunID != "" {
		report, err := store.Report(ctx, c.RunID)
		if errors.Is(err, history.ErrNotFound) {
			return outputErrorCommon(globals, "RUN_NOT_FOUND", fmt.Sprintf("no run %s in %s", c.RunID, path), "list run ids with `mprobe history`")
		}
		if err != nil {
			return outputErrorCommon(globals, "HISTORY_ERROR", err.Error())
		}
		return newEventSink(globals, globals.Stdout).report(report)
	}

	runs, err := store.Recent(ctx, c.Limit, c.Device)
	if err != nil {
		return outputErrorCommon(globals, "HISTORY_ERROR", err.Error())
	}

	if globals.Format == "ndjson" {
		w := output.NewNDJSONWriter(globals.Stdout)
		for _, r := range runs {
			if err := w.Write(HistoryRunOutput{Type: "run", SchemaVersion: output.SchemaVersion, Run: r}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(runs) == 0 {
		fmt.Fprintln(globals.Stdout, "No runs recorded")
		return nil
	}
	rows := lo.Map(runs, func(r history.Run, _ int) []string {
		return []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.RunID,
			r.Device,
			string(r.Verdict),
			string(r.Code),
			r.DeviceName,
			r.VersionObserved,
		}
	})
	return output.NewTextWriter(globals.Stdout, isTerminal(globals.Stdout)).
		WriteTable([]string{"Started", "Run", "Device", "Verdict", "Code", "Name", "Version"}, rows)
}

func (c *HistoryCmd) path(globals *Globals) string {
	if globals.Config != nil && globals.Config.History.Path != "" {
		return globals.Config.History.Path
	}
	return config.DefaultHistoryPath()
}
