package cli

// validateFlags centralizes flag combinations that cannot work together.
func validateFlags(globals *Globals, ui, tmux, tty bool) error {
	if ui && tmux {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui cannot be combined with --tmux", "pick one of --ui or --tmux")
	}
	if ui && globals != nil && globals.Format != "text" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui requires text output", "add --format text or remove --ui")
	}
	if ui && !tty {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui requires an interactive terminal", "drop --ui when piping output")
	}
	// quiet + text is confusing; steer to ndjson
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	return nil
}
