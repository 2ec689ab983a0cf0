package cli

import (
	"encoding/json"
	"strings"

	"github.com/vburojevic/mprobe/internal/domain"
)

// SchemaCmd outputs JSON Schema for mprobe NDJSON output types
type SchemaCmd struct {
	Type []string `short:"t" help:"Output types to include (stage,report,error,info,device,run). Default: all"`
}

var schemaTypes = []string{"stage", "report", "error", "info", "device", "run"}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	schemas := map[string]interface{}{
		"stage":  stageSchema(),
		"report": reportSchema(),
		"error":  errorSchema(),
		"info":   infoSchema(),
		"device": deviceSchema(),
		"run":    runSchema(),
	}

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = schemaTypes
	}

	output := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "mprobe Output Schemas",
		"description": "JSON Schema definitions for all mprobe NDJSON output types",
		"definitions": map[string]interface{}{},
	}

	defs := output["definitions"].(map[string]interface{})
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func typeConst(name string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "const": name}
}

func schemaVersionProp() map[string]interface{} {
	return map[string]interface{}{"type": "integer", "const": domain.SchemaVersion}
}

func kindEnum() []string {
	return []string{
		string(domain.KindDeviceNotFound),
		string(domain.KindVerificationFailed),
		string(domain.KindForwardFailed),
		string(domain.KindLaunchFailed),
		string(domain.KindConnectFailed),
		string(domain.KindTimedOut),
		string(domain.KindRemoteClosed),
		string(domain.KindDecodeFailed),
	}
}

func stageSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Stage Event",
		"description": "Emitted when a probe stage starts or finishes",
		"properties": map[string]interface{}{
			"type":          typeConst("stage"),
			"schemaVersion": schemaVersionProp(),
			"run_id":        map[string]interface{}{"type": "string", "format": "uuid"},
			"stage": map[string]interface{}{
				"type": "string",
				"enum": []string{
					domain.StageLocate, domain.StageVerify, domain.StageCleanup, domain.StageForward,
					domain.StageLaunch, domain.StageHandshake, domain.StageTerminate, domain.StageTeardown,
				},
			},
			"status": map[string]interface{}{
				"type": "string",
				"enum": []string{"running", "ok", "partial", "failed", "skipped"},
			},
			"command": map[string]interface{}{
				"type":        "string",
				"description": "adb invocation or device shell command of the stage",
			},
			"detail": map[string]interface{}{"type": "string"},
			"code":   map[string]interface{}{"type": "string", "enum": kindEnum()},
			"bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Handshake bytes captured",
			},
			"timestamp": map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "schemaVersion", "run_id", "stage", "status", "timestamp"},
	}
}

func reportSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Probe Report",
		"description": "Final record of one probe run",
		"properties": map[string]interface{}{
			"type":          typeConst("report"),
			"schemaVersion": schemaVersionProp(),
			"run_id":        map[string]interface{}{"type": "string"},
			"device":        map[string]interface{}{"type": "string"},
			"scid":          map[string]interface{}{"type": "string"},
			"socket": map[string]interface{}{
				"type":        "string",
				"description": "Device abstract socket name (mirror_<scid>)",
			},
			"port": map[string]interface{}{"type": "integer"},
			"version": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"observed":       map[string]interface{}{"type": "string"},
					"expected":       map[string]interface{}{"type": "string"},
					"matches":        map[string]interface{}{"type": "boolean"},
					"repushed":       map[string]interface{}{"type": "boolean"},
					"local_artifact": map[string]interface{}{"type": "string"},
					"local_size":     map[string]interface{}{"type": "integer"},
					"local_blake3":   map[string]interface{}{"type": "string"},
					"error":          map[string]interface{}{"type": "string"},
				},
			},
			"handshake": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"states": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "string",
							"enum": []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "READING", "TIMED_OUT", "REMOTE_CLOSED", "DECODED"},
						},
					},
					"exit":       map[string]interface{}{"type": "string", "enum": []string{"budget", "remote_closed", "idle", "read_error", "cancelled"}},
					"hex":        map[string]interface{}{"type": "string"},
					"reads":      map[string]interface{}{"type": "integer"},
					"elapsed_ns": map[string]interface{}{"type": "integer"},
					"error":      map[string]interface{}{"type": "string"},
					"frame": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"length":      map[string]interface{}{"type": "integer"},
							"has_dummy":   map[string]interface{}{"type": "boolean"},
							"dummy":       map[string]interface{}{"type": "integer"},
							"device_name": map[string]interface{}{"type": "string"},
							"name_state": map[string]interface{}{
								"type": "string",
								"enum": []string{"absent", "partial", "complete", "undecodable"},
							},
						},
					},
				},
			},
			"server": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"stdout":    map[string]interface{}{"type": "string"},
					"stderr":    map[string]interface{}{"type": "string"},
					"exit_code": map[string]interface{}{"type": "integer"},
					"signaled":  map[string]interface{}{"type": "boolean"},
					"alive_after_handshake": map[string]interface{}{
						"type":        "boolean",
						"description": "Server process was still running when the handshake read ended",
					},
				},
			},
			"verdict":     map[string]interface{}{"type": "string", "enum": []string{"ok", "partial", "failed"}},
			"code":        map[string]interface{}{"type": "string", "enum": kindEnum()},
			"error":       map[string]interface{}{"type": "string"},
			"started_at":  map[string]interface{}{"type": "string", "format": "date-time"},
			"finished_at": map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "schemaVersion", "run_id", "scid", "socket", "port", "verdict", "started_at", "finished_at"},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Error",
		"description": "Error output",
		"properties": map[string]interface{}{
			"type":          typeConst("error"),
			"schemaVersion": schemaVersionProp(),
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Error code (a failure kind such as DEVICE_NOT_FOUND, or INVALID_FLAGS)",
			},
			"message": map[string]interface{}{"type": "string"},
			"hint":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"type", "code", "message"},
	}
}

func infoSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Info",
		"description": "Free-form notice, such as where the diagnostic log is written",
		"properties": map[string]interface{}{
			"type":          typeConst("info"),
			"schemaVersion": schemaVersionProp(),
			"message":       map[string]interface{}{"type": "string"},
			"run_id":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"type", "message"},
	}
}

func deviceSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Device",
		"description": "One entry of the adb device listing",
		"properties": map[string]interface{}{
			"type":          typeConst("device"),
			"schemaVersion": schemaVersionProp(),
			"serial":        map[string]interface{}{"type": "string"},
			"state":         map[string]interface{}{"type": "string"},
			"model":         map[string]interface{}{"type": "string"},
			"product":       map[string]interface{}{"type": "string"},
			"device":        map[string]interface{}{"type": "string"},
			"transport_id":  map[string]interface{}{"type": "string"},
			"ready":         map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"type", "serial", "state", "ready"},
	}
}

func runSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "History Run",
		"description": "One recorded probe run",
		"properties": map[string]interface{}{
			"type":             typeConst("run"),
			"schemaVersion":    schemaVersionProp(),
			"run_id":           map[string]interface{}{"type": "string"},
			"started_at":       map[string]interface{}{"type": "string", "format": "date-time"},
			"finished_at":      map[string]interface{}{"type": "string", "format": "date-time"},
			"device":           map[string]interface{}{"type": "string"},
			"scid":             map[string]interface{}{"type": "string"},
			"port":             map[string]interface{}{"type": "integer"},
			"version_observed": map[string]interface{}{"type": "string"},
			"version_expected": map[string]interface{}{"type": "string"},
			"version_matches":  map[string]interface{}{"type": "boolean"},
			"verdict":          map[string]interface{}{"type": "string", "enum": []string{"ok", "partial", "failed"}},
			"code":             map[string]interface{}{"type": "string"},
			"error":            map[string]interface{}{"type": "string"},
			"bytes":            map[string]interface{}{"type": "integer"},
			"device_name":      map[string]interface{}{"type": "string"},
			"name_state":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"type", "run_id", "verdict"},
	}
}
