package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerSpec_Command(t *testing.T) {
	spec := ServerSpec{
		ClasspathArtifact: "/data/local/tmp/scrcpy-server.jar",
		ServerClass:       "com.genymobile.scrcpy.Server",
		ProtocolVersion:   "2.7",
		SessionID:         "12345678",
		LogLevel:          "info",
		MaxSize:           720,
		TunnelForward:     true,
	}

	assert.Equal(t,
		"CLASSPATH=/data/local/tmp/scrcpy-server.jar app_process / com.genymobile.scrcpy.Server 2.7 "+
			"scid=12345678 log_level=info max_size=720 tunnel_forward=true audio=false control=false",
		spec.Command())
	assert.Equal(t, "CLASSPATH=/data/local/tmp/scrcpy-server.jar app_process / com.genymobile.scrcpy.Server -v", spec.VersionCommand())
	assert.Equal(t, "pkill -f com.genymobile.scrcpy.Server", spec.KillCommand())
}
