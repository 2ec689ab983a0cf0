package probe

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/domain"
)

// ArtifactVerifier checks which server build is on the device and re-pushes
// the local build once when the check fails. The result is informational:
// a mismatch or failure never stops the run.
type ArtifactVerifier struct {
	tool DeviceTool
	log  *zap.Logger
}

// NewArtifactVerifier creates a verifier
func NewArtifactVerifier(tool DeviceTool, log *zap.Logger) *ArtifactVerifier {
	return &ArtifactVerifier{tool: tool, log: log}
}

// Verify runs the version check for spec on the session's device. local is
// the host-side artifact used for the repair push; it may be empty.
func (v *ArtifactVerifier) Verify(ctx context.Context, sess *domain.Session, spec ServerSpec, local string) *domain.VersionReport {
	rep := &domain.VersionReport{
		Observed:      domain.UnknownVersion,
		Expected:      spec.ProtocolVersion,
		LocalArtifact: local,
	}
	localOK := v.describeLocal(rep)

	cmd := spec.VersionCommand()
	out, err := v.tool.Shell(ctx, sess.DeviceID, cmd)
	if err == nil {
		v.observe(rep, sess, out)
		return rep
	}
	v.log.Warn("version check failed", zap.String("command", cmd), zap.Error(err))

	if !localOK {
		return v.fail(rep, cmd, fmt.Errorf("%w; no local artifact to push (%q)", err, local))
	}

	push := adb.Describe(adb.PushArgs(sess.DeviceID, local, spec.ClasspathArtifact)...)
	if err := v.tool.Push(ctx, sess.DeviceID, local, spec.ClasspathArtifact); err != nil {
		return v.fail(rep, push, err)
	}
	rep.Repushed = true
	v.log.Info("artifact pushed", zap.String("command", push), zap.Int64("size", rep.LocalSize), zap.String("blake3", rep.LocalBLAKE3))

	out, err = v.tool.Shell(ctx, sess.DeviceID, cmd)
	if err != nil {
		return v.fail(rep, cmd, err)
	}
	v.observe(rep, sess, out)
	return rep
}

func (v *ArtifactVerifier) observe(rep *domain.VersionReport, sess *domain.Session, out string) {
	if observed := strings.TrimSpace(out); observed != "" {
		rep.Observed = observed
	}
	sess.ServerVersion = rep.Observed
	rep.Matches = rep.Expected != "" && strings.Contains(rep.Observed, rep.Expected)
	if !rep.Matches {
		v.log.Warn("server version differs", zap.String("observed", rep.Observed), zap.String("expected", rep.Expected))
	}
}

func (v *ArtifactVerifier) fail(rep *domain.VersionReport, op string, cause error) *domain.VersionReport {
	rep.Err = domain.NewError(domain.KindVerificationFailed, op, cause)
	rep.ErrDescription = rep.Err.Error()
	return rep
}

// describeLocal fills size and digest of the local artifact and reports
// whether it can be pushed.
func (v *ArtifactVerifier) describeLocal(rep *domain.VersionReport) bool {
	if rep.LocalArtifact == "" {
		return false
	}
	data, err := os.ReadFile(rep.LocalArtifact)
	if err != nil {
		v.log.Debug("local artifact unavailable", zap.String("path", rep.LocalArtifact), zap.Error(err))
		return false
	}
	sum := blake3.Sum256(data)
	rep.LocalSize = int64(len(data))
	rep.LocalBLAKE3 = hex.EncodeToString(sum[:])
	return true
}
