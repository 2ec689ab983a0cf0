package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/mprobe/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReport(device string, started time.Time, verdict domain.Verdict) *domain.Report {
	sess := domain.NewSession("12345678", 27183)
	sess.DeviceID = device
	r := domain.NewReport(sess, started)
	r.Device = device
	r.FinishedAt = started.Add(3 * time.Second)
	r.Verdict = verdict
	r.Version = &domain.VersionReport{Observed: "2.7", Expected: "2.7", Matches: true}
	capture := make([]byte, domain.HandshakeLen)
	copy(capture[1:], "Pixel 7")
	r.Handshake = &domain.HandshakeResult{
		States: []domain.ReaderState{domain.StateDisconnected, domain.StateDecoded},
		Frame:  domain.DecodeHandshake(capture),
	}
	return r
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := testReport("A", base, domain.VerdictOK)
	second := testReport("B", base.Add(500*time.Millisecond), domain.VerdictPartial)
	second.Code = domain.KindRemoteClosed
	third := testReport("A", base.Add(time.Minute), domain.VerdictFailed)

	for _, r := range []*domain.Report{first, second, third} {
		require.NoError(t, store.Record(ctx, r))
	}

	runs, err := store.Recent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, third.RunID, runs[0].RunID, "newest first")
	assert.Equal(t, second.RunID, runs[1].RunID, "sub-second ordering is preserved")
	assert.Equal(t, domain.KindRemoteClosed, runs[1].Code)
	assert.Equal(t, "Pixel 7", runs[2].DeviceName)
	assert.Equal(t, domain.HandshakeLen, runs[2].Bytes)
	assert.True(t, runs[2].VersionMatches)
	assert.True(t, runs[2].StartedAt.Equal(base))

	onlyA, err := store.Recent(ctx, 10, "A")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	limited, err := store.Recent(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	r := testReport("A", time.Now(), domain.VerdictFailed)

	require.NoError(t, store.Record(ctx, r))
	r.Verdict = domain.VerdictOK
	require.NoError(t, store.Record(ctx, r))

	runs, err := store.Recent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.VerdictOK, runs[0].Verdict)
}

func TestStore_Report(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	r := testReport("A", time.Now(), domain.VerdictOK)
	require.NoError(t, store.Record(ctx, r))

	got, err := store.Report(ctx, r.RunID)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, "Pixel 7", got.Handshake.Frame.Name)
	assert.Equal(t, "mirror_12345678", got.SocketName)

	_, err = store.Report(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()
	require.NoError(t, store.Record(ctx, testReport("A", now.Add(-48*time.Hour), domain.VerdictOK)))
	require.NoError(t, store.Record(ctx, testReport("A", now, domain.VerdictOK)))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := store.Recent(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_ReappliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, testReport("A", time.Now(), domain.VerdictOK)))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
