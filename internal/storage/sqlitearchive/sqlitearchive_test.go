package sqlitearchive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/internal/types"
	"github.com/ambience-earth/ambience/pkg/config"
)

func openTestArchive(t *testing.T, retentionDays int) *Storage {
	t.Helper()
	s, err := New(config.SQLiteArchiveData{
		Path:          filepath.Join(t.TempDir(), "archive.db"),
		RetentionDays: retentionDays,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func event(number uint32, ts time.Time) types.Event {
	return types.Event{
		Timestamp:       ts,
		DeviceID:        "dev-1",
		BootID:          "boot-a",
		Number:          number,
		Kind:            "feed",
		SlotIndex:       2,
		StartReason:     "time",
		StopReason:      "runoff",
		SoilBefore:      41,
		SoilAfter:       55,
		BaselinePercent: -1,
		DrybackPercent:  12,
		FeedMl:          230,
		DailyTotalMl:    460,
		LightDayKey:     152,
		DurationMs:      54000,
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(config.SQLiteArchiveData{})
	assert.Error(t, err)
}

func TestStoreAndRecent(t *testing.T) {
	s := openTestArchive(t, 0)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for n := uint32(1); n <= 3; n++ {
		require.NoError(t, s.StoreEvent(event(n, base.Add(time.Duration(n)*time.Minute))))
	}
	// duplicates are ignored
	require.NoError(t, s.StoreEvent(event(3, base.Add(3*time.Minute))))

	got, err := s.Recent(context.Background(), "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, event(3, base.Add(3*time.Minute)), got[0])
	assert.Equal(t, uint32(1), got[2].Number)

	got, err = s.Recent(context.Background(), "other", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPrune(t *testing.T) {
	s := openTestArchive(t, 30)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.StoreEvent(event(1, now.AddDate(0, 0, -31))))
	require.NoError(t, s.StoreEvent(event(2, now.AddDate(0, 0, -29))))

	n, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Recent(context.Background(), "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2), got[0].Number)

	assert.Equal(t, storage.StatusHealthy, s.CheckHealth().Status)
}

func TestPruneDisabled(t *testing.T) {
	s := openTestArchive(t, 0)
	require.NoError(t, s.StoreEvent(event(1, time.Unix(0, 0))))
	n, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
