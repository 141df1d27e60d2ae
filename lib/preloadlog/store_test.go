package preloadlog

import (
	"context"
	"testing"
	"time"

	"pacs-preloader/lib/testutil"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) Store {
	db, cleanup := testutil.SetupDB(t, "preloadlog", Schema)
	t.Cleanup(cleanup)
	return NewStore(db)
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		err := store.Record(ctx, Entry{
			PatientKey:  "smith_john_19610412",
			StudyUID:    "1.2.840.1000000000000000000" + string(rune('1'+i)),
			ImageCount:  10 + i,
			StudyDate:   "20260126",
			CompletedAt: base.Add(time.Minute * time.Duration(i)),
		})
		require.NoError(t, err)
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, 12, entries[0].ImageCount)
	require.Equal(t, 11, entries[1].ImageCount)
	require.Equal(t, "smith_john_19610412", entries[0].PatientKey)
}

func TestRefreshedSince(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	err := store.Record(ctx, Entry{
		PatientKey:  "smith_john_19610412",
		StudyUID:    "1.2.840.10000000000000000001",
		ImageCount:  4,
		CompletedAt: time.Now().Add(-time.Minute * 30),
	})
	require.NoError(t, err)

	fresh, err := store.RefreshedSince(ctx, "smith_john_19610412", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = store.RefreshedSince(ctx, "smith_john_19610412", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, fresh)

	fresh, err = store.RefreshedSince(ctx, "someone_else_19800101", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestRecordDefaultsCompletedAt(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	err := store.Record(ctx, Entry{
		PatientKey: "doe_jane_19830901",
		StudyUID:   "1.2.840.10000000000000000002",
		ImageCount: 1,
	})
	require.NoError(t, err)

	entries, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.WithinDuration(t, time.Now(), entries[0].CompletedAt, time.Minute)
}
