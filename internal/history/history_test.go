package history

import (
	"context"
	"path/filepath"
	"quickeval/internal/components/chrono"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var shanghai = time.FixedZone("CST", 8*60*60)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 20, 9, 30, 0, 0, shanghai)

	ledger, err := Open(ctx, ":memory:", chrono.Fixed(now))
	require.NoError(t, err)
	defer ledger.Close()

	require.NoError(t, ledger.Record(ctx, Entry{
		RunId:           "run-1",
		CourseSessionId: "k1",
		CourseName:      "高等数学",
		Status:          StatusSucceeded,
		Time:            now.Add(-time.Hour),
	}))
	require.NoError(t, ledger.Record(ctx, Entry{
		RunId:           "run-2",
		CourseSessionId: "k2",
		CourseName:      "大学物理",
		Status:          StatusRejected,
		Reason:          "评教时间已结束",
	}))

	entries, err := ledger.List(ctx, 0)
	require.NoError(t, err)
	expected := []Entry{
		{
			RunId:           "run-2",
			CourseSessionId: "k2",
			CourseName:      "大学物理",
			Status:          StatusRejected,
			Reason:          "评教时间已结束",
			Time:            now,
		},
		{
			RunId:           "run-1",
			CourseSessionId: "k1",
			CourseName:      "高等数学",
			Status:          StatusSucceeded,
			Time:            now.Add(-time.Hour),
		},
	}
	if diff := cmp.Diff(expected, entries); diff != "" {
		t.Fatal(diff)
	}

	limited, err := ledger.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "k2", limited[0].CourseSessionId)
}

func TestListEmpty(t *testing.T) {
	ledger, err := Open(context.Background(), ":memory:", chrono.Fixed(time.Now()))
	require.NoError(t, err)
	defer ledger.Close()

	entries, err := ledger.List(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLedgerPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	clock := chrono.Fixed(time.Date(2024, 6, 1, 8, 0, 0, 0, shanghai))

	ledger, err := Open(ctx, path, clock)
	require.NoError(t, err)
	require.NoError(t, ledger.Record(ctx, Entry{CourseSessionId: "k1", Status: StatusFailed, Reason: "timeout"}))
	require.NoError(t, ledger.Close())

	ledger, err = Open(ctx, path, clock)
	require.NoError(t, err)
	defer ledger.Close()

	entries, err := ledger.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, StatusFailed, entries[0].Status)
	require.Equal(t, "timeout", entries[0].Reason)
}
