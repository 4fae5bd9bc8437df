package stats

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecord_IncrementalMean(t *testing.T) {
	store := mock.NewMockStore()
	agg := NewAggregator(store, nil, time.UTC)
	agg.SetClock(fixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	first, err := agg.RecordStrict(ctx, "c1", true, 0.9, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.TotalRecognitions)
	assert.Equal(t, int64(1), first.SuccessfulMatches)
	assert.Equal(t, int64(0), first.FailedMatches)
	assert.InDelta(t, 0.9, first.AvgConfidence, 1e-9)

	second, err := agg.RecordStrict(ctx, "c1", false, 0.0, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.TotalRecognitions)
	assert.Equal(t, int64(1), second.SuccessfulMatches)
	assert.Equal(t, int64(1), second.FailedMatches)
	assert.InDelta(t, 0.45, second.AvgConfidence, 1e-9)
	assert.InDelta(t, 75.0, second.AvgProcessingTimeMs, 1e-9)

	got, err := agg.Get(ctx, "c1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, second.TotalRecognitions, got.TotalRecognitions)
}

func TestRecord_ThreeSuccessesOneFailure(t *testing.T) {
	store := mock.NewMockStore()
	agg := NewAggregator(store, nil, time.UTC)
	agg.SetClock(fixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	for range 3 {
		agg.Record(ctx, "c1", true, 0.8, 10)
	}
	agg.Record(ctx, "c1", false, 0, 10)

	got, err := agg.Get(ctx, "c1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.TotalRecognitions)
	assert.Equal(t, int64(3), got.SuccessfulMatches)
	assert.Equal(t, int64(1), got.FailedMatches)
	assert.InDelta(t, 0.6, got.AvgConfidence, 1e-9)
}

func TestRecord_SeparatesCamerasAndDays(t *testing.T) {
	store := mock.NewMockStore()
	agg := NewAggregator(store, nil, time.UTC)
	ctx := context.Background()

	agg.SetClock(fixedClock(time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)))
	agg.Record(ctx, "c1", true, 0.8, 10)
	agg.Record(ctx, "c2", true, 0.8, 10)

	agg.SetClock(fixedClock(time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC)))
	agg.Record(ctx, "c1", true, 0.8, 10)

	day1, err := agg.Get(ctx, "c1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), day1.TotalRecognitions)

	day2, err := agg.Get(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", day2.Date)
	assert.Equal(t, int64(1), day2.TotalRecognitions)

	other, err := agg.Get(ctx, "c2", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.TotalRecognitions)
}

func TestToday_UsesLocation(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Skip("tzdata not available")
	}
	agg := NewAggregator(mock.NewMockStore(), nil, prague)
	agg.SetClock(fixedClock(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-03", agg.Today())
}

func TestRecord_Concurrent(t *testing.T) {
	store := mock.NewMockStore()
	agg := NewAggregator(store, nil, time.UTC)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.Record(ctx, "c1", i%2 == 0, 0.5, 10)
		}(i)
	}
	wg.Wait()

	got, err := agg.Get(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.TotalRecognitions)
	assert.Equal(t, int64(25), got.SuccessfulMatches)
	assert.Equal(t, got.TotalRecognitions, got.SuccessfulMatches+got.FailedMatches)
	assert.InDelta(t, 0.5, got.AvgConfidence, 1e-9)
}

func TestRecord_BestEffort(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewAttendanceMetrics(reg)
	require.NoError(t, err)

	store := mock.NewMockStore()
	store.RecordStatError = database.ErrStorageUnavailable
	agg := NewAggregator(store, m, time.UTC)

	agg.Record(context.Background(), "c1", true, 0.9, 10)
	expected := `
# HELP attendance_stats_errors_total Total number of recognition statistics updates that failed
# TYPE attendance_stats_errors_total counter
attendance_stats_errors_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "attendance_stats_errors_total"))

	_, err = agg.RecordStrict(context.Background(), "c1", true, 0.9, 10)
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
}

func TestGet_Errors(t *testing.T) {
	agg := NewAggregator(mock.NewMockStore(), nil, time.UTC)
	ctx := context.Background()

	_, err := agg.Get(ctx, "c1", "2026-13-45")
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	_, err = agg.Get(ctx, "", "2026-03-02")
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	_, err = agg.Get(ctx, "c1", "2026-03-02")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = agg.RecordStrict(ctx, " ", true, 0.9, 10)
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}
