package productivity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woodsmokeheart/tracker/internal/clock"
	"github.com/woodsmokeheart/tracker/internal/gateway"
	"github.com/woodsmokeheart/tracker/internal/model"
)

const testOwner = "user_agg"

func newTestAggregator(t *testing.T, now time.Time) (*Aggregator, gateway.Gateway) {
	t.Helper()
	gw := gateway.NewMemory()
	t.Cleanup(func() { _ = gw.Close() })
	return New(gw, testOwner, clock.Fixed{T: now}), gw
}

func counterFor(t *testing.T, gw gateway.Gateway, date string) (int, bool) {
	t.Helper()
	counters, err := gw.ListCounters(context.Background(), testOwner)
	require.NoError(t, err)
	for _, c := range counters {
		if c.Date == date {
			return c.Completed, true
		}
	}
	return 0, false
}

func TestRecordToggle_CreateIncrementDecrement(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)
	ctx := context.Background()
	today := now.Format(model.DateLayout)

	// first completion of the day creates the counter at 1
	require.NoError(t, agg.RecordToggle(ctx, true))
	v, ok := counterFor(t, gw, today)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, agg.RecordToggle(ctx, true))
	v, _ = counterFor(t, gw, today)
	assert.Equal(t, 2, v)

	// un-completing walks it back down
	require.NoError(t, agg.RecordToggle(ctx, false))
	v, _ = counterFor(t, gw, today)
	assert.Equal(t, 1, v)
}

func TestRecordToggle_ClampsAtZero(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)
	ctx := context.Background()
	today := now.Format(model.DateLayout)

	require.NoError(t, agg.RecordToggle(ctx, true))
	require.NoError(t, agg.RecordToggle(ctx, false))
	require.NoError(t, agg.RecordToggle(ctx, false))

	v, ok := counterFor(t, gw, today)
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestRecordToggle_DecrementWithoutCounterWritesNothing(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)

	require.NoError(t, agg.RecordToggle(context.Background(), false))

	counters, err := gw.ListCounters(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestQueryWindow_DayWeekMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)
	ctx := context.Background()

	seed := map[string]int{
		"2026-03-15": 3, // today
		"2026-03-14": 5, // yesterday
		"2026-03-01": 4, // two weeks back, inside the month
		"2026-01-20": 9, // outside every window
	}
	for date, n := range seed {
		require.NoError(t, gw.UpsertCounter(ctx, testOwner, date, n))
	}
	_, err := agg.Refresh(ctx)
	require.NoError(t, err)

	day, err := agg.QueryWindow(RangeDay)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Average: "3.0"}, day)

	week, err := agg.QueryWindow(RangeWeek)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 8, Average: "4.0"}, week)

	month, err := agg.QueryWindow(RangeMonth)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 12, Average: "4.0"}, month)
}

func TestQueryWindow_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	agg, _ := newTestAggregator(t, now)
	require.NoError(t, agg.EnsureLoaded(context.Background()))

	got, err := agg.QueryWindow(RangeWeek)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 0, Average: "0"}, got)
}

func TestQueryWindow_FractionalAverage(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)
	ctx := context.Background()

	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-15", 2))
	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-14", 5))
	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-13", 1))
	_, err := agg.Refresh(ctx)
	require.NoError(t, err)

	week, err := agg.QueryWindow(RangeWeek)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 8, Average: "2.7"}, week)
}

func TestQueryWindow_UnknownRange(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Now())
	_, err := agg.QueryWindow(Range("year"))
	assert.ErrorIs(t, err, ErrUnknownRange)
}

func TestCounters_NewestFirst(t *testing.T) {
	now := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	agg, gw := newTestAggregator(t, now)
	ctx := context.Background()

	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-13", 1))
	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-15", 3))
	require.NoError(t, gw.UpsertCounter(ctx, testOwner, "2026-03-14", 2))
	_, err := agg.Refresh(ctx)
	require.NoError(t, err)

	got := agg.Counters()
	require.Len(t, got, 3)
	assert.Equal(t, "2026-03-15", got[0].Date)
	assert.Equal(t, "2026-03-14", got[1].Date)
	assert.Equal(t, "2026-03-13", got[2].Date)
}
