package meal

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/log"
)

type failingStore struct {
	queryErr  error
	insertErr error
	rows      []Record
}

func (s *failingStore) Query(ctx context.Context, q Query) ([]Record, error) {
	return s.rows, s.queryErr
}

func (s *failingStore) Insert(ctx context.Context, r Record) error {
	return s.insertErr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFetchTodayBounds(t *testing.T) {
	now := time.Date(2026, 6, 1, 14, 0, 0, 0, time.Local)
	start, end := DayBounds(now)
	store := NewMemoryStore()
	ctx := context.Background()

	insert := func(user string, at time.Time, kcal float64) {
		require.NoError(t, store.Insert(ctx, Record{ID: fmt.Sprint(at.UnixNano()), UserID: user, MealTime: at, MacroEstimate: MacroEstimate{Calories: kcal}}))
	}
	insert("u1", start, 1)
	insert("u1", end, 2)
	insert("u1", start.Add(-time.Nanosecond), 100)
	insert("u1", end.Add(time.Nanosecond), 200)
	insert("u1", now, 3)
	insert("u2", now, 400)

	gw := NewGateway(store, WithClock(fixedClock(now)), WithLogger(log.Nop()))
	records, err := gw.FetchToday(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, end, records[0].MealTime)
	assert.Equal(t, now, records[1].MealTime)
	assert.Equal(t, start, records[2].MealTime)
	assert.Equal(t, float64(6), Aggregate(records).Calories)
}

func TestFetchTodayRecomputesBounds(t *testing.T) {
	current := time.Date(2026, 6, 1, 23, 0, 0, 0, time.Local)
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, Record{UserID: "u1", MealTime: current, MacroEstimate: MacroEstimate{Calories: 50}}))

	gw := NewGateway(store, WithClock(func() time.Time { return current }), WithLogger(log.Nop()))

	records, err := gw.FetchToday(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	current = current.Add(2 * time.Hour)
	records, err = gw.FetchToday(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTwoMealsTodayOneYesterday(t *testing.T) {
	now := time.Date(2026, 6, 2, 18, 0, 0, 0, time.Local)
	ctx := context.Background()
	gw := NewGateway(NewMemoryStore(), WithClock(fixedClock(now)), WithLogger(log.Nop()))

	for _, m := range []struct {
		at   time.Time
		kcal float64
	}{
		{now.Add(-6 * time.Hour), 300},
		{now.Add(-1 * time.Hour), 700},
		{now.Add(-24 * time.Hour), 900},
	} {
		r, err := NewRecord("u1", MacroEstimate{Calories: m.kcal}, m.at)
		require.NoError(t, err)
		require.NoError(t, gw.Insert(ctx, r))
	}

	records, err := gw.FetchToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1000), Aggregate(records).Calories)
}

func TestFetchTodayDropsMalformedRows(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	store := &failingStore{rows: []Record{
		{ID: "ok", UserID: "u1", MealTime: now, MacroEstimate: MacroEstimate{Calories: 10}},
		{ID: "neg", UserID: "u1", MealTime: now, MacroEstimate: MacroEstimate{Calories: -10}},
		{ID: "nan", UserID: "u1", MealTime: now, MacroEstimate: MacroEstimate{FatG: math.NaN()}},
		{ID: "other", UserID: "u2", MealTime: now, MacroEstimate: MacroEstimate{Calories: 10}},
		{ID: "old", UserID: "u1", MealTime: now.AddDate(0, 0, -2), MacroEstimate: MacroEstimate{Calories: 10}},
	}}

	gw := NewGateway(store, WithClock(fixedClock(now)), WithLogger(log.Nop()))
	records, err := gw.FetchToday(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].ID)
}

func TestFetchTodayReadError(t *testing.T) {
	gw := NewGateway(&failingStore{queryErr: fmt.Errorf("connection reset")}, WithLogger(log.Nop()))

	_, err := gw.FetchToday(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStoreRead, errors.CodeOf(err))
}

func TestGatewayInsert(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("write failure", func(t *testing.T) {
		gw := NewGateway(&failingStore{insertErr: fmt.Errorf("permission denied")}, WithLogger(log.Nop()))
		err := gw.Insert(ctx, Record{UserID: "u1", MealTime: now})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeStoreWrite, errors.CodeOf(err))
	})

	t.Run("invalid record is never written", func(t *testing.T) {
		store := NewMemoryStore()
		gw := NewGateway(store, WithLogger(log.Nop()))
		err := gw.Insert(ctx, Record{MealTime: now})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeStoreInvalid, errors.CodeOf(err))
		assert.Equal(t, 0, store.Len())
	})
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Insert(ctx, Record{}), context.Canceled)
	_, err := store.Query(ctx, Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
