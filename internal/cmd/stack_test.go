package cmd

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/macrocam/internal/config"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/session"
)

func TestLocalStack(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)

	stack, err := newClientStack(ctx, cfg, log.Nop())
	require.NoError(t, err)
	defer stack.Close()

	require.NoError(t, stack.storeCheck(ctx))
	require.NoError(t, stack.manager.Initialize(ctx))
	assert.Equal(t, session.Unauthenticated{}, stack.manager.State())

	require.NoError(t, stack.manager.SignInOrRegister(ctx, "ana@example.com", "correct horse"))
	uid, ok := stack.manager.UserID()
	require.True(t, ok)

	rec, err := meal.NewRecord(uid, meal.MacroEstimate{Calories: 640, ProteinG: 35, CarbsG: 70, FatG: 22}, stack.gateway.Now())
	require.NoError(t, err)
	require.NoError(t, stack.gateway.Insert(ctx, rec))

	records, err := stack.gateway.FetchToday(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, meal.DailyTotals{Calories: 640, Protein: 35, Carbs: 70, Fat: 22}, meal.Aggregate(records))

	require.NoError(t, stack.Close())
	assert.Error(t, stack.storeCheck(ctx), "database should be closed")
}

func TestLocalStackRestoresSession(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)

	first, err := newClientStack(ctx, cfg, log.Nop())
	require.NoError(t, err)
	require.NoError(t, first.manager.SignInOrRegister(ctx, "ana@example.com", "correct horse"))
	uid, _ := first.manager.UserID()
	require.NoError(t, first.Close())

	second, err := newClientStack(ctx, cfg, log.Nop())
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.manager.Initialize(ctx))
	got, ok := second.manager.UserID()
	require.True(t, ok)
	assert.Equal(t, uid, got)
}

func TestSupabaseStack(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	cfg := localConfig(t)
	cfg.Identity = config.DriverSupabase
	cfg.Store = config.DriverSupabase
	cfg.Supabase.URL = srv.URL
	cfg.Supabase.AnonKey = "anon"
	require.NoError(t, cfg.Validate())

	stack, err := newClientStack(ctx, cfg, log.Nop())
	require.NoError(t, err)

	require.NoError(t, stack.storeCheck(ctx))
	mu.Lock()
	assert.Contains(t, paths, "/rest/v1/meals")
	mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = stack.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the refresh loop")
	}
}
