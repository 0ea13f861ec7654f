package testsupport

import (
	"context"
	"testing"

	"github.com/lucianfialho/urban-lullaby/internal/config"
	"github.com/lucianfialho/urban-lullaby/internal/history"
)

// MustOpenHistory opens the pass history store for cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// CompletedPass records a finished pass for date and returns it.
func CompletedPass(t testing.TB, store *history.Store, date, term string, tracks int) *history.Pass {
	t.Helper()

	ctx := context.Background()
	pass, err := store.Begin(ctx, date, term, "/music/playlist_"+date)
	if err != nil {
		t.Fatalf("store.Begin: %v", err)
	}
	if err := store.UpdateCounts(ctx, pass.ID, tracks, 0); err != nil {
		t.Fatalf("store.UpdateCounts: %v", err)
	}
	if err := store.Complete(ctx, pass.ID); err != nil {
		t.Fatalf("store.Complete: %v", err)
	}
	done, err := store.Get(ctx, pass.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return done
}
