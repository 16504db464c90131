package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prospector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_retry_rounds: 1\n"), 0o644))

	w, err := NewWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_retry_rounds: 5\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 5, cfg.Policy.MaxRetryRounds)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherKeepsPreviousOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prospector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_retry_rounds: 1\n"), 0o644))

	w, err := NewWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	called := make(chan struct{}, 1)
	w.OnReload(func(cfg *Config) error {
		called <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// Invalid content must not reach handlers.
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_retry_rounds: -9\n"), 0o644))

	select {
	case <-called:
		t.Fatal("handler called for invalid config")
	case <-time.After(500 * time.Millisecond):
	}
}
