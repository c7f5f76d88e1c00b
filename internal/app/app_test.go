//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Loop.Capacity = 64
	cfg.Logging.LogLevel = "error"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *ReactorApp {
	t.Helper()
	a, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func runAsync(a *ReactorApp, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return done
}

func TestReactorApp_StopFromOtherGoroutine(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	assert.Equal(t, 1, a.Loop.LenIO(), "stop pipe is registered")

	done := runAsync(a, context.Background())
	time.Sleep(20 * time.Millisecond)
	a.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestReactorApp_ContextCancel(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(a, ctx)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReactorApp_TimerAbortEndsRun(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ticks := 0
	ev := &reactor.Event{Fd: 0, Events: reactor.Timer, Timeout: 5 * time.Millisecond}
	ev.Callback = func(l *reactor.Loop, ev *reactor.Event) int {
		ticks++
		if ticks == 3 {
			return reactor.Abort
		}
		if err := l.Add(ev); err != nil {
			return reactor.Abort
		}
		return 0
	}
	require.NoError(t, a.Loop.Add(ev))

	select {
	case err := <-runAsync(a, context.Background()):
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 3, ticks)
}

func TestReactorApp_MetricsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := newTestApp(t, cfg)
	require.NotNil(t, a.server)
	require.NotNil(t, a.Router)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	done := runAsync(a, context.Background())
	time.Sleep(20 * time.Millisecond)
	a.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewApp_BadBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loop.Backend = "devpoll"
	_, err := NewApp(cfg)
	assert.ErrorIs(t, err, reactor.ErrUnsupported)
}

func TestReactorApp_CloseTwice(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
