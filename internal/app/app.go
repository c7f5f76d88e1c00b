//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/internal/config"
	"github.com/mymmsc/reactor/internal/logger"
	"github.com/mymmsc/reactor/internal/metrics"
)

// ReactorApp owns one loop and the goroutines around it. The loop is only
// touched by the goroutine that registers events before Run and by the
// loop goroutine during Run; other goroutines stop it through Stop.
type ReactorApp struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Loop    *reactor.Loop
	Router  *gin.Engine

	stop   [2]int // self-pipe: read end watched by the loop
	stopEv reactor.Event
	server *http.Server
}

func FromConfig(cfgFile string) (*ReactorApp, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg)
}

func NewApp(cfg *config.Config) (*ReactorApp, error) {
	app := &ReactorApp{Cfg: cfg, stop: [2]int{-1, -1}}
	app.Logger = logger.New(cfg.Logging)
	app.Metrics = metrics.NewMetrics(&cfg.Metrics)

	loop, err := reactor.NewLoop(cfg.Loop.Capacity,
		reactor.WithBackend(reactor.Backend(cfg.Loop.Backend)),
		reactor.WithLogger(app.Logger),
		reactor.WithObserver(app.Metrics),
	)
	if err != nil {
		return nil, err
	}
	app.Loop = loop
	app.Metrics.SetCapacity(loop.Cap())

	if err := app.initStopPipe(); err != nil {
		_ = loop.Free()
		return nil, err
	}
	if cfg.Metrics.Enabled {
		app.Router = newRouter(app)
		app.server = newServer(app)
	}

	slog.SetDefault(app.Logger) // Set global logger as well
	return app, nil
}

func (a *ReactorApp) initStopPipe() error {
	if err := unix.Pipe(a.stop[:]); err != nil {
		return err
	}
	for _, fd := range a.stop {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			a.closeStopPipe()
			return err
		}
	}
	a.stopEv = reactor.Event{Fd: a.stop[0], Events: reactor.Read, Callback: onStop}
	if err := a.Loop.Add(&a.stopEv); err != nil {
		a.closeStopPipe()
		return err
	}
	return nil
}

func (a *ReactorApp) closeStopPipe() {
	for i, fd := range a.stop {
		if fd >= 0 {
			_ = unix.Close(fd)
			a.stop[i] = -1
		}
	}
}

func onStop(_ *reactor.Loop, ev *reactor.Event) int {
	var buf [64]byte
	for {
		if n, err := unix.Read(ev.Fd, buf[:]); n <= 0 || err != nil {
			break
		}
	}
	return reactor.Abort
}

func newRouter(a *ReactorApp) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	a.Metrics.MetricsMiddleware(router)
	return router
}

func newServer(a *ReactorApp) *http.Server {
	return &http.Server{
		Addr:         a.Cfg.Metrics.Addr,
		Handler:      a.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Stop asks the loop to return from Run. It is safe from any goroutine.
func (a *ReactorApp) Stop() {
	if a.stop[1] < 0 {
		return
	}
	_, _ = unix.Write(a.stop[1], []byte{1})
}

// Run drives the loop on a locked OS thread until it runs out of events, a
// callback aborts, Stop is called or ctx is done. The metrics server, when
// enabled, runs alongside and is shut down with the loop.
func (a *ReactorApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.Info("metrics server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.Stop()
		if a.server != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return a.server.Shutdown(shutdownCtx)
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		a.Logger.Info("loop started", "backend", a.Loop.Backend(), "capacity", a.Loop.Cap())
		rv := a.Loop.Wait()
		a.Logger.Info("loop stopped", "result", rv)
		return nil
	})

	return g.Wait()
}

// Close frees the loop and the stop pipe. Events registered by callers are
// not closed.
func (a *ReactorApp) Close() error {
	err := a.Loop.Free()
	a.closeStopPipe()
	if errors.Is(err, reactor.ErrClosed) {
		return nil
	}
	return err
}
