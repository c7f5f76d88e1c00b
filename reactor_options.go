package reactor

import (
	"log/slog"
	"os"
	"time"
)

// Observer receives loop activity, e.g. for metrics. Implementations are
// called on the loop goroutine and must not block.
type Observer interface {
	// Polled is called after every backend poll with the number of ready
	// descriptors and the time spent blocked.
	Polled(b Backend, n int, d time.Duration)
	// Dispatched is called once per invoked callback with Timer for timer
	// callbacks and the fired IO mask otherwise.
	Dispatched(kind Flags)
	// Grown is called when the loop capacity grows.
	Grown(from, to int)
}

type options struct {
	backend  Backend
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	fatal    func(error)
}

// Option configures a Loop created by NewLoop.
type Option func(*options)

// WithBackend selects a backend by name instead of the platform default.
// An empty name keeps the default.
func WithBackend(b Backend) Option {
	return func(o *options) {
		if b != "" {
			o.backend = b
		}
	}
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithClock replaces time.Now for timer expiry computation.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFatal replaces the handler for unrecoverable poll errors. The default
// terminates the process with exit status 1; a broken kernel handle cannot
// be polled again.
func WithFatal(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.fatal = fn
		}
	}
}

func resolveOptions(opts []Option) *options {
	o := &options{
		backend:  defaultBackend,
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
		fatal:    func(error) { os.Exit(1) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

type nopObserver struct{}

func (nopObserver) Polled(Backend, int, time.Duration) {}
func (nopObserver) Dispatched(Flags)                   {}
func (nopObserver) Grown(int, int)                     {}
