package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler is a slog.Handler writing through a zerolog.Logger.
type zerologHandler struct {
	logger *zerolog.Logger
	attrs  []groupedAttr
	groups []string
}

// groupedAttr remembers the groups that were open when the attr was added.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

func newZerologHandler(l *zerolog.Logger) *zerologHandler {
	return &zerologHandler{logger: l}
}

func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toZerologLevel(level) >= h.logger.GetLevel()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	e := h.logger.WithLevel(toZerologLevel(r.Level))
	if e == nil {
		return nil
	}
	for _, ga := range h.attrs {
		e = appendAttr(e, ga.groups, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		e = appendAttr(e, h.groups, a)
		return true
	})
	e.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]groupedAttr(nil), h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return &nh
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

func appendAttr(e *zerolog.Event, groups []string, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return e
	}
	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return e.Str(key, a.Value.String())
	case slog.KindInt64:
		return e.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return e.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return e.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return e.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return e.Dur(key, a.Value.Duration())
	case slog.KindTime:
		return e.Time(key, a.Value.Time())
	case slog.KindGroup:
		sub := groups
		if a.Key != "" {
			sub = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			e = appendAttr(e, sub, ga)
		}
		return e
	}
	if err, ok := a.Value.Any().(error); ok {
		return e.AnErr(key, err)
	}
	return e.Interface(key, a.Value.Any())
}
