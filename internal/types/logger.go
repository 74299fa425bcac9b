package types

import "log/slog"

// SlogAdapter satisfies Logger on top of *slog.Logger.
type SlogAdapter struct {
	L *slog.Logger
}

func NewSlogAdapter(l *slog.Logger) SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return SlogAdapter{L: l}
}

func (a SlogAdapter) Info(msg string, args ...any)  { a.L.Info(msg, args...) }
func (a SlogAdapter) Error(msg string, args ...any) { a.L.Error(msg, args...) }
func (a SlogAdapter) Warn(msg string, args ...any)  { a.L.Warn(msg, args...) }
func (a SlogAdapter) With(args ...any) Logger       { return SlogAdapter{L: a.L.With(args...)} }
