// Package logging adapts log/slog to the mono logger interface, for server
// components built outside a mono application such as in tests.
package logging

import (
	"log/slog"

	"github.com/go-monolith/mono/pkg/types"
)

type slogLogger struct {
	*slog.Logger
}

// FromSlog wraps l as a types.Logger.
func FromSlog(l *slog.Logger) types.Logger {
	return slogLogger{l}
}

// Default wraps slog.Default.
func Default() types.Logger {
	return FromSlog(slog.Default())
}

// OrDefault returns l, or Default when l is nil.
func OrDefault(l types.Logger) types.Logger {
	if l == nil {
		return Default()
	}
	return l
}

func (l slogLogger) With(args ...any) types.Logger {
	return slogLogger{l.Logger.With(args...)}
}

func (l slogLogger) WithModule(module string) types.Logger {
	return l.With("module", module)
}

func (l slogLogger) WithError(err error) types.Logger {
	return l.With("error", err)
}
