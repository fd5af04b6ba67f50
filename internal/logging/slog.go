package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Indirections for tests that capture stdout.
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager owns the process slog.Logger. Its level can be changed after
// Setup without rebuilding the handler chain.
type SlogManager struct {
	logger *slog.Logger
	level  slog.LevelVar
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a level name such as "debug" or "warn+2" to a
// slog.Level. Unknown names report false and map to info.
func ParseLevel(level string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}

func rfc3339UTC(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup initializes the logging system. Records go to file when one is given
// and to stdout otherwise, plus every extra handler. provider, if set, adds
// dynamic attributes to every record; attributes stored with WithAttrs on a
// record's context are always added. Extra handlers keep their own levels.
func (m *SlogManager) Setup(file io.Writer, level string, provider ContextProvider, extra ...slog.Handler) {
	m.SetLevel(level)

	out := file
	if out == nil {
		out = osStdout
	}
	primary := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:       &m.level,
		ReplaceAttr: rfc3339UTC,
	})

	handlers := append([]slog.Handler{primary}, extra...)
	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), provider))
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the primary handler's level. It is safe to call while
// other goroutines log.
func (m *SlogManager) SetLevel(level string) {
	l, ok := ParseLevel(level)
	prev := m.level.Level()
	m.level.Set(l)
	if m.logger == nil {
		return
	}
	if !ok {
		m.logger.Warn("Unknown log level, using info", "level", level)
	}
	if l != prev {
		m.logger.Info("Log level changed", "from", prev.String(), "to", l.String())
	}
}

// Level returns the primary handler's current level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}
