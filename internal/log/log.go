// Package log holds the engine's zerolog loggers. Each subsystem logs
// through its component logger; per-tenant work adds a tenant field.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers derive from it and are
// rebuilt whenever it is replaced.
var Logger zerolog.Logger

var (
	Anchor    zerolog.Logger
	Chain     zerolog.Logger
	Reconcile zerolog.Logger
	Storage   zerolog.Logger
)

// levels maps config names to zerolog levels.
var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
}

func init() {
	setRoot(console(os.Stdout), "info")
}

// Init points the engine's logs at stdout, either colored or JSON. A
// non-empty file additionally receives every line as JSON.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = console(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	setRoot(out, level)
	return nil
}

// SetOutput sends JSON lines to w. The CLI uses it to keep stdout clean for
// command output, tests to capture lines.
func SetOutput(w io.Writer, level string) {
	setRoot(w, level)
}

// ValidLevel reports whether level is a known level name.
func ValidLevel(level string) bool {
	_, ok := levels[level]
	return ok
}

// WithComponent derives a logger tagged with a component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithTenant tags l with a tenant name.
func WithTenant(l zerolog.Logger, tenant string) zerolog.Logger {
	return l.With().Str("tenant", tenant).Logger()
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
}

func setRoot(w io.Writer, level string) {
	lvl, ok := levels[level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()

	Anchor = WithComponent("anchor")
	Chain = WithComponent("chain")
	Reconcile = WithComponent("reconcile")
	Storage = WithComponent("storage")
}
