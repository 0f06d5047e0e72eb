// Package logger configures the process-wide zerolog logger: level
// (debug or info) and output format (pretty console vs. structured JSON)
// (spec.md's ambient logging concerns, carried the way the teacher's own
// binaries do it).
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls how the root logger is built.
type Config struct {
	// Verbose enables debug-level logging; otherwise info.
	Verbose bool
	// Pretty renders human-readable console output instead of JSON lines,
	// the form you want attached to a terminal rather than piped.
	Pretty bool
	Output io.Writer
}

// New builds a zerolog.Logger per cfg and also sets it as the package
// default so libraries reaching for zerolog.Ctx/log.Logger pick it up.
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(level)
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	return logger
}
