package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	// Out replaces stdout as the primary destination.
	Out        io.Writer
	// File, when set, receives a JSON copy of every entry with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger constructs a zerolog.Logger with sane defaults for the service.
// Development gets a console writer at debug level; other environments log
// JSON at info level.
func NewLogger(appEnv string, opts ...LogOptions) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stdout
	if len(opts) > 0 && opts[0].Out != nil {
		out = opts[0].Out
	}
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if len(opts) > 0 && opts[0].File != "" {
		out = zerolog.MultiLevelWriter(out, rotatingFile(opts[0]))
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func rotatingFile(opts LogOptions) io.Writer {
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	if lj.MaxSize == 0 {
		lj.MaxSize = 50
	}
	if lj.MaxBackups == 0 {
		lj.MaxBackups = 5
	}
	if lj.MaxAge == 0 {
		lj.MaxAge = 14
	}
	return lj
}

// Logger aliases zerolog.Logger for packages that only pass it along.
type Logger = zerolog.Logger
