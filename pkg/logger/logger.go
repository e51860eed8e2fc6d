package logx

import (
	"io"
	"os"

	"github.com/pdfchat-core/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment

	// FilePath enables rotated file output in addition to the console
	// writer when non-empty.
	FilePath string
	// MaxSizeMB is the rotation threshold per log file (default 10).
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain (default 7).
	MaxBackups int
}

func safe(opts ...LoggerOpts) *LoggerOpts {
	if len(opts) == 0 {
		return DefaultLoggerOpts
	}
	return &opts[0]
}

// Init configures the global logger. Development environments get a
// human-readable console writer at debug level; production logs JSON at
// info level. When FilePath is set, output is duplicated to a
// size-rotated file.
func Init(opts ...LoggerOpts) {
	o := safe(opts...)

	var console io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if !o.Environment.IsProduction() {
		console = zerolog.NewConsoleWriter()
		level = zerolog.DebugLevel
	}

	writer := console
	if o.FilePath != "" {
		maxSize := o.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := o.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 7
		}
		rotator := &lumberjack.Logger{
			Filename:   o.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(console, rotator)
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Caller().Logger().Level(level)
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
