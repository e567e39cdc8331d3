package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wyydra/yacall/internal/config"
)

// Setup configures the global zerolog logger: console or JSON on stdout, and
// error-level records copied to a rotated file when ErrorFile is set.
func Setup(cfg config.Log) (zerolog.Logger, io.Closer) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.Log, out io.Writer) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var stdout io.Writer = out
	if cfg.Console {
		stdout = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{stdout}
	var closer io.Closer = nopCloser{}
	if cfg.ErrorFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.ErrorFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: file},
			Level:  zerolog.ErrorLevel,
		})
		closer = file
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
	log.Logger = l
	return l, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
