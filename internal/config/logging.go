package config

import (
	"io"
	"log/slog"
	"slices"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the logger described by lc. Console output goes to
// console; file output rotates through lumberjack. The returned closer
// releases the log file and is never nil.
func NewLogger(lc LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if len(lc.Writer) == 0 || slices.Contains(lc.Writer, WriterConsole) {
		writers = append(writers, console)
	}
	if slices.Contains(lc.Writer, WriterFile) {
		rotating := &lumberjack.Logger{
			Filename:   expandHome(lc.File),
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
		writers = append(writers, rotating)
		closer = rotating
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
