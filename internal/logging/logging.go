// Package logging routes the standard logger to stderr and, optionally, a
// rotating log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/KaraAliOsman/Trabajo-3/internal/config"
)

// Setup points the standard logger at stderr plus cfg.File when set and
// returns the writer so other loggers (gin) can share it. The returned
// closer flushes and closes the log file.
func Setup(cfg config.LogConfig) (io.Writer, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotating)
		closer = rotating
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return out, closer
}

// New returns a logger writing to out with the standard flags.
func New(out io.Writer, prefix string) *log.Logger {
	return log.New(out, prefix, log.LstdFlags|log.Lmicroseconds)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
