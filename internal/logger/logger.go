package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog for application logging.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
	stream  *StreamWriter
}

// Config holds logger configuration.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // directory for log files
	MaxSizeMB  int    // max size in MB before rotation (default: 10)
	MaxBackups int    // max number of old log files to keep (default: 5)
	MaxAgeDays int    // max age in days to keep old files (default: 30)
	Compress   bool   // compress rotated files

	// EnableStreaming buffers recent entries and forwards them to a
	// WebSocket hub once one is attached via SetBroadcastHub.
	EnableStreaming bool
	BufferSize      int
}

// New creates a new logger instance.
func New(cfg Config) *Logger {
	var consoleOutput io.Writer

	if cfg.Format == "json" {
		consoleOutput = os.Stdout
	} else {
		consoleOutput = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	level := parseLevel(cfg.Level)

	writers := []io.Writer{consoleOutput}
	var rotator *lumberjack.Logger

	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0755); err == nil {
			maxSize := cfg.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 10
			}
			maxBackups := cfg.MaxBackups
			if maxBackups <= 0 {
				maxBackups = 5
			}
			maxAge := cfg.MaxAgeDays
			if maxAge <= 0 {
				maxAge = 30
			}

			rotator = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Path, "plexbot.log"),
				MaxSize:    maxSize,
				MaxBackups: maxBackups,
				MaxAge:     maxAge,
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			writers = append(writers, rotator)
		}
	}

	var stream *StreamWriter
	if cfg.EnableStreaming {
		stream = NewStreamWriter(cfg.BufferSize)
		writers = append(writers, stream)
	}

	output := writers[0]
	if len(writers) > 1 {
		output = io.MultiWriter(writers...)
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: logger, rotator: rotator, stream: stream}
}

// SetBroadcastHub attaches a hub that receives streamed log entries.
func (l *Logger) SetBroadcastHub(hub Broadcaster) {
	if l.stream != nil {
		l.stream.SetHub(hub)
	}
}

// LogFilePath returns the active log file, or empty when file logging
// is disabled.
func (l *Logger) LogFilePath() string {
	if l.rotator == nil {
		return ""
	}
	return l.rotator.Filename
}

// RecentLogs returns buffered log entries for the dashboard.
func (l *Logger) RecentLogs() []Entry {
	if l.stream == nil {
		return nil
	}
	return l.stream.Recent()
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// parseLevel converts string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a new logger with component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:  l.Logger.With().Str("component", component).Logger(),
		rotator: l.rotator,
		stream:  l.stream,
	}
}
