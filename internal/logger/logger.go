package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	output = &switchWriter{w: os.Stdout}

	// Global logger instance. Component loggers derive from it at package init, so it
	// always writes through output and Initialize only swaps the destination.
	Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
)

// switchWriter forwards to a destination that can be replaced after loggers exist.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Initialize sets up the global logger. format "json" writes structured lines for log
// shippers; anything else uses the human-readable console writer.
func Initialize(logLevel, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}
	if strings.EqualFold(format, "json") {
		output = os.Stdout
	}

	SetOutput(output)
	zerolog.SetGlobalLevel(parseLevel(logLevel))
}

// SetOutput points the global logger and every component logger at w.
func SetOutput(w io.Writer) {
	output.set(w)

	// Replace standard log with zerolog
	log.Logger = Logger
}

func parseLevel(logLevel string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
