package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

var (
	mu sync.RWMutex
	// basic global logger, JSON to stdout until Setup runs.
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Setup replaces the process logger. Console output is meant for local
// development; anything else logs JSON.
func Setup(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if format == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(out)
	}
	l = l.Level(lvl).With().Timestamp().Logger()

	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// Logger returns a copy of the process logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	if reqID == "" {
		return Logger()
	}
	l := Logger().With().Str("request_id", reqID).Logger()
	return &l
}
