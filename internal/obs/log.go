package obs

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.RWMutex
	logger   = newLogger(os.Stdout)
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	return &l
}

// SetOutput redirects the shared logger and returns a func restoring the previous one.
func SetOutput(w io.Writer) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w)
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// SetDebug toggles debug level output.
func SetDebug(on bool) {
	if on {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
