// Package cli carries what the command-line tools share: exit codes,
// error-to-exit-code mapping and logger construction.
package cli

import (
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openwatt/iotalog/internal/api"
	"github.com/openwatt/iotalog/internal/archive"
	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/series"
)

// Exit codes shared by all tools. The flag package exits with 2 on its
// own for unparsable flags, which matches ExitUsage.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitNoDataDir   = 3
	ExitUnreachable = 4
	ExitBadChannel  = 5
	ExitOutOfRange  = 6
)

// ErrDayOutOfRange marks a requested day outside the device's logged
// range.
var ErrDayOutOfRange = errors.New("requested day outside the device's logged range")

// ErrChannelRange marks a channel index outside the device's channel
// list.
var ErrChannelRange = errors.New("channel index out of range")

// ExitCode maps an error to the tool exit code for its class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, archive.ErrNoDataDir):
		return ExitNoDataDir
	case errors.Is(err, api.ErrUnreachable):
		return ExitUnreachable
	case errors.Is(err, ErrChannelRange),
		errors.Is(err, series.ErrNoChannel),
		errors.Is(err, series.ErrNoUnit):
		return ExitBadChannel
	case errors.Is(err, ErrDayOutOfRange):
		return ExitOutOfRange
	default:
		return ExitError
	}
}

// NewLogger builds the process logger from configuration and stamps
// every entry with a per-invocation run id. Log output goes to stderr
// so the tools' own output (tables, progress dots) stays clean on
// stdout.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.AddHook(&runIDHook{id: uuid.New().String()})
	return logger
}

// runIDHook tags every entry with the invocation's run id.
type runIDHook struct {
	id string
}

func (h *runIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *runIDHook) Fire(e *logrus.Entry) error {
	e.Data["run_id"] = h.id
	return nil
}
