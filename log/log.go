// Package log provides the organizer's logging backend: a btclog.Backend
// fanned out to a color-aware terminal writer and an optional rotating log
// file.
package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/mattn/go-colorable"
)

// writer fans log bytes out to a color-capable terminal stream and,
// once InitLogRotator has been called, to a rotating on-disk file.
type writer struct {
	rotator        *rotator.Rotator
	colorableWrite io.Writer
}

func (w *writer) Write(p []byte) (int, error) {
	if w.rotator != nil {
		w.rotator.Write(p)
	}
	if w.colorableWrite != nil {
		return w.colorableWrite.Write(p)
	}
	return os.Stderr.Write(p)
}

var (
	logWriter = &writer{colorableWrite: colorable.NewColorableStderr()}
	backend   = btclog.NewBackend(logWriter)

	// Logger is the organizer-wide subsystem logger. Packages that want a
	// differently-tagged logger call NewSubsystem instead.
	Logger = backend.Logger("ORGR")
)

func init() {
	Logger.SetLevel(btclog.LevelInfo)
}

// NewSubsystem returns a tagged logger sharing the package's backend, the
// same pattern btcd/lnd use for per-package loggers (e.g. "FORK", "CHAN",
// "POOL").
func NewSubsystem(tag string) btclog.Logger {
	l := backend.Logger(tag)
	l.SetLevel(Logger.Level())
	subsystemsMu.Lock()
	subsystems = append(subsystems, l)
	subsystemsMu.Unlock()
	return l
}

var (
	subsystemsMu sync.Mutex
	subsystems   []btclog.Logger
)

// SetLevel sets the level of Logger and of every logger returned by
// NewSubsystem.
func SetLevel(level btclog.Level) {
	Logger.SetLevel(level)
	subsystemsMu.Lock()
	for _, l := range subsystems {
		l.SetLevel(level)
	}
	subsystemsMu.Unlock()
}

// InitLogRotator initializes on-disk log rotation, writing to logFile and
// rolling siblings in the same directory. Must be called before any log
// output that needs to be durable.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logWriter.rotator = r
	return nil
}

// Close releases the underlying rotator, if any.
func Close() {
	if logWriter.rotator != nil {
		logWriter.rotator.Close()
	}
}
