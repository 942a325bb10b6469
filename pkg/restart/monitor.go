package restart

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Signaler records that a restart is needed.
type Signaler interface {
	Signal()
}

// Monitor collapses restart signals and, on every tick, touches the trigger file
// when at least one signal arrived since the previous tick.
type Monitor struct {
	sync.Mutex

	triggerFile  string
	pollInterval time.Duration
	logger       hclog.Logger

	shouldRestart bool
	triggered     int
}

// NewMonitor returns a new monitor.
func NewMonitor(triggerFile string, pollInterval time.Duration, logger hclog.Logger) *Monitor {
	return &Monitor{
		triggerFile:  triggerFile,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Signal requests a restart.
func (m *Monitor) Signal() {
	m.Lock()
	defer m.Unlock()
	m.shouldRestart = true
}

// Pending returns true if a restart was signalled and not yet handled.
func (m *Monitor) Pending() bool {
	m.Lock()
	defer m.Unlock()
	return m.shouldRestart
}

// Triggered returns how many times the trigger file was touched.
func (m *Monitor) Triggered() int {
	m.Lock()
	defer m.Unlock()
	return m.triggered
}

// Run handles restart signals until the context is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick handles a pending restart signal, if any.
func (m *Monitor) Tick() {
	m.Lock()
	defer m.Unlock()
	if !m.shouldRestart {
		return
	}
	m.logger.Info("Restart signal received")
	m.shouldRestart = false
	if err := Touch(m.triggerFile); err != nil {
		m.logger.Error("Failed touching restart trigger file", "trigger-file", m.triggerFile, "reason", err)
		return
	}
	m.triggered = m.triggered + 1
	m.logger.Debug("Restart trigger file touched", "trigger-file", m.triggerFile)
}

// Touch creates the file, if it does not exist, and updates its modification time.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed opening '%s'", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed closing '%s'", path)
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return errors.Wrapf(err, "failed updating times of '%s'", path)
	}
	return nil
}
