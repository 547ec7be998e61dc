package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"GeoTool/internal/ports"
)

// PressureRunner is the part of PressureTester the monitor drives.
type PressureRunner interface {
	Run(ctx context.Context, req PressureRequest) (PressureRun, error)
}

// Monitor wires a recurring driver with the pressure test.
type Monitor struct {
	driver  ports.Scheduler
	tester  PressureRunner
	request PressureRequest
	logger  *slog.Logger

	mu   sync.Mutex
	runs []PressureRun
}

// NewMonitor returns a helper to start/stop the recurring pressure test.
func NewMonitor(driver ports.Scheduler, tester PressureRunner, req PressureRequest, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{driver: driver, tester: tester, request: req, logger: logger}
}

// Start registers the pressure test with the driver. Failed runs are logged
// and the next tick runs again.
func (m *Monitor) Start(ctx context.Context) error {
	if m.driver == nil || m.tester == nil {
		return nil
	}

	job := func(trigger time.Time) {
		run, err := m.tester.Run(ctx, m.request)
		if err != nil {
			m.logger.Error("scheduled pressure test failed", "trigger", trigger, "error", err)
			return
		}
		m.mu.Lock()
		m.runs = append(m.runs, run)
		m.mu.Unlock()
		m.logger.Info("scheduled pressure test finished", "trigger", trigger, "avg_score", run.Result.Overall.AvgScore, "trend", run.Result.Trend)
	}

	return m.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.driver == nil {
		return nil
	}

	return m.driver.Stop(ctx)
}

// Runs returns the successful runs so far.
func (m *Monitor) Runs() []PressureRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PressureRun(nil), m.runs...)
}
