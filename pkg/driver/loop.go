// Package driver runs the mission: every tick it pulls a snapshot from the
// perception service, steps the state machine and lets the machine drive the
// actuators.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/perception"
)

// ErrExitSignal is returned by Run when the controller sent its exit byte.
var ErrExitSignal = errors.New("driver: controller exit signal")

// Stepper is the part of mission.Machine the loop needs.
type Stepper interface {
	Needs() perception.Request
	Step(ctx context.Context, snap perception.Snapshot) (mission.Result, error)
}

// Config controls the loop.
type Config struct {
	TickInterval     time.Duration // minimum time between ticks
	MaxTicks         uint64        // stop after this many ticks, 0 runs until stopped
	ErrorLogInterval time.Duration // at most one error log per interval
	HeartbeatEvery   uint64        // ticks between heartbeat logs
}

// DefaultConfig returns the loop settings used on the course.
func DefaultConfig() Config {
	return Config{
		TickInterval:     50 * time.Millisecond,
		ErrorLogInterval: 5 * time.Second,
		HeartbeatEvery:   200,
	}
}

// Stats counts what the loop has done.
type Stats struct {
	RunID      string `json:"run_id"`
	Ticks      uint64 `json:"ticks"`
	Commands   uint64 `json:"commands"`
	Gaps       uint64 `json:"gaps"`
	StepErrors uint64 `json:"step_errors"`
	PullErrors uint64 `json:"pull_errors"`
	Running    bool   `json:"running"`
}

// Loop drives a Stepper from a perception.Service.
type Loop struct {
	machine Stepper
	svc     perception.Service
	cfg     Config
	logger  *slog.Logger
	runID   string

	exit    <-chan struct{}
	onTick  []func(mission.Result)
	encMu   sync.Mutex
	encoder *json.Encoder

	running    atomic.Bool
	ticks      atomic.Uint64
	commands   atomic.Uint64
	gaps       atomic.Uint64
	stepErrors atomic.Uint64
	pullErrors atomic.Uint64

	lastErrorLog time.Time
}

// New creates a loop with a fresh run ID.
func New(machine Stepper, svc perception.Service, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Loop{
		machine: machine,
		svc:     svc,
		cfg:     cfg,
		runID:   runID,
		logger:  logger.With("component", "driver", "run_id", runID),
	}
}

// RunID identifies this run in logs, recordings and notifications.
func (l *Loop) RunID() string {
	return l.runID
}

// StopOn makes Run return ErrExitSignal once done is closed. Pass the motion
// protocol's Done channel so the loop ends with the controller.
func (l *Loop) StopOn(done <-chan struct{}) {
	l.exit = done
}

// Record writes every snapshot the machine sees to w as JSON lines. The
// output can be played back with perception.LoadReplay.
func (l *Loop) Record(w io.Writer) {
	l.encMu.Lock()
	defer l.encMu.Unlock()
	if w == nil {
		l.encoder = nil
		return
	}
	l.encoder = json.NewEncoder(w)
}

// OnTick registers fn to be called after every step. Must be called before Run.
func (l *Loop) OnTick(fn func(mission.Result)) {
	l.onTick = append(l.onTick, fn)
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		RunID:      l.runID,
		Ticks:      l.ticks.Load(),
		Commands:   l.commands.Load(),
		Gaps:       l.gaps.Load(),
		StepErrors: l.stepErrors.Load(),
		PullErrors: l.pullErrors.Load(),
		Running:    l.running.Load(),
	}
}

// Run ticks until ctx is cancelled, the exit channel closes or MaxTicks is
// reached. Tick errors are logged and counted, never fatal.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("driver: already running")
	}
	defer l.running.Store(false)

	interval := l.cfg.TickInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("mission loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("mission loop stopped", "ticks", l.ticks.Load())
			return nil
		case <-l.exit:
			l.logger.Info("controller exit signal", "ticks", l.ticks.Load())
			return ErrExitSignal
		case <-ticker.C:
		}

		l.tick(ctx)

		if l.cfg.MaxTicks > 0 && l.ticks.Load() >= l.cfg.MaxTicks {
			l.logger.Info("tick limit reached", "ticks", l.cfg.MaxTicks)
			return nil
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	n := l.ticks.Add(1)

	req := l.machine.Needs()
	snap, err := l.svc.Pull(ctx, req)
	if err == nil {
		snap, err = perception.Enrich(ctx, l.svc, req, snap)
	}
	if err != nil {
		l.pullErrors.Add(1)
		l.logError("perception pull failed", err)
		return
	}

	if err := l.record(snap); err != nil {
		l.logError("recording failed", err)
	}

	res, err := l.machine.Step(ctx, snap)
	l.commands.Add(uint64(len(res.Commands)))
	if res.Gap != nil {
		l.gaps.Add(1)
	}
	if err != nil {
		l.stepErrors.Add(1)
		l.logError("step failed", err)
	}

	for _, fn := range l.onTick {
		fn(res)
	}

	if l.cfg.HeartbeatEvery > 0 && n%l.cfg.HeartbeatEvery == 0 {
		s := l.Stats()
		l.logger.Info("heartbeat", "ticks", s.Ticks, "mode", res.To, "commands", s.Commands,
			"gaps", s.Gaps, "step_errors", s.StepErrors, "pull_errors", s.PullErrors)
	}
}

func (l *Loop) record(snap perception.Snapshot) error {
	l.encMu.Lock()
	defer l.encMu.Unlock()
	if l.encoder == nil {
		return nil
	}
	if err := l.encoder.Encode(snap); err != nil {
		return fmt.Errorf("driver: encode snapshot: %w", err)
	}
	return nil
}

// logError logs at most once per ErrorLogInterval so a dead camera does not
// flood the log at tick rate.
func (l *Loop) logError(msg string, err error) {
	if !l.lastErrorLog.IsZero() && time.Since(l.lastErrorLog) < l.cfg.ErrorLogInterval {
		l.logger.Debug(msg, "error", err)
		return
	}
	l.lastErrorLog = time.Now()
	l.logger.Warn(msg, "error", err)
}
