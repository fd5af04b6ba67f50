// Package tick advances the world state of players. A player tick runs inside
// one store transaction: resource accrual, construction, research, training
// and army arrivals either all commit or all roll back.
package tick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/warhost/simcore/internal/storage"
	"github.com/warhost/simcore/pkg/core"
	"golang.org/x/sync/errgroup"
)

// ErrTickFailed wraps every error returned by ProcessPlayerTick.
var ErrTickFailed = errors.New("tick failed")

const (
	DefaultTickInterval     = 60 * time.Second
	DefaultDebounce         = 5 * time.Second
	DefaultProtectionWindow = 8 * time.Hour
)

// Clock is sampled once at the start of every player tick.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

//go:generate mockgen -destination=mock_reports_test.go -package=tick . ReportSink

// ReportSink receives battle reports after their tick has committed.
type ReportSink interface {
	Write(report core.BattleReport) error
}

// Metrics receives per-tick measurements after commit.
type Metrics interface {
	RecordTick(playerID uint, duration time.Duration, stats Stats)
	RecordBattle(report core.BattleReport)
}

// Stats counts what a committed player tick did.
type Stats struct {
	Arrivals    int
	Battles     int
	Completions int
	Events      int
}

// Config holds the engine timings.
type Config struct {
	TickInterval     time.Duration
	Debounce         time.Duration
	ProtectionWindow time.Duration
	Workers          int
}

// DefaultConfig returns the production timings with sequential world ticks.
func DefaultConfig() Config {
	return Config{
		TickInterval:     DefaultTickInterval,
		Debounce:         DefaultDebounce,
		ProtectionWindow: DefaultProtectionWindow,
		Workers:          1,
	}
}

// Dependencies holds the collaborators of the engine. Only Store is required.
type Dependencies struct {
	Store   storage.Store
	Clock   Clock
	Logger  *slog.Logger
	Rand    func() float64
	Reports ReportSink
	Metrics Metrics
	Config  Config
}

// Engine runs player and world ticks.
type Engine struct {
	deps    Dependencies
	log     *slog.Logger
	metrics *engineMetrics
}

// New creates an Engine, filling unset dependencies with defaults.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("tick: store is required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}

	def := DefaultConfig()
	if deps.Config.TickInterval <= 0 {
		deps.Config.TickInterval = def.TickInterval
	}
	if deps.Config.Debounce <= 0 {
		deps.Config.Debounce = def.Debounce
	}
	if deps.Config.ProtectionWindow <= 0 {
		deps.Config.ProtectionWindow = def.ProtectionWindow
	}
	if deps.Config.Workers <= 0 {
		deps.Config.Workers = def.Workers
	}

	m, err := newEngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create tick metrics: %w", err)
	}

	return &Engine{
		deps:    deps,
		log:     deps.Logger.With("component", "tick"),
		metrics: m,
	}, nil
}

// ProcessPlayerTick advances one player to the current time. A player without
// a resource record, or one ticked less than Debounce ago, is left untouched
// and nil is returned.
func (e *Engine) ProcessPlayerTick(ctx context.Context, playerID uint) error {
	start := time.Now()
	now := e.deps.Clock.Now()

	var pt *playerTick
	err := e.deps.Store.InTx(ctx, func(tx storage.Tx) error {
		pt = newPlayerTick(e, tx, playerID, now)
		return pt.run()
	})
	if err != nil {
		e.metrics.failed.Add(ctx, 1)
		return fmt.Errorf("%w: player %d: %w", ErrTickFailed, playerID, err)
	}
	if pt.skipped {
		e.metrics.skipped.Add(ctx, 1)
		return nil
	}

	e.metrics.processed.Add(ctx, 1)
	e.publish(ctx, pt)
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordTick(playerID, time.Since(start), pt.stats)
	}
	return nil
}

// publish hands the committed battle reports to the sink and metrics.
func (e *Engine) publish(ctx context.Context, pt *playerTick) {
	for _, r := range pt.reports {
		e.metrics.recordBattle(ctx, r)
		if e.deps.Metrics != nil {
			e.deps.Metrics.RecordBattle(r)
		}
		if e.deps.Reports == nil {
			continue
		}
		if err := e.deps.Reports.Write(r); err != nil {
			e.log.WarnContext(ctx, "Failed to write battle report", "report_id", r.ID, "error", err)
		}
	}
}

// ProcessWorldTick ticks every player. A failing player is logged and
// skipped; only a failure to list players or a cancelled context is returned.
func (e *Engine) ProcessWorldTick(ctx context.Context) error {
	start := time.Now()
	ids, err := e.deps.Store.ListPlayerIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}

	var failed atomic.Int64
	run := func(id uint) {
		if err := e.ProcessPlayerTick(ctx, id); err != nil {
			failed.Add(1)
			e.log.ErrorContext(ctx, "Player tick failed", "player_id", id, "error", err)
		}
	}

	if e.deps.Config.Workers <= 1 {
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			run(id)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.deps.Config.Workers)
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				run(id)
				return nil
			})
		}
		_ = g.Wait()
	}

	e.log.DebugContext(ctx, "World tick complete",
		"players", len(ids),
		"failed", failed.Load(),
		"duration", time.Since(start))
	return ctx.Err()
}
