// Package main runs the world tick scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warhost/simcore/internal/archive"
	"github.com/warhost/simcore/internal/config"
	"github.com/warhost/simcore/internal/database"
	"github.com/warhost/simcore/internal/dispatcher"
	"github.com/warhost/simcore/internal/influx"
	"github.com/warhost/simcore/internal/logging"
	gormstorage "github.com/warhost/simcore/internal/storage/gorm"
	"github.com/warhost/simcore/internal/tick"
)

// BuildDate can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
	AppName   = "simcore"
)

type options struct {
	configDir string
	once      bool
	playerIDs []uint
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.configDir, "config", ".", "directory containing "+config.FileName)
	fs.BoolVar(&opts.once, "once", false, "run a single world tick and exit")
	fs.Func("player", "tick only these players (comma separated, repeatable) and exit", func(v string) error {
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 0)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid player id %q", part)
			}
			opts.playerIDs = append(opts.playerIDs, uint(id))
		}
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse flags: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfgErr := config.Load(opts.configDir)
	if cfgErr != nil {
		// defaults and environment still apply
		fmt.Fprintf(os.Stderr, "%v, using defaults\n", cfgErr)
	}

	logsDir := config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logsDir, AppName, time.Now())
	if err != nil {
		return err
	}
	defer logFile.Close()

	level := config.GetString("logLevel")
	slogMgr := logging.NewSlogManager()
	// the file gets everything at logLevel, the console only warnings and up
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})
	slogMgr.Setup(logFile, level, func() []slog.Attr {
		return []slog.Attr{slog.String("version", Version)}
	}, console)
	log := slogMgr.Logger()
	log.Info("Starting up", "version", Version, "buildDate", BuildDate)
	if cfgErr == nil {
		config.OnChange(func() {
			slogMgr.SetLevel(config.GetString("logLevel"))
		})
	}

	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zlog := zerolog.New(zerolog.MultiLevelWriter(
		logFile,
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
	)).Level(zlevel).With().Timestamp().Str("app", AppName).Logger()

	dbMgr := database.NewManager(zlog.With().Str("component", "database").Logger())
	if err := dbMgr.Connect(); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer dbMgr.Close()
	if err := dbMgr.Setup(); err != nil {
		return fmt.Errorf("setting up database: %w", err)
	}

	deps := tick.Dependencies{
		Store:  gormstorage.New(dbMgr.DB),
		Logger: log,
	}

	archiveCfg := config.GetArchiveConfig()
	if archiveCfg.Enabled {
		w, err := archive.New(archiveCfg.Dir, archiveCfg.Rotate, log.With("component", "archive"))
		if err != nil {
			return err
		}
		w.Start()
		defer func() {
			if err := w.Close(); err != nil {
				log.Error("Failed to close report archive", "error", err)
			}
		}()
		deps.Reports = w
	}

	influxCfg := config.GetInfluxConfig()
	recorder := influx.NewRecorder(
		zlog.With().Str("component", "influx").Logger(),
		filepath.Join(logsDir, "metrics_backup.lp.gz"),
	)
	switch err := recorder.Connect(ctx, influxCfg); {
	case errors.Is(err, influx.ErrDisabled):
		log.Info("InfluxDB metrics disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, metrics disabled", "error", err)
		_ = recorder.Close()
	default:
		deps.Metrics = recorder
		defer recorder.Close()
	}

	tickCfg := config.GetTickConfig()
	deps.Config = tick.Config{
		TickInterval:     tickCfg.Interval,
		Debounce:         tickCfg.Debounce,
		ProtectionWindow: tickCfg.ProtectionWindow,
		Workers:          tickCfg.Workers,
	}
	engine, err := tick.New(deps)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer d.Close()
	failures := &playerFailures{}
	registerHandlers(d, engine, tickCfg.PlayerQueue, failures)

	switch {
	case len(opts.playerIDs) > 0:
		return tickPlayers(ctx, d, opts.playerIDs, failures)
	case opts.once:
		return d.Dispatch(ctx, dispatcher.Trigger{Name: dispatcher.WorldTick})
	}

	return schedule(ctx, d, tickCfg.Interval, log)
}

// tickEngine is the part of tick.Engine the dispatcher handlers call.
type tickEngine interface {
	ProcessWorldTick(ctx context.Context) error
	ProcessPlayerTick(ctx context.Context, playerID uint) error
}

// playerFailures collects errors of queued player ticks, which run on the
// dispatcher's worker instead of the dispatching goroutine.
type playerFailures struct {
	mu   sync.Mutex
	errs []error
}

func (f *playerFailures) add(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *playerFailures) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

func registerHandlers(d *dispatcher.Dispatcher, engine tickEngine, queueSize int, failures *playerFailures) {
	d.Register(dispatcher.WorldTick, func(ctx context.Context, t dispatcher.Trigger) error {
		return engine.ProcessWorldTick(ctx)
	}, dispatcher.Coalesced(), dispatcher.Logged())

	if queueSize <= 0 {
		queueSize = 1
	}
	d.Register(dispatcher.PlayerTick, func(ctx context.Context, t dispatcher.Trigger) error {
		err := engine.ProcessPlayerTick(ctx, t.PlayerID)
		if err != nil {
			failures.add(err)
		}
		return err
	}, dispatcher.Buffered(queueSize), dispatcher.Logged())
}

// tickPlayers queues one player tick per id, waits for the queue to drain and
// returns every failure. Ids not yet queued when ctx is cancelled are skipped;
// queued ones still run.
func tickPlayers(ctx context.Context, d *dispatcher.Dispatcher, ids []uint, failures *playerFailures) error {
	var errs []error
	for _, id := range ids {
		err := d.Dispatch(ctx, dispatcher.Trigger{Name: dispatcher.PlayerTick, PlayerID: id})
		if err != nil {
			errs = append(errs, fmt.Errorf("queueing player %d: %w", id, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	d.Close()
	return errors.Join(append(errs, failures.err())...)
}

// schedule fires a world tick every interval until ctx is cancelled. Each
// firing runs on its own goroutine; one that overlaps a running tick is
// dropped by the dispatcher.
func schedule(ctx context.Context, d *dispatcher.Dispatcher, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		interval = tick.DefaultTickInterval
	}
	log.Info("Scheduler started", "interval", interval)

	var wg sync.WaitGroup
	var seq int64
	fire := func(n int64) {
		defer wg.Done()
		tctx := logging.WithAttrs(ctx, slog.Int64("world_tick", n))
		err := d.Dispatch(tctx, dispatcher.Trigger{Name: dispatcher.WorldTick})
		switch {
		case errors.Is(err, dispatcher.ErrCoalesced):
			log.Warn("World tick still running, skipping", "world_tick", n)
		case err != nil && !errors.Is(err, context.Canceled):
			log.ErrorContext(tctx, "World tick failed", "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seq++
	wg.Add(1)
	go fire(seq)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			seq++
			wg.Add(1)
			go fire(seq)
		}
	}
}
