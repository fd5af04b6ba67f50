// Package influx records tick and battle measurements in InfluxDB, falling
// back to a gzip line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/warhost/simcore/internal/config"
	"github.com/warhost/simcore/internal/tick"
	"github.com/warhost/simcore/pkg/core"
)

// Measurement names.
const (
	MeasurementTick   = "player_tick"
	MeasurementBattle = "battle"
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx disabled")

// Recorder writes tick.Metrics to InfluxDB or to the backup file.
type Recorder struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile *os.File
}

var _ tick.Metrics = (*Recorder)(nil)

// NewRecorder creates a recorder. Nothing is sent until Connect succeeds.
func NewRecorder(log zerolog.Logger, backupPath string) *Recorder {
	return &Recorder{
		IsValid:    false,
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB. If the server does not answer
// the ping, points go to the gzip backup file instead.
func (r *Recorder) Connect(ctx context.Context, cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}

	r.Client = influxdb2.NewClientWithOptions(
		cfg.ServerURL(),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := r.Client.Ping(ctx)
	if err != nil || !running {
		r.IsValid = false
		r.Logger.Info().Str("backupPath", r.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return r.openBackup()
	}

	if err := r.ensureBucket(ctx, cfg.Org, cfg.Bucket); err != nil {
		return err
	}

	r.Writer = r.Client.WriteAPI(cfg.Org, cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			r.Logger.Error().Err(writeErr).Str("bucket", cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(r.Writer.Errors())

	r.IsValid = true
	r.Logger.Info().Str("url", cfg.ServerURL()).Str("bucket", cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (r *Recorder) openBackup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(r.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	r.backupFile = file
	r.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (r *Recorder) ensureBucket(ctx context.Context, orgName, bucket string) error {
	// ensure org exists
	org, err := r.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		r.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		org, err = r.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			r.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = r.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
		return nil
	}

	r.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = r.Client.BucketsAPI().CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 90, // 90 days
	})
	if err != nil {
		r.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

// RecordTick implements tick.Metrics.
func (r *Recorder) RecordTick(playerID uint, duration time.Duration, stats tick.Stats) {
	p := influxdb2_write.NewPoint(
		MeasurementTick,
		map[string]string{"player_id": strconv.FormatUint(uint64(playerID), 10)},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"arrivals":    stats.Arrivals,
			"battles":     stats.Battles,
			"completions": stats.Completions,
			"events":      stats.Events,
		},
		time.Now(),
	)
	if err := r.WritePoint(p); err != nil {
		r.Logger.Warn().Err(err).Uint("playerId", playerID).Msg("Failed to record tick")
	}
}

// RecordBattle implements tick.Metrics.
func (r *Recorder) RecordBattle(report core.BattleReport) {
	kind := "npc"
	if report.DefenderPlayerID != 0 {
		kind = "pvp"
	}
	p := influxdb2_write.NewPoint(
		MeasurementBattle,
		map[string]string{
			"kind":          kind,
			"attacker_wins": strconv.FormatBool(report.AttackerWins),
		},
		map[string]interface{}{
			"attacker_id":        int64(report.AttackerPlayerID),
			"rounds":             report.Detail.Rounds,
			"attacker_losses":    core.TotalUnits(report.Detail.AttackerLosses),
			"defender_losses":    core.TotalUnits(report.Detail.DefenderLosses),
			"loot_total":         report.Detail.Loot.Total(),
			"defenses_destroyed": report.Detail.DefensesDestroyed,
		},
		report.ResolvedAt,
	)
	if err := r.WritePoint(p); err != nil {
		r.Logger.Warn().Err(err).Str("reportId", report.ID).Msg("Failed to record battle")
	}
}

// WritePoint writes a point to InfluxDB or backup file.
func (r *Recorder) WritePoint(point *influxdb2_write.Point) error {
	if r.IsValid {
		r.Writer.WritePoint(point)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := r.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (r *Recorder) Close() error {
	if r.Writer != nil {
		r.Writer.Flush()
	}
	if r.Client != nil {
		r.Client.Close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BackupWriter == nil {
		return nil
	}
	err := r.BackupWriter.Close()
	r.BackupWriter = nil
	if cerr := r.backupFile.Close(); err == nil {
		err = cerr
	}
	r.backupFile = nil
	return err
}
