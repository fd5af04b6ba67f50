package tick

import (
	"context"

	"github.com/warhost/simcore/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/warhost/simcore/internal/tick"

type engineMetrics struct {
	processed metric.Int64Counter
	skipped   metric.Int64Counter
	failed    metric.Int64Counter
	battles   metric.Int64Counter
}

func newEngineMetrics() (*engineMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &engineMetrics{}
	var err error

	m.processed, err = meter.Int64Counter("simcore.tick.processed",
		metric.WithDescription("Player ticks committed"),
		metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}
	m.skipped, err = meter.Int64Counter("simcore.tick.skipped",
		metric.WithDescription("Player ticks skipped by debounce or missing resources"),
		metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}
	m.failed, err = meter.Int64Counter("simcore.tick.failed",
		metric.WithDescription("Player ticks rolled back"),
		metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}
	m.battles, err = meter.Int64Counter("simcore.battles",
		metric.WithDescription("Battles resolved in committed ticks"),
		metric.WithUnit("{battle}"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *engineMetrics) recordBattle(ctx context.Context, r core.BattleReport) {
	kind := "npc"
	if r.DefenderPlayerID != 0 {
		kind = "pvp"
	}
	m.battles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("attacker_wins", r.AttackerWins),
	))
}
