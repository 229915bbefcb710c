// Package reaper runs the scheduled cleanup sweeps (spec §4.6): stale and
// expired push tokens, expired in-app notifications, and old tracking
// records past their retention window. Grounded on robfig/cron/v3's
// schedule-a-func model rather than a hand-rolled ticker loop.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/tokens"
)

// RecordStore is the subset of the store the record-retention sweep needs.
type RecordStore interface {
	PurgeOldRecords(ctx context.Context, olderThan time.Time, batchSize int) (int64, error)
	ExpireStaleInAppNotifications(ctx context.Context, batchSize int) (int64, error)
}

// Reaper schedules and runs the three cleanup sweeps against a cron.Cron.
type Reaper struct {
	cron    *cron.Cron
	cfg     config.ReaperConfig
	tokens  *tokens.Registry
	records RecordStore
	logger  *slog.Logger
}

// New builds a Reaper. Call Start to begin scheduling.
func New(cfg config.ReaperConfig, tokenRegistry *tokens.Registry, records RecordStore, logger *slog.Logger) *Reaper {
	return &Reaper{
		cron:    cron.New(),
		cfg:     cfg,
		tokens:  tokenRegistry,
		records: records,
		logger:  logger,
	}
}

// Start registers the three sweeps with their configured intervals (parsed
// as cron "@every <duration>" specs) and starts the scheduler.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(everySpec(r.cfg.StaleTokenSweepInterval), r.sweepStaleTokens); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(everySpec(r.cfg.ExpiredTokenSweepInterval), r.sweepExpiredTokens); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(everySpec(r.cfg.RecordSweepInterval), r.sweepRecords); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop drains running jobs and halts the scheduler.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func everySpec(duration string) string {
	return "@every " + duration
}

func (r *Reaper) sweepStaleTokens() {
	ctx := context.Background()
	n, err := r.tokens.SweepStale(ctx, models.TokenStaleAfter, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("stale token sweep failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("stale token sweep complete", slog.Int64("marked_stale", n))
}

func (r *Reaper) sweepExpiredTokens() {
	ctx := context.Background()
	n, err := r.tokens.SweepExpired(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("expired token sweep failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("expired token sweep complete", slog.Int64("deleted", n))

	expired, err := r.records.ExpireStaleInAppNotifications(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("in-app expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("in-app expiry sweep complete", slog.Int64("expired", expired))
}

func (r *Reaper) sweepRecords() {
	ctx := context.Background()
	cutoff := time.Now().UTC().AddDate(0, 0, -r.cfg.RecordRetentionDays)
	n, err := r.records.PurgeOldRecords(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("record retention sweep failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("record retention sweep complete", slog.Int64("purged", n), slog.Time("cutoff", cutoff))
}
