package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/lyrebird-dev/chime/internal/metrics"
	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/notify"
	"github.com/lyrebird-dev/chime/internal/repository"
	"github.com/lyrebird-dev/chime/internal/schedule"
)

const (
	// BatchSize bounds the number of due reminders processed per tick.
	BatchSize = 50

	// MaxAttempts is the delivery attempt limit before a reminder is
	// paused. Attempts reset on success and on updates.
	MaxAttempts = 3

	// idempotencyTTL is how long replay records are retained.
	idempotencyTTL = 24 * time.Hour
)

func nowUnix() int64 { return time.Now().Unix() }

// TickStats summarizes one trigger processor tick.
type TickStats struct {
	Processed int // claimed and delivery attempted
	Completed int // reached their final occurrence
	Paused    int // hit the attempt limit
	Skipped   int // claim lost to a concurrent worker
	Failed    int // delivery attempt failed
}

// TriggerProcessor scans for due reminders and delivers them. Multiple
// processors may run against the same database; the optimistic claim is
// the only coordination between them.
type TriggerProcessor struct {
	reminders   repository.ReminderRepository
	idempotency repository.IdempotencyRepository
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	log         *logrus.Logger
	now         func() int64

	totalTicks     atomic.Int64
	totalProcessed atomic.Int64
}

// NewTriggerProcessor creates the trigger processor.
func NewTriggerProcessor(reminders repository.ReminderRepository, idempotency repository.IdempotencyRepository, notifier notify.Notifier, m *metrics.Metrics, log *logrus.Logger) *TriggerProcessor {
	return &TriggerProcessor{
		reminders:   reminders,
		idempotency: idempotency,
		notifier:    notifier,
		metrics:     m,
		log:         log,
		now:         nowUnix,
	}
}

// Run ticks at the given interval until the context is cancelled. Each
// tick runs on its own goroutine so a slow batch never delays the next
// scan; overlapping ticks are safe because claims serialize per reminder.
func (p *TriggerProcessor) Run(ctx context.Context, interval time.Duration) {
	p.log.WithField("interval", interval).Info("Trigger processor started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Trigger processor stopped")
			return
		case <-ticker.C:
			go func() {
				stats, err := p.RunTick(ctx, p.now())
				if err != nil {
					p.log.WithError(err).Error("Tick finished with errors")
				}
				if stats.Processed > 0 || err != nil {
					ticks, processed := p.Totals()
					p.log.WithFields(logrus.Fields{
						"processed":       stats.Processed,
						"completed":       stats.Completed,
						"paused":          stats.Paused,
						"skipped":         stats.Skipped,
						"failed":          stats.Failed,
						"total_ticks":     ticks,
						"total_processed": processed,
					}).Info("Tick finished")
				}
			}()
		}
	}
}

// RunTick processes one batch of due reminders. Per-reminder errors are
// collected rather than aborting the batch; the aggregate is returned for
// logging only.
func (p *TriggerProcessor) RunTick(ctx context.Context, now int64) (TickStats, error) {
	start := time.Now()
	p.metrics.TicksTotal.Inc()
	p.totalTicks.Inc()
	defer func() {
		p.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	var stats TickStats
	var errs *multierror.Error

	due, err := p.reminders.SelectDue(ctx, now, BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to select due reminders: %w", err)
	}

	for _, reminder := range due {
		claimed, err := p.reminders.Claim(ctx, reminder.ID, reminder.Version, now)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("reminder %d: %w", reminder.ID, err))
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		stats.Processed++
		p.metrics.RemindersProcessed.Inc()
		p.totalProcessed.Inc()

		if err := p.processSafe(ctx, reminder, now, &stats); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("reminder %d: %w", reminder.ID, err))
		}
	}

	if deleted, err := p.idempotency.DeleteOlderThan(ctx, now-int64(idempotencyTTL.Seconds())); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("idempotency cleanup: %w", err))
	} else if deleted > 0 {
		p.metrics.IdempotencyEvicted.Add(float64(deleted))
	}

	return stats, errs.ErrorOrNil()
}

// processSafe contains a panic from one reminder so the rest of the batch
// still runs.
func (p *TriggerProcessor) processSafe(ctx context.Context, reminder *models.Reminder, now int64, stats *TickStats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing: %v", r)
		}
	}()
	return p.process(ctx, reminder, now, stats)
}

// process handles one claimed reminder end to end.
func (p *TriggerProcessor) process(ctx context.Context, reminder *models.Reminder, now int64, stats *TickStats) error {
	sendErr := p.deliver(ctx, reminder)
	if sendErr != nil {
		stats.Failed++
		p.metrics.SendFailures.Inc()
		return p.handleFailure(ctx, reminder, sendErr, now, stats)
	}

	spec, err := schedule.ParseConfig(schedule.Type(reminder.ScheduleType), reminder.ScheduleConfig)
	if err != nil {
		// Delivered, but the stored config cannot be rescheduled. Route it
		// through the failure path so the row stays visible to the user
		// with its error instead of quietly retiring.
		stats.Failed++
		return p.handleFailure(ctx, reminder, fmt.Errorf("invalid schedule configuration: %w", err), now, stats)
	}

	// Advance from the claim instant, not the stored trigger time: a
	// reminder fired late realigns to the next occurrence after now
	// rather than walking forward one period per tick.
	next, ok := schedule.NextOccurrence(spec, reminder.Timezone, now)
	if !ok {
		stats.Completed++
		p.metrics.RemindersCompleted.Inc()
		return p.reminders.MarkCompleted(ctx, reminder.ID, now)
	}

	p.log.WithFields(logrus.Fields{
		"reminder_id":     reminder.ID,
		"next_trigger_at": next,
	}).Debug("Reminder rescheduled")
	return p.reminders.Reschedule(ctx, reminder.ID, next, now)
}

func (p *TriggerProcessor) deliver(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ChatID == "" {
		return errors.New("no notification channel configured")
	}
	return p.notifier.Send(ctx, reminder.ChatID, reminder.Content)
}

// handleFailure records a failed attempt. next_trigger_at is left
// untouched so the reminder is retried on the next tick, until the
// attempt limit pauses it.
func (p *TriggerProcessor) handleFailure(ctx context.Context, reminder *models.Reminder, sendErr error, now int64, stats *TickStats) error {
	attempts, err := p.reminders.RecordFailure(ctx, reminder.ID, sendErr.Error(), now)
	if err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{
		"reminder_id": reminder.ID,
		"attempts":    attempts,
		"error":       sendErr.Error(),
	}).Warn("Reminder delivery failed")

	if attempts < MaxAttempts {
		return nil
	}

	stats.Paused++
	p.metrics.RemindersPaused.Inc()
	p.log.WithFields(logrus.Fields{
		"reminder_id": reminder.ID,
		"attempts":    attempts,
	}).Error("Reminder paused after repeated failures")
	return p.reminders.Pause(ctx, reminder.ID, sendErr.Error(), now)
}

// Totals returns lifetime counters for the processor instance.
func (p *TriggerProcessor) Totals() (ticks, processed int64) {
	return p.totalTicks.Load(), p.totalProcessed.Load()
}
