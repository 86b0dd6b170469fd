package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/inventory"
	"github.com/openrentals/core/internal/modules/transactions"
)

// MovementSource is the slice of the movement repository the job drives.
type MovementSource interface {
	SelectOlderThan(ctx context.Context, q database.Querier, cutoff time.Time, limit int) ([]inventory.StockMovement, error)
	DeleteByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error)
}

// EventSource is the slice of the transaction repository the job drives.
type EventSource interface {
	SelectEventsOlderThan(ctx context.Context, q database.Querier, category domain.EventCategory, cutoff time.Time, limit int) ([]transactions.TransactionEvent, error)
	DeleteEventsByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Querier) error) error
}

// RetentionPolicy sets how long each trail is kept online. Zero days means
// keep forever.
type RetentionPolicy struct {
	MovementRetentionDays int
	EventRetentionDays    map[domain.EventCategory]int
	BatchSize             int
}

// DefaultRetentionPolicy keeps inventory trails seven years and error events
// one year.
func DefaultRetentionPolicy() RetentionPolicy {
	const sevenYears = 7 * 365
	return RetentionPolicy{
		MovementRetentionDays: sevenYears,
		EventRetentionDays: map[domain.EventCategory]int{
			domain.EventCategoryGeneral:   sevenYears,
			domain.EventCategoryInventory: sevenYears,
			domain.EventCategoryPayment:   sevenYears,
			domain.EventCategoryError:     365,
		},
		BatchSize: 1000,
	}
}

// RetentionJob archives expired ledger batches to object storage and purges
// them. Each batch runs in one database transaction; the upload happens
// inside it, so a failed upload rolls the delete back and the batch is
// retried on the next run.
type RetentionJob struct {
	runner    TxRunner
	movements MovementSource
	events    EventSource
	store     ObjectStore
	policy    RetentionPolicy
	now       func() time.Time
	log       zerolog.Logger
}

// NewRetentionJob creates a new ledger retention job.
func NewRetentionJob(
	runner TxRunner,
	movements MovementSource,
	events EventSource,
	store ObjectStore,
	policy RetentionPolicy,
	log zerolog.Logger,
) *RetentionJob {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 1000
	}
	return &RetentionJob{
		runner:    runner,
		movements: movements,
		events:    events,
		store:     store,
		policy:    policy,
		now:       time.Now,
		log:       log.With().Str("job", "ledger_retention").Logger(),
	}
}

// SetClock overrides the time source (tests).
func (j *RetentionJob) SetClock(now func() time.Time) {
	j.now = now
}

// Name returns the job name for scheduling and logging.
func (j *RetentionJob) Name() string {
	return "ledger_retention"
}

// Run archives and purges all expired movements and events.
func (j *RetentionJob) Run() error {
	ctx := context.Background()

	purged, err := j.purgeMovements(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Movement retention failed")
		return err
	}

	eventsPurged, err := j.purgeEvents(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Event retention failed")
		return err
	}

	if purged > 0 || eventsPurged > 0 {
		j.log.Info().
			Int64("movements", purged).
			Int64("events", eventsPurged).
			Msg("Ledger retention completed")
	}
	return nil
}

func (j *RetentionJob) purgeMovements(ctx context.Context) (int64, error) {
	if j.policy.MovementRetentionDays <= 0 {
		return 0, nil
	}
	cutoff := j.now().AddDate(0, 0, -j.policy.MovementRetentionDays)

	var total int64
	for batch := 0; ; batch++ {
		var deleted int64
		err := j.runner.WithinTx(ctx, func(q database.Querier) error {
			movements, err := j.movements.SelectOlderThan(ctx, q, cutoff, j.policy.BatchSize)
			if err != nil {
				return err
			}
			if len(movements) == 0 {
				return nil
			}

			key := j.batchKey("stock-movements", batch)
			from := movements[0].CreatedAt
			to := movements[len(movements)-1].CreatedAt
			if err := archiveBatch(ctx, j.store, "stock_movements", key, movements, from, to, j.now()); err != nil {
				return err
			}

			ids := make([]string, len(movements))
			for i := range movements {
				ids[i] = movements[i].ID.String()
			}
			deleted, err = j.movements.DeleteByIDs(ctx, q, ids)
			return err
		})
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted == 0 {
			return total, nil
		}
	}
}

func (j *RetentionJob) purgeEvents(ctx context.Context) (int64, error) {
	var total int64
	for category, days := range j.policy.EventRetentionDays {
		if days <= 0 {
			continue
		}
		cutoff := j.now().AddDate(0, 0, -days)

		for batch := 0; ; batch++ {
			var deleted int64
			err := j.runner.WithinTx(ctx, func(q database.Querier) error {
				events, err := j.events.SelectEventsOlderThan(ctx, q, category, cutoff, j.policy.BatchSize)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					return nil
				}

				key := j.batchKey(fmt.Sprintf("events/%s", category), batch)
				from := events[0].EventTimestamp
				to := events[len(events)-1].EventTimestamp
				if err := archiveBatch(ctx, j.store, "transaction_events", key, events, from, to, j.now()); err != nil {
					return err
				}

				ids := make([]string, len(events))
				for i := range events {
					ids[i] = events[i].ID.String()
				}
				deleted, err = j.events.DeleteEventsByIDs(ctx, q, ids)
				return err
			})
			if err != nil {
				return total, err
			}
			total += deleted
			if deleted == 0 {
				break
			}
		}
	}
	return total, nil
}

// archiveBatch uploads the batch payload and its manifest.
func archiveBatch[T any](ctx context.Context, store ObjectStore, kind, key string, records []T, from, to, now time.Time) error {
	payload, manifest, err := encodeBatch(kind, records, from, to, now)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, payload); err != nil {
		return err
	}
	manifestBody, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return store.Put(ctx, key+".manifest.json", manifestBody)
}

func (j *RetentionJob) batchKey(group string, batch int) string {
	return fmt.Sprintf("%s/%s-%03d.jsonl.gz", group, j.now().UTC().Format("20060102T150405"), batch)
}
