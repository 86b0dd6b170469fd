package ledger

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/inventory"
	"github.com/openrentals/core/internal/modules/transactions"
)

type fakeRunner struct{}

func (f *fakeRunner) WithinTx(ctx context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

type fakeMovements struct {
	rows []inventory.StockMovement
}

func (f *fakeMovements) SelectOlderThan(ctx context.Context, q database.Querier, cutoff time.Time, limit int) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	for _, m := range f.rows {
		if m.CreatedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMovements) DeleteByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []inventory.StockMovement
	var deleted int64
	for _, m := range f.rows {
		if drop[m.ID.String()] {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	f.rows = kept
	return deleted, nil
}

type fakeEvents struct {
	rows []transactions.TransactionEvent
}

func (f *fakeEvents) SelectEventsOlderThan(ctx context.Context, q database.Querier, category domain.EventCategory, cutoff time.Time, limit int) ([]transactions.TransactionEvent, error) {
	var out []transactions.TransactionEvent
	for _, e := range f.rows {
		if e.EventCategory == category && e.EventTimestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTimestamp.Before(out[j].EventTimestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEvents) DeleteEventsByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []transactions.TransactionEvent
	var deleted int64
	for _, e := range f.rows {
		if drop[e.ID.String()] {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.rows = kept
	return deleted, nil
}

type fakeStore struct {
	objects map[string][]byte
	failPut error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, body []byte) error {
	if f.failPut != nil {
		return f.failPut
	}
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeStore) payloadKeys() []string {
	var keys []string
	for k := range f.objects {
		if !bytes.HasSuffix([]byte(k), []byte(".manifest.json")) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func movementAt(at time.Time) inventory.StockMovement {
	return inventory.StockMovement{
		ID:           uuid.New(),
		StockLevelID: uuid.New(),
		ItemID:       uuid.New(),
		LocationID:   uuid.New(),
		MovementType: domain.MovementAdjustmentPositive,
		Reason:       "Manual count correction",
		PerformedBy:  uuid.New(),
		CreatedAt:    at,
	}
}

func eventAt(category domain.EventCategory, at time.Time) transactions.TransactionEvent {
	return transactions.TransactionEvent{
		ID:             uuid.New(),
		TransactionID:  uuid.New(),
		EventType:      "transaction_created",
		EventCategory:  category,
		EventData:      json.RawMessage(`{}`),
		PerformedBy:    uuid.New(),
		EventTimestamp: at,
	}
}

func countGzipLines(t *testing.T, payload []byte) int {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer gz.Close()

	count := 0
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		count++
	}
	require.NoError(t, scanner.Err())
	return count
}

func retentionFixture(movements *fakeMovements, events *fakeEvents, store *fakeStore, policy RetentionPolicy) *RetentionJob {
	job := NewRetentionJob(&fakeRunner{}, movements, events, store, policy, zerolog.Nop())
	job.SetClock(func() time.Time {
		return time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	})
	return job
}

func TestRetentionArchivesThenPurges(t *testing.T) {
	now := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	old := now.AddDate(-8, 0, 0)

	movements := &fakeMovements{rows: []inventory.StockMovement{
		movementAt(old),
		movementAt(old.Add(time.Hour)),
		movementAt(now.AddDate(0, -1, 0)), // within retention
	}}
	store := newFakeStore()
	job := retentionFixture(movements, &fakeEvents{}, store, DefaultRetentionPolicy())

	require.NoError(t, job.Run())

	require.Len(t, movements.rows, 1, "recent movement survives")
	keys := store.payloadKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, 2, countGzipLines(t, store.objects[keys[0]]))

	var manifest batchManifest
	require.NoError(t, json.Unmarshal(store.objects[keys[0]+".manifest.json"], &manifest))
	assert.Equal(t, "stock_movements", manifest.Kind)
	assert.Equal(t, 2, manifest.Count)
	assert.Contains(t, manifest.Checksum, "sha256:")
}

func TestRetentionUploadFailureKeepsRows(t *testing.T) {
	now := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	movements := &fakeMovements{rows: []inventory.StockMovement{
		movementAt(now.AddDate(-8, 0, 0)),
	}}
	store := newFakeStore()
	store.failPut = errors.New("bucket unavailable")
	job := retentionFixture(movements, &fakeEvents{}, store, DefaultRetentionPolicy())

	require.Error(t, job.Run())
	assert.Len(t, movements.rows, 1, "nothing purged when the archive upload fails")
}

func TestRetentionBatches(t *testing.T) {
	now := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	old := now.AddDate(-8, 0, 0)
	movements := &fakeMovements{rows: []inventory.StockMovement{
		movementAt(old), movementAt(old.Add(time.Minute)), movementAt(old.Add(2 * time.Minute)),
	}}
	store := newFakeStore()
	policy := DefaultRetentionPolicy()
	policy.BatchSize = 2
	job := retentionFixture(movements, &fakeEvents{}, store, policy)

	require.NoError(t, job.Run())

	assert.Empty(t, movements.rows)
	keys := store.payloadKeys()
	require.Len(t, keys, 2, "three rows at batch size two give two archives")
	assert.Equal(t, 2, countGzipLines(t, store.objects[keys[0]]))
	assert.Equal(t, 1, countGzipLines(t, store.objects[keys[1]]))
}

func TestEventRetentionByCategory(t *testing.T) {
	now := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	events := &fakeEvents{rows: []transactions.TransactionEvent{
		eventAt(domain.EventCategoryError, now.AddDate(-2, 0, 0)),   // past 1y horizon
		eventAt(domain.EventCategoryGeneral, now.AddDate(-2, 0, 0)), // within 7y horizon
		eventAt(domain.EventCategoryError, now.AddDate(0, -1, 0)),   // recent
	}}
	store := newFakeStore()
	job := retentionFixture(&fakeMovements{}, events, store, DefaultRetentionPolicy())

	require.NoError(t, job.Run())

	require.Len(t, events.rows, 2)
	for _, e := range events.rows {
		if e.EventCategory == domain.EventCategoryError {
			assert.True(t, e.EventTimestamp.After(now.AddDate(-1, 0, 0)))
		}
	}
}
