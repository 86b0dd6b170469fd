package sku

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// fakeRunner executes the callback directly; fakes below ignore the querier.
type fakeRunner struct{}

func (fakeRunner) WithinTx(ctx context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

type fakeRepo struct {
	byID     map[uuid.UUID]*Sequence
	existing map[string]bool // SKUs considered taken
	// when set, the first Insert fails with a conflict to simulate a
	// first-creator race; raceWinner is then visible on re-read
	raceWinner *Sequence
	raced      bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*Sequence), existing: make(map[string]bool)}
}

func (f *fakeRepo) GetForUpdate(_ context.Context, _ database.Querier, id uuid.UUID) (*Sequence, error) {
	seq, ok := f.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("sku sequence", id)
	}
	cp := *seq
	return &cp, nil
}

func (f *fakeRepo) GetByScope(_ context.Context, _ database.Querier, brandID, categoryID *uuid.UUID) (*Sequence, error) {
	if f.raced && f.raceWinner != nil {
		return f.raceWinner, nil
	}
	for _, seq := range f.byID {
		if uuidPtrEqual(seq.BrandID, brandID) && uuidPtrEqual(seq.CategoryID, categoryID) {
			return seq, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) Insert(_ context.Context, _ database.Querier, seq *Sequence) error {
	if f.raceWinner != nil && !f.raced {
		f.raced = true
		return &domain.ConflictError{Entity: "sku sequence", Key: "scope"}
	}
	cp := *seq
	f.byID[seq.ID] = &cp
	return nil
}

func (f *fakeRepo) Save(_ context.Context, _ database.Querier, seq *Sequence) error {
	cp := *seq
	f.byID[seq.ID] = &cp
	return nil
}

func (f *fakeRepo) SKUExists(_ context.Context, _ database.Querier, sku string) (bool, error) {
	return f.existing[sku], nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(fakeRunner{}, repo, zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func seedSequence(repo *fakeRepo, next int64, active bool) *Sequence {
	seq := &Sequence{
		Audit:          domain.NewAudit(uuid.New(), time.Now()),
		Prefix:         "ITM",
		PaddingLength:  5,
		FormatTemplate: "{prefix}-{sequence}",
		NextSequence:   next,
	}
	seq.IsActive = active
	repo.byID[seq.ID] = seq
	return seq
}

func TestGenerateIncrementsCounter(t *testing.T) {
	repo := newFakeRepo()
	seq := seedSequence(repo, 42, true)
	svc := newTestService(repo)

	actor := uuid.New()
	first, err := svc.Generate(context.Background(), actor, seq.ID, RenderArgs{})
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), actor, seq.ID, RenderArgs{})
	require.NoError(t, err)

	assert.Equal(t, int64(42), first.SequenceNumber)
	assert.Equal(t, "ITM-00042", first.SKU)
	assert.Equal(t, int64(43), second.SequenceNumber)
	assert.NotEqual(t, first.SKU, second.SKU)

	stored := repo.byID[seq.ID]
	assert.Equal(t, int64(44), stored.NextSequence)
	assert.Equal(t, int64(2), stored.TotalGenerated)
	require.NotNil(t, stored.LastGeneratedSKU)
	assert.Equal(t, "ITM-00043", *stored.LastGeneratedSKU)
}

func TestGenerateBulkIssuesContiguousNumbers(t *testing.T) {
	repo := newFakeRepo()
	seq := seedSequence(repo, 10, true)
	svc := newTestService(repo)

	out, err := svc.GenerateBulk(context.Background(), uuid.New(), seq.ID, 5, RenderArgs{})
	require.NoError(t, err)
	require.Len(t, out, 5)

	seen := make(map[string]bool)
	for i, g := range out {
		assert.Equal(t, int64(10+i), g.SequenceNumber)
		assert.False(t, seen[g.SKU], "duplicate SKU %s", g.SKU)
		seen[g.SKU] = true
	}
	assert.Equal(t, int64(15), repo.byID[seq.ID].NextSequence)
}

func TestGenerateInactiveSequenceFails(t *testing.T) {
	repo := newFakeRepo()
	seq := seedSequence(repo, 1, false)
	svc := newTestService(repo)

	_, err := svc.Generate(context.Background(), uuid.New(), seq.ID, RenderArgs{})
	var inactive *domain.InactiveSequenceError
	require.ErrorAs(t, err, &inactive)
	assert.Equal(t, seq.ID, inactive.SequenceID)
}

func TestGenerateBulkRejectsNonPositiveCount(t *testing.T) {
	repo := newFakeRepo()
	seq := seedSequence(repo, 1, true)
	svc := newTestService(repo)

	_, err := svc.GenerateBulk(context.Background(), uuid.New(), seq.ID, 0, RenderArgs{})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestResetGuardsAgainstReissue(t *testing.T) {
	repo := newFakeRepo()
	seq := seedSequence(repo, 100, true)
	svc := newTestService(repo)
	actor := uuid.New()

	err := svc.Reset(context.Background(), actor, seq.ID, 50, false)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(100), repo.byID[seq.ID].NextSequence)

	require.NoError(t, svc.Reset(context.Background(), actor, seq.ID, 50, true))
	assert.Equal(t, int64(50), repo.byID[seq.ID].NextSequence)

	require.NoError(t, svc.Reset(context.Background(), actor, seq.ID, 200, false))
	assert.Equal(t, int64(200), repo.byID[seq.ID].NextSequence)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	actor := uuid.New()
	brand := uuid.New()

	params := CreateParams{BrandID: &brand, Prefix: "BOS"}
	first, err := svc.GetOrCreate(context.Background(), actor, params)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(context.Background(), actor, params)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.byID, 1)
}

func TestGetOrCreateSurvivesCreationRace(t *testing.T) {
	repo := newFakeRepo()
	winner := seedSequence(repo, 1, true)
	delete(repo.byID, winner.ID) // winner is visible only through the race path
	repo.raceWinner = winner
	svc := newTestService(repo)

	got, err := svc.GetOrCreate(context.Background(), uuid.New(), CreateParams{Prefix: "X"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestGetOrCreateRejectsBadTemplate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.GetOrCreate(context.Background(), uuid.New(), CreateParams{FormatTemplate: "{bogus}"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateSKUUnique(t *testing.T) {
	repo := newFakeRepo()
	repo.existing["TAKEN-001"] = true
	svc := newTestService(repo)

	unique, err := svc.ValidateSKUUnique(context.Background(), "TAKEN-001")
	require.NoError(t, err)
	assert.False(t, unique)

	unique, err = svc.ValidateSKUUnique(context.Background(), "FREE-001")
	require.NoError(t, err)
	assert.True(t, unique)
}
