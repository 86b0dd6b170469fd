package sku

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// RepositoryInterface defines the persistence contract the service needs.
type RepositoryInterface interface {
	GetForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*Sequence, error)
	GetByScope(ctx context.Context, q database.Querier, brandID, categoryID *uuid.UUID) (*Sequence, error)
	Insert(ctx context.Context, q database.Querier, seq *Sequence) error
	Save(ctx context.Context, q database.Querier, seq *Sequence) error
	SKUExists(ctx context.Context, q database.Querier, sku string) (bool, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Service issues SKUs from per-(brand,category) sequences.
type Service struct {
	runner TxRunner
	repo   RepositoryInterface
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new SKU sequence service.
func NewService(runner TxRunner, repo RepositoryInterface, log zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		repo:   repo,
		now:    time.Now,
		log:    log.With().Str("module", "sku").Logger(),
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams describes a sequence to get or create.
type CreateParams struct {
	BrandID        *uuid.UUID
	CategoryID     *uuid.UUID
	Prefix         string
	Suffix         string
	PaddingLength  int
	FormatTemplate string
}

// GetOrCreate returns the sequence for the scope tuple, creating it when
// missing. On a first-creator race one writer wins; the loser observes the
// winner's row on a single retry after the uniqueness violation.
func (s *Service) GetOrCreate(ctx context.Context, actor uuid.UUID, params CreateParams) (*Sequence, error) {
	var result *Sequence
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		seq, err := s.GetOrCreateIn(ctx, q, actor, params)
		if err != nil {
			return err
		}
		result = seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrCreateIn is GetOrCreate composed into the caller's transaction.
func (s *Service) GetOrCreateIn(ctx context.Context, q database.Querier, actor uuid.UUID, params CreateParams) (*Sequence, error) {
	existing, err := s.repo.GetByScope(ctx, q, params.BrandID, params.CategoryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	template := params.FormatTemplate
	if template == "" {
		template = DefaultTemplate
	}
	if err := ValidateTemplate(template, nil); err != nil {
		return nil, err
	}
	padding := params.PaddingLength
	if padding <= 0 {
		padding = 5
	}

	seq := &Sequence{
		Audit:          domain.NewAudit(actor, s.now()),
		BrandID:        params.BrandID,
		CategoryID:     params.CategoryID,
		Prefix:         params.Prefix,
		Suffix:         params.Suffix,
		PaddingLength:  padding,
		FormatTemplate: template,
		NextSequence:   1,
	}

	err = s.repo.Insert(ctx, q, seq)
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		// Lost the creation race, the winner's row is now visible.
		winner, rerr := s.repo.GetByScope(ctx, q, params.BrandID, params.CategoryID)
		if rerr != nil {
			return nil, rerr
		}
		if winner == nil {
			return nil, err
		}
		s.log.Debug().Str("scope", scopeKey(params.BrandID, params.CategoryID)).
			Msg("Sequence creation race lost, using existing row")
		return winner, nil
	}
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// GeneratedSKU is one issued SKU with its sequence number.
type GeneratedSKU struct {
	SKU            string
	SequenceNumber int64
}

// Generate issues the next SKU from a sequence inside its own transaction.
func (s *Service) Generate(ctx context.Context, actor uuid.UUID, sequenceID uuid.UUID, args RenderArgs) (GeneratedSKU, error) {
	var result GeneratedSKU
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		out, err := s.GenerateBulkIn(ctx, q, actor, sequenceID, 1, args)
		if err != nil {
			return err
		}
		result = out[0]
		return nil
	})
	if err != nil {
		return GeneratedSKU{}, err
	}
	return result, nil
}

// GenerateBulk issues count contiguous SKUs under a single lock acquisition.
func (s *Service) GenerateBulk(ctx context.Context, actor uuid.UUID, sequenceID uuid.UUID, count int, args RenderArgs) ([]GeneratedSKU, error) {
	var result []GeneratedSKU
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		out, err := s.GenerateBulkIn(ctx, q, actor, sequenceID, count, args)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateBulkIn issues count contiguous SKUs inside the caller's
// transaction. Used by composite service operations that mint unit SKUs as
// part of a receipt.
func (s *Service) GenerateBulkIn(ctx context.Context, q database.Querier, actor uuid.UUID, sequenceID uuid.UUID, count int, args RenderArgs) ([]GeneratedSKU, error) {
	if count <= 0 {
		return nil, domain.NewValidationError("count", "count must be positive")
	}

	seq, err := s.repo.GetForUpdate(ctx, q, sequenceID)
	if err != nil {
		return nil, err
	}
	if !seq.IsActive {
		return nil, &domain.InactiveSequenceError{SequenceID: sequenceID}
	}

	out := make([]GeneratedSKU, 0, count)
	for i := 0; i < count; i++ {
		n := seq.NextSequence + int64(i)
		out = append(out, GeneratedSKU{SKU: seq.Render(n, args), SequenceNumber: n})
	}

	now := s.now()
	last := out[len(out)-1].SKU
	seq.NextSequence += int64(count)
	seq.TotalGenerated += int64(count)
	seq.LastGeneratedSKU = &last
	seq.LastGeneratedAt = &now
	seq.Touch(actor, now)

	if err := s.repo.Save(ctx, q, seq); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("sequence_id", sequenceID.String()).
		Int("count", count).
		Int64("next_sequence", seq.NextSequence).
		Msg("Issued SKU numbers")
	return out, nil
}

// Reset moves the sequence counter. Rewinding to a value that would reissue
// an already-used number is forbidden unless force is set.
func (s *Service) Reset(ctx context.Context, actor uuid.UUID, sequenceID uuid.UUID, newValue int64, force bool) error {
	if newValue < 1 {
		return domain.NewValidationError("new_value", "sequence values start at 1")
	}
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		seq, err := s.repo.GetForUpdate(ctx, q, sequenceID)
		if err != nil {
			return err
		}
		if newValue < seq.NextSequence && !force {
			return domain.NewValidationError("new_value",
				"reset would reissue already-used sequence numbers; pass force to override")
		}
		seq.NextSequence = newValue
		seq.Touch(actor, s.now())
		return s.repo.Save(ctx, q, seq)
	})
}

// UpdateTemplate validates and replaces the format template. customKeys lists
// the caller-provided keys the template may reference at generation time.
func (s *Service) UpdateTemplate(ctx context.Context, actor uuid.UUID, sequenceID uuid.UUID, template string, customKeys []string) error {
	if err := ValidateTemplate(template, customKeys); err != nil {
		return err
	}
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		seq, err := s.repo.GetForUpdate(ctx, q, sequenceID)
		if err != nil {
			return err
		}
		seq.FormatTemplate = template
		seq.Touch(actor, s.now())
		return s.repo.Save(ctx, q, seq)
	})
}

// ValidateSKUUnique reports whether the SKU is unused across items and
// serialized units.
func (s *Service) ValidateSKUUnique(ctx context.Context, sku string) (bool, error) {
	var unique bool
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		exists, err := s.repo.SKUExists(ctx, q, sku)
		if err != nil {
			return err
		}
		unique = !exists
		return nil
	})
	if err != nil {
		return false, err
	}
	return unique, nil
}
