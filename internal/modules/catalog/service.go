package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// RepositoryInterface is the persistence contract the service depends on.
type RepositoryInterface interface {
	GetItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error)
	GetItemBySKU(ctx context.Context, q database.Querier, sku string) (*domain.Item, error)
	InsertItem(ctx context.Context, q database.Querier, item *domain.Item) error
	SaveItem(ctx context.Context, q database.Querier, item *domain.Item) error
	ListItems(ctx context.Context, q database.Querier, filter ItemFilter) ([]domain.Item, error)
	GetLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error)
	InsertLocation(ctx context.Context, q database.Querier, loc *domain.Location) error
	SaveLocation(ctx context.Context, q database.Querier, loc *domain.Location) error
	ListLocations(ctx context.Context, q database.Querier) ([]domain.Location, error)
	CountStockAtLocation(ctx context.Context, q database.Querier, locationID uuid.UUID) (int, error)
	GetParty(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Party, error)
	InsertParty(ctx context.Context, q database.Querier, party *domain.Party) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Service manages catalog reference data.
type Service struct {
	runner TxRunner
	repo   RepositoryInterface
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new catalog service.
func NewService(runner TxRunner, repo RepositoryInterface, log zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		repo:   repo,
		now:    time.Now,
		log:    log.With().Str("service", "catalog").Logger(),
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateItem validates and persists a new catalog item.
func (s *Service) CreateItem(ctx context.Context, actor uuid.UUID, item domain.Item) (*domain.Item, error) {
	item.Audit = domain.NewAudit(actor, s.now())
	if err := item.Validate(); err != nil {
		return nil, err
	}

	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		existing, err := s.repo.GetItemBySKU(ctx, q, item.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ConflictError{Entity: "item", Key: item.SKU}
		}
		return s.repo.InsertItem(ctx, q, &item)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("sku", item.SKU).Msg("Created catalog item")
	return &item, nil
}

// UpdateItem applies mutable fields to an existing item. The SKU is fixed at
// creation; units already minted reference it.
func (s *Service) UpdateItem(ctx context.Context, actor uuid.UUID, id uuid.UUID, apply func(*domain.Item)) (*domain.Item, error) {
	var result *domain.Item
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		item, err := s.repo.GetItem(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil || !item.IsActive {
			return domain.NewNotFoundError("item", id)
		}

		apply(item)
		if err := item.Validate(); err != nil {
			return err
		}
		item.Touch(actor, s.now())
		if err := s.repo.SaveItem(ctx, q, item); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListItems returns active items matching the filter.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		var err error
		items, err = s.repo.ListItems(ctx, q, filter)
		return err
	})
	return items, err
}

// CreateLocation validates and persists a new location.
func (s *Service) CreateLocation(ctx context.Context, actor uuid.UUID, loc domain.Location) (*domain.Location, error) {
	loc.Audit = domain.NewAudit(actor, s.now())
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		return s.repo.InsertLocation(ctx, q, &loc)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("code", loc.Code).Msg("Created location")
	return &loc, nil
}

// DeactivateLocation soft-deletes a location. Locations still holding stock
// cannot be deactivated.
func (s *Service) DeactivateLocation(ctx context.Context, actor uuid.UUID, id uuid.UUID) error {
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		loc, err := s.repo.GetLocation(ctx, q, id)
		if err != nil {
			return err
		}
		if loc == nil || !loc.IsActive {
			return domain.NewNotFoundError("location", id)
		}

		stocked, err := s.repo.CountStockAtLocation(ctx, q, id)
		if err != nil {
			return err
		}
		if stocked > 0 {
			return domain.NewValidationError("location",
				"location still holds stock and cannot be deactivated")
		}

		now := s.now()
		loc.IsActive = false
		loc.DeletedAt = &now
		loc.DeletedBy = &actor
		loc.Touch(actor, now)
		return s.repo.SaveLocation(ctx, q, loc)
	})
}

// ListLocations returns active locations.
func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	var locations []domain.Location
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		var err error
		locations, err = s.repo.ListLocations(ctx, q)
		return err
	})
	return locations, err
}

// CreateParty persists a customer or supplier reference.
func (s *Service) CreateParty(ctx context.Context, actor uuid.UUID, kind domain.PartyKind, name string) (*domain.Party, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "party name is required")
	}
	if kind != domain.PartyCustomer && kind != domain.PartySupplier {
		return nil, domain.NewValidationError("kind", "unknown party kind")
	}

	party := domain.Party{
		Audit: domain.NewAudit(actor, s.now()),
		Kind:  kind,
		Name:  name,
	}
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		return s.repo.InsertParty(ctx, q, &party)
	})
	if err != nil {
		return nil, err
	}
	return &party, nil
}
