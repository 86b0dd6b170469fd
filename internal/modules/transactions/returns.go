package transactions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/events"
	"github.com/openrentals/core/internal/modules/inventory"

	"context"
)

// DamageDetail describes one group of damage found during return inspection.
type DamageDetail struct {
	DamageType         string
	Severity           string
	RepairCostEstimate *decimal.Decimal
	SerialNumbers      []string
	Notes              *string
}

// ReturnLineInput describes the return of one rental line. The quantity
// buckets must sum to TotalQuantity; serialized items name their serials per
// outcome so the matching units can be transitioned.
type ReturnLineInput struct {
	LineID              uuid.UUID
	TotalQuantity       decimal.Decimal
	GoodQuantity        decimal.Decimal
	DamagedQuantity     decimal.Decimal
	BeyondRepairQty     decimal.Decimal
	LostQuantity        decimal.Decimal
	GoodSerials         []string
	DamagedSerials      []string
	BeyondRepairSerials []string
	LostSerials         []string
	// UnitDispositions routes units by id for callers that track unit ids
	// directly (e.g. from the checkout result) instead of serials.
	UnitDispositions    []inventory.UnitDisposition
	DamageDetails       []DamageDetail
	DamagePenalty       decimal.Decimal
	ConditionNotes      *string
}

// ReturnInput describes one rental-return request.
type ReturnInput struct {
	RentalID   uuid.UUID
	ReturnDate time.Time
	Lines      []ReturnLineInput
	OtherFees  decimal.Decimal
}

// ReturnOutcome is the financial result handed back to the caller.
type ReturnOutcome struct {
	Header        *TransactionHeader
	DepositHeld   decimal.Decimal
	LateFee       decimal.Decimal
	DamagePenalty decimal.Decimal
	TotalFees     decimal.Decimal
	Refund        decimal.Decimal
	DaysLate      int
	FullyReturned bool
}

// ProcessReturn applies a mixed-condition rental return: routes quantities
// across the stock buckets, transitions named serialized units, records
// inspections, advances line and header rental status and accrues fees on
// the lifecycle. Runs in one database transaction; any failure rolls back
// everything including the inventory effects.
//
// Damaged and beyond-repair quantities never reach the available bucket; the
// inventory layer re-checks the available delta against the good quantity
// before the movement is written.
func (s *Service) ProcessReturn(ctx context.Context, actor uuid.UUID, input ReturnInput) (*ReturnOutcome, error) {
	if len(input.Lines) == 0 {
		return nil, domain.NewValidationError("lines", "return requires at least one line")
	}

	var outcome *ReturnOutcome
	headerSeen := false
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		header, err := s.repo.GetHeaderForUpdate(ctx, q, input.RentalID)
		if err != nil {
			return err
		}
		headerSeen = true
		if header.TransactionType != domain.TransactionTypeRental {
			return domain.NewValidationError("rental_id", "transaction is not a rental")
		}

		lifecycle, err := s.lifecycles.GetForUpdate(ctx, q, header.ID)
		if err != nil {
			return err
		}

		linesByID := make(map[uuid.UUID]*TransactionLine, len(header.Lines))
		for i := range header.Lines {
			linesByID[header.Lines[i].ID] = &header.Lines[i]
		}

		now := s.now()
		totalLateFee := decimal.Zero
		totalDamagePenalty := decimal.Zero
		maxDaysLate := 0
		totalGood := decimal.Zero
		totalDamaged := decimal.Zero
		totalBeyondRepair := decimal.Zero
		totalLost := decimal.Zero

		for _, ret := range input.Lines {
			line, ok := linesByID[ret.LineID]
			if !ok {
				return domain.NewNotFoundError("transaction line", ret.LineID)
			}

			if err := validateReturnLine(line, ret); err != nil {
				return err
			}

			item, err := s.requireItem(ctx, q, line.ItemID)
			if err != nil {
				return err
			}

			daysLate := line.DaysLate(input.ReturnDate)
			if daysLate > maxDaysLate {
				maxDaysLate = daysLate
			}
			lateFee := decimal.Zero
			if daysLate > 0 {
				lateFee = domain.RoundMoney(item.DailyLateRate().
					Mul(decimal.NewFromInt(int64(daysLate))).
					Mul(ret.TotalQuantity))
			}
			totalLateFee = totalLateFee.Add(lateFee)
			totalDamagePenalty = totalDamagePenalty.Add(ret.DamagePenalty)

			dispositions, err := s.resolveDispositions(ctx, q, ret)
			if err != nil {
				return err
			}
			err = s.inv.ProcessReturnIn(ctx, q, actor, inventory.ReturnInput{
				ItemID:          line.ItemID,
				LocationID:      header.LocationID,
				Quantity:        ret.TotalQuantity,
				DamagedQty:      ret.DamagedQuantity,
				BeyondRepairQty: ret.BeyondRepairQty,
				LostQty:         ret.LostQuantity,
				Dispositions:    dispositions,
				ConditionNotes:  ret.ConditionNotes,
				HeaderID:        &header.ID,
				LineID:          &line.ID,
			})
			if err != nil {
				return err
			}

			for _, detail := range ret.DamageDetails {
				ins := &Inspection{
					ID:                  uuid.New(),
					TransactionHeaderID: header.ID,
					TransactionLineID:   line.ID,
					DamageType:          detail.DamageType,
					Severity:            detail.Severity,
					RepairCostEstimate:  detail.RepairCostEstimate,
					Notes:               detail.Notes,
					InspectedBy:         actor,
					InspectedAt:         now,
				}
				if len(detail.SerialNumbers) > 0 {
					joined := strings.Join(detail.SerialNumbers, ",")
					ins.SerialNumbers = &joined
				}
				if err := s.lifecycles.InsertInspection(ctx, q, ins); err != nil {
					return err
				}
			}

			line.ReturnedQuantity = line.ReturnedQuantity.Add(ret.TotalQuantity)
			status := returnLineStatus(line, daysLate > 0)
			line.RentalStatus = &status
			line.Touch(actor, now)
			if err := s.repo.SaveLine(ctx, q, line); err != nil {
				return err
			}

			totalGood = totalGood.Add(ret.GoodQuantity)
			totalDamaged = totalDamaged.Add(ret.DamagedQuantity)
			totalBeyondRepair = totalBeyondRepair.Add(ret.BeyondRepairQty)
			totalLost = totalLost.Add(ret.LostQuantity)
		}

		header.RefreshRentalStatus()
		fullyReturned := true
		for i := range header.Lines {
			if !header.Lines[i].IsFullyReturned() {
				fullyReturned = false
				break
			}
		}
		if fullyReturned {
			header.Status = domain.TransactionStatusCompleted
		}
		header.Touch(actor, now)
		if err := s.repo.SaveHeader(ctx, q, header); err != nil {
			return err
		}

		lifecycle.AddFees(totalLateFee, totalDamagePenalty, input.OtherFees)
		if header.RentalStatus != nil {
			lifecycle.CurrentStatus = *header.RentalStatus
		}
		lifecycle.Touch(actor, now)
		if err := s.lifecycles.Save(ctx, q, lifecycle); err != nil {
			return err
		}

		refund := header.DepositAmount.Sub(lifecycle.TotalFees)
		if refund.IsNegative() {
			refund = decimal.Zero
		}

		headerStatus := ""
		if header.RentalStatus != nil {
			headerStatus = string(*header.RentalStatus)
		}
		err = s.repo.AppendEvent(ctx, q, header.ID, &events.RentalReturnData{
			ReturnDate:    input.ReturnDate,
			GoodQty:       totalGood,
			DamagedQty:    totalDamaged,
			BeyondRepair:  totalBeyondRepair,
			LostQty:       totalLost,
			LateFee:       totalLateFee,
			DamagePenalty: totalDamagePenalty,
			DepositRefund: refund,
			DaysLate:      maxDaysLate,
			FullyReturned: fullyReturned,
			HeaderStatus:  headerStatus,
		}, actor, now)
		if err != nil {
			return err
		}

		outcome = &ReturnOutcome{
			Header:        header,
			DepositHeld:   header.DepositAmount,
			LateFee:       totalLateFee,
			DamagePenalty: totalDamagePenalty,
			TotalFees:     lifecycle.TotalFees,
			Refund:        refund,
			DaysLate:      maxDaysLate,
			FullyReturned: fullyReturned,
		}
		return nil
	})
	if err != nil {
		if headerSeen {
			s.recordFailure(ctx, input.RentalID, actor, "process_return", err)
		}
		return nil, err
	}
	return outcome, nil
}

// validateReturnLine checks the bucket arithmetic against the line.
func validateReturnLine(line *TransactionLine, ret ReturnLineInput) error {
	buckets := []decimal.Decimal{ret.GoodQuantity, ret.DamagedQuantity, ret.BeyondRepairQty, ret.LostQuantity}
	sum := decimal.Zero
	for _, b := range buckets {
		if b.IsNegative() {
			return domain.NewValidationError("quantity", "return bucket quantities must be non-negative")
		}
		sum = sum.Add(b)
	}
	if !sum.Equal(ret.TotalQuantity) {
		return domain.NewValidationError("total_quantity",
			"good + damaged + beyond_repair + lost must equal the returned quantity")
	}
	if !ret.TotalQuantity.IsPositive() {
		return domain.NewValidationError("total_quantity", "returned quantity must be positive")
	}
	if line.ReturnedQuantity.Add(ret.TotalQuantity).GreaterThan(line.Quantity) {
		return domain.NewValidationError("total_quantity", "return exceeds outstanding line quantity")
	}
	return nil
}

// returnLineStatus derives the per-line rental status after this return.
// Condition does not matter here: an all-damaged full return still closes
// the line; the damage is carried by the stock buckets and the fees.
func returnLineStatus(line *TransactionLine, late bool) domain.RentalStatus {
	switch {
	case line.IsFullyReturned() && late:
		return domain.RentalStatusLate
	case line.IsFullyReturned():
		return domain.RentalStatusCompleted
	case late:
		return domain.RentalStatusLatePartialReturn
	default:
		return domain.RentalStatusPartialReturn
	}
}

// resolveDispositions maps the per-outcome serial lists onto unit ids.
func (s *Service) resolveDispositions(ctx context.Context, q database.Querier, ret ReturnLineInput) ([]inventory.UnitDisposition, error) {
	groups := []struct {
		serials []string
		outcome inventory.UnitOutcome
	}{
		{ret.GoodSerials, inventory.OutcomeGood},
		{ret.DamagedSerials, inventory.OutcomeDamaged},
		{ret.BeyondRepairSerials, inventory.OutcomeBeyondRepair},
		{ret.LostSerials, inventory.OutcomeLost},
	}

	var all []string
	for _, g := range groups {
		all = append(all, g.serials...)
	}
	dispositions := append([]inventory.UnitDisposition(nil), ret.UnitDispositions...)
	if len(all) == 0 {
		return dispositions, nil
	}

	bySerial, err := s.inv.ResolveSerialsIn(ctx, q, all)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		for _, serial := range g.serials {
			dispositions = append(dispositions, inventory.UnitDisposition{
				UnitID:  bySerial[serial],
				Outcome: g.outcome,
			})
		}
	}
	return dispositions, nil
}
