package transactions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/inventory"
)

// openRental creates a rental of qty units of the fixture item and returns
// its header. Start/end default to a two-day window from the fixture clock.
func openRental(t *testing.T, fx *txFixture, qty string, days int) *TransactionHeader {
	t.Helper()
	header, err := fx.svc.CreateRental(context.Background(), fx.actor, RentalInput{
		CustomerID: fx.customerID,
		LocationID: fx.locID,
		StartDate:  fx.clock,
		EndDate:    fx.clock.AddDate(0, 0, days),
		Lines:      []RentalLineInput{{ItemID: fx.itemID, Quantity: d(qty)}},
	})
	require.NoError(t, err)
	return header
}

func TestProcessReturnAllGood(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "3", 2)

	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:        header.Lines[0].ID,
			TotalQuantity: d("3"),
			GoodQuantity:  d("3"),
		}},
	})
	require.NoError(t, err)

	assert.True(t, outcome.FullyReturned)
	assert.Equal(t, 0, outcome.DaysLate)
	assert.True(t, outcome.LateFee.IsZero())
	assert.True(t, outcome.Refund.Equal(d("1500")), "full deposit back, got %s", outcome.Refund)
	assert.Equal(t, domain.TransactionStatusCompleted, outcome.Header.Status)
	require.NotNil(t, outcome.Header.RentalStatus)
	assert.Equal(t, domain.RentalStatusCompleted, *outcome.Header.RentalStatus)

	require.Len(t, fx.inv.returns, 1)
	assert.True(t, fx.inv.returns[0].Quantity.Equal(d("3")))
	assert.True(t, fx.inv.returns[0].DamagedQty.IsZero())
}

func TestProcessReturnMixedCondition(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "3", 2)

	estimate := d("120")
	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:          header.Lines[0].ID,
			TotalQuantity:   d("3"),
			GoodQuantity:    d("2"),
			DamagedQuantity: d("1"),
			DamagePenalty:   d("200"),
			DamageDetails: []DamageDetail{{
				DamageType:         "cracked housing",
				Severity:           "moderate",
				RepairCostEstimate: &estimate,
			}},
		}},
	})
	require.NoError(t, err)

	assert.True(t, outcome.FullyReturned)
	assert.True(t, outcome.DamagePenalty.Equal(d("200")))
	// Deposit 1500 minus damage penalty 200.
	assert.True(t, outcome.Refund.Equal(d("1300")), "got %s", outcome.Refund)

	require.Len(t, fx.inv.returns, 1)
	ret := fx.inv.returns[0]
	assert.True(t, ret.Quantity.Equal(d("3")))
	assert.True(t, ret.DamagedQty.Equal(d("1")), "damaged quantity routed to the damaged bucket")

	require.Len(t, fx.lifecycles.inspections, 1)
	ins := fx.lifecycles.inspections[0]
	assert.Equal(t, "cracked housing", ins.DamageType)
	require.NotNil(t, ins.RepairCostEstimate)
	assert.True(t, ins.RepairCostEstimate.Equal(d("120")))

	lifecycle := fx.lifecycles.byHeader[header.ID]
	assert.True(t, lifecycle.TotalDamageFees.Equal(d("200")))
	assert.True(t, lifecycle.TotalFees.Equal(d("200")))
}

func TestProcessReturnAllDamagedCompletesLine(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "2", 2)

	// Everything comes back broken, on time. The line is still closed; the
	// damage shows up in the buckets and the penalty, not the status.
	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:          header.Lines[0].ID,
			TotalQuantity:   d("2"),
			DamagedQuantity: d("1"),
			BeyondRepairQty: d("1"),
			DamagePenalty:   d("300"),
		}},
	})
	require.NoError(t, err)

	assert.True(t, outcome.FullyReturned)
	line := fx.repo.lines[header.Lines[0].ID]
	require.NotNil(t, line.RentalStatus)
	assert.Equal(t, domain.RentalStatusCompleted, *line.RentalStatus)
	assert.Equal(t, domain.TransactionStatusCompleted, outcome.Header.Status)
}

func TestReturnLineStatus(t *testing.T) {
	full := &TransactionLine{Quantity: d("2"), ReturnedQuantity: d("2")}
	partial := &TransactionLine{Quantity: d("2"), ReturnedQuantity: d("1")}

	assert.Equal(t, domain.RentalStatusCompleted, returnLineStatus(full, false))
	assert.Equal(t, domain.RentalStatusLate, returnLineStatus(full, true))
	assert.Equal(t, domain.RentalStatusPartialReturn, returnLineStatus(partial, false))
	assert.Equal(t, domain.RentalStatusLatePartialReturn, returnLineStatus(partial, true))
}

func TestProcessReturnLate(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "1", 2)

	// Due after 2 days, returned 5 days after that.
	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 7),
		Lines: []ReturnLineInput{{
			LineID:        header.Lines[0].ID,
			TotalQuantity: d("1"),
			GoodQuantity:  d("1"),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, outcome.DaysLate)
	// Daily rate 75, 5 days, 1 unit.
	assert.True(t, outcome.LateFee.Equal(d("375")), "got %s", outcome.LateFee)
	assert.True(t, outcome.Refund.Equal(d("125")), "deposit 500 minus 375 late fee")

	line := fx.repo.lines[header.Lines[0].ID]
	require.NotNil(t, line.RentalStatus)
	assert.Equal(t, domain.RentalStatusLate, *line.RentalStatus)
	require.NotNil(t, outcome.Header.RentalStatus)
	assert.Equal(t, domain.RentalStatusLate, *outcome.Header.RentalStatus)
}

func TestProcessReturnRefundNeverNegative(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "1", 2)

	// Late fee 375 + damage 400 exceeds the 500 deposit.
	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 7),
		Lines: []ReturnLineInput{{
			LineID:          header.Lines[0].ID,
			TotalQuantity:   d("1"),
			DamagedQuantity: d("1"),
			DamagePenalty:   d("400"),
		}},
	})
	require.NoError(t, err)

	assert.True(t, outcome.TotalFees.Equal(d("775")))
	assert.True(t, outcome.Refund.IsZero(), "refund clamps at zero, got %s", outcome.Refund)
}

func TestProcessReturnPartial(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "3", 2)

	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 1),
		Lines: []ReturnLineInput{{
			LineID:        header.Lines[0].ID,
			TotalQuantity: d("1"),
			GoodQuantity:  d("1"),
		}},
	})
	require.NoError(t, err)

	assert.False(t, outcome.FullyReturned)
	require.NotNil(t, outcome.Header.RentalStatus)
	assert.Equal(t, domain.RentalStatusPartialReturn, *outcome.Header.RentalStatus)
	assert.Equal(t, domain.TransactionStatusInProgress, outcome.Header.Status,
		"header stays open until every line is back")

	// Returning the remainder on time completes the rental.
	outcome, err = fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:        header.Lines[0].ID,
			TotalQuantity: d("2"),
			GoodQuantity:  d("2"),
		}},
	})
	require.NoError(t, err)
	assert.True(t, outcome.FullyReturned)
	assert.Equal(t, domain.RentalStatusCompleted, *outcome.Header.RentalStatus)
}

func TestProcessReturnFeesAccumulateAcrossReturns(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "2", 2)
	lineID := header.Lines[0].ID

	_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 1),
		Lines: []ReturnLineInput{{
			LineID: lineID, TotalQuantity: d("1"), DamagedQuantity: d("1"), DamagePenalty: d("100"),
		}},
	})
	require.NoError(t, err)

	outcome, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID: lineID, TotalQuantity: d("1"), GoodQuantity: d("1"),
		}},
		OtherFees: d("25"),
	})
	require.NoError(t, err)

	assert.True(t, outcome.TotalFees.Equal(d("125")), "fees from both returns, got %s", outcome.TotalFees)
	// Deposit 1000 minus the accumulated 125.
	assert.True(t, outcome.Refund.Equal(d("875")))
}

func TestProcessReturnValidation(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "3", 2)
	lineID := header.Lines[0].ID

	t.Run("buckets must sum to total", func(t *testing.T) {
		_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
			RentalID:   header.ID,
			ReturnDate: fx.clock,
			Lines: []ReturnLineInput{{
				LineID: lineID, TotalQuantity: d("2"), GoodQuantity: d("1"),
			}},
		})
		require.Error(t, err)
		assert.ErrorAs(t, err, new(*domain.ValidationError))
	})

	t.Run("cannot return more than outstanding", func(t *testing.T) {
		_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
			RentalID:   header.ID,
			ReturnDate: fx.clock,
			Lines: []ReturnLineInput{{
				LineID: lineID, TotalQuantity: d("4"), GoodQuantity: d("4"),
			}},
		})
		require.Error(t, err)
		assert.ErrorAs(t, err, new(*domain.ValidationError))
	})

	t.Run("unknown line", func(t *testing.T) {
		_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
			RentalID:   header.ID,
			ReturnDate: fx.clock,
			Lines: []ReturnLineInput{{
				LineID: uuid.New(), TotalQuantity: d("1"), GoodQuantity: d("1"),
			}},
		})
		require.Error(t, err)
		assert.ErrorAs(t, err, new(*domain.NotFoundError))
	})

	t.Run("not a rental", func(t *testing.T) {
		sale, err := fx.svc.CreateSale(context.Background(), fx.actor, SaleInput{
			CustomerID: fx.customerID,
			LocationID: fx.locID,
			Lines:      []SaleLineInput{{ItemID: fx.itemID, Quantity: d("1")}},
		})
		require.NoError(t, err)
		_, err = fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
			RentalID:   sale.ID,
			ReturnDate: fx.clock,
			Lines: []ReturnLineInput{{
				LineID: sale.Lines[0].ID, TotalQuantity: d("1"), GoodQuantity: d("1"),
			}},
		})
		require.Error(t, err)
	})

	t.Run("no lines", func(t *testing.T) {
		_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
			RentalID: header.ID, ReturnDate: fx.clock,
		})
		require.Error(t, err)
	})
}

func TestProcessReturnResolvesSerials(t *testing.T) {
	fx := newTxFixture(t)
	goodID, damagedID := uuid.New(), uuid.New()
	fx.inv.serials["SN-001"] = goodID
	fx.inv.serials["SN-002"] = damagedID

	header := openRental(t, fx, "2", 2)
	_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:          header.Lines[0].ID,
			TotalQuantity:   d("2"),
			GoodQuantity:    d("1"),
			DamagedQuantity: d("1"),
			GoodSerials:     []string{"SN-001"},
			DamagedSerials:  []string{"SN-002"},
		}},
	})
	require.NoError(t, err)

	require.Len(t, fx.inv.returns, 1)
	dispositions := fx.inv.returns[0].Dispositions
	require.Len(t, dispositions, 2)
	byUnit := make(map[uuid.UUID]inventory.UnitOutcome, len(dispositions))
	for _, disp := range dispositions {
		byUnit[disp.UnitID] = disp.Outcome
	}
	assert.Equal(t, inventory.OutcomeGood, byUnit[goodID])
	assert.Equal(t, inventory.OutcomeDamaged, byUnit[damagedID])
}

func TestProcessReturnUnknownSerial(t *testing.T) {
	fx := newTxFixture(t)
	header := openRental(t, fx, "1", 2)

	_, err := fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		RentalID:   header.ID,
		ReturnDate: fx.clock.AddDate(0, 0, 2),
		Lines: []ReturnLineInput{{
			LineID:        header.Lines[0].ID,
			TotalQuantity: d("1"),
			GoodQuantity:  d("1"),
			GoodSerials:   []string{"SN-MISSING"},
		}},
	})
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*domain.NotFoundError))
}

func TestRentalLifecycleFeeSum(t *testing.T) {
	lc := RentalLifecycle{}
	lc.AddFees(d("10.005"), d("20"), d("0"))
	// Money rounding is half-up to two places.
	assert.True(t, lc.TotalLateFees.Equal(d("10.01")))
	assert.True(t, lc.TotalFees.Equal(d("30.01")))

	lc.AddFees(d("5"), d("0"), d("2.50"))
	assert.True(t, lc.TotalFees.Equal(d("37.51")))
}
