// Package ledger holds the pure arithmetic of the inventory ledger: netting
// adjustments, reconciling a closed ledger row into sales figures, and
// ordering the shows of a tour. Nothing here touches storage.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"merchledger/internal/domain"
)

var ErrOpenRow = errors.New("end inventory not recorded")

var hundred = decimal.NewFromInt(100)

// Summary holds per-kind quantities and the unrounded discount amount.
type Summary struct {
	Restock       int
	Giveaway      int
	Loss          int
	Discount      int
	TotalDiscount decimal.Decimal
}

func (s Summary) Totals() domain.AdjustmentTotals {
	return domain.AdjustmentTotals{
		Restock:  s.Restock,
		Giveaway: s.Giveaway,
		Loss:     s.Loss,
		Discount: s.Discount,
	}
}

// NetQuantityDelta is restocked minus given-away minus lost units. Discount
// adjustments describe sold units and do not move stock.
func NetQuantityDelta(adjustments []domain.Adjustment) int {
	delta := 0
	for _, adj := range adjustments {
		switch adj.Kind {
		case domain.AdjustmentRestock:
			delta += adj.Quantity
		case domain.AdjustmentGiveaway, domain.AdjustmentLoss:
			delta -= adj.Quantity
		}
	}
	return delta
}

// DiscountAmount is the monetary discount of a single adjustment, zero for
// anything that is not a discount.
func DiscountAmount(adj domain.Adjustment, unitPrice decimal.Decimal) decimal.Decimal {
	if adj.Kind != domain.AdjustmentDiscount || adj.Discount == nil {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(int64(adj.Quantity))
	switch adj.Discount.Type {
	case domain.DiscountFixed:
		return adj.Discount.Value.Mul(qty)
	case domain.DiscountPercentage:
		return unitPrice.Mul(adj.Discount.Value).Div(hundred).Mul(qty)
	default:
		return decimal.Zero
	}
}

func Summarize(adjustments []domain.Adjustment, unitPrice decimal.Decimal) Summary {
	summary := Summary{TotalDiscount: decimal.Zero}
	for _, adj := range adjustments {
		switch adj.Kind {
		case domain.AdjustmentRestock:
			summary.Restock += adj.Quantity
		case domain.AdjustmentGiveaway:
			summary.Giveaway += adj.Quantity
		case domain.AdjustmentLoss:
			summary.Loss += adj.Quantity
		case domain.AdjustmentDiscount:
			summary.Discount += adj.Quantity
			summary.TotalDiscount = summary.TotalDiscount.Add(DiscountAmount(adj, unitPrice))
		}
	}
	return summary
}

// RoundMoney rounds to cents. Call it only when a figure leaves the engine.
func RoundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

// Figures are the unrounded sales numbers of one closed ledger row.
type Figures struct {
	Summary
	Start      int
	End        int
	Sold       int
	Revenue    decimal.Decimal
	NetRevenue decimal.Decimal
}

// Reconcile derives sold units and revenue for a closed row:
// sold = start + net delta - end.
func Reconcile(row domain.ShowInventory, unitPrice decimal.Decimal, adjustments []domain.Adjustment) (Figures, error) {
	if row.EndInventory == nil {
		return Figures{}, ErrOpenRow
	}
	summary := Summarize(adjustments, unitPrice)
	end := *row.EndInventory
	sold := row.StartInventory + NetQuantityDelta(adjustments) - end
	revenue := unitPrice.Mul(decimal.NewFromInt(int64(sold)))

	return Figures{
		Summary:    summary,
		Start:      row.StartInventory,
		End:        end,
		Sold:       sold,
		Revenue:    revenue,
		NetRevenue: revenue.Sub(summary.TotalDiscount),
	}, nil
}

// CarriedStart is the opening stock the next show inherits from a closed row.
//
// The recorded end count is a physical count that may already reflect the
// adjustments logged during the show; adding the net delta on top counts
// those adjustments twice. This is kept deliberately so carried stock
// matches the historical ledger, but it is probably a double-counting bug.
func CarriedStart(previous domain.ShowInventory, adjustments []domain.Adjustment) (int, error) {
	if previous.EndInventory == nil {
		return 0, ErrOpenRow
	}
	return *previous.EndInventory + NetQuantityDelta(adjustments), nil
}

// Accumulator sums row figures without rounding.
type Accumulator struct {
	sold          int
	revenue       decimal.Decimal
	totalDiscount decimal.Decimal
	netRevenue    decimal.Decimal
	adjustments   domain.AdjustmentTotals
}

func (a *Accumulator) Add(f Figures) {
	a.sold += f.Sold
	a.revenue = a.revenue.Add(f.Revenue)
	a.totalDiscount = a.totalDiscount.Add(f.TotalDiscount)
	a.netRevenue = a.netRevenue.Add(f.NetRevenue)
	a.adjustments.Restock += f.Restock
	a.adjustments.Giveaway += f.Giveaway
	a.adjustments.Loss += f.Loss
	a.adjustments.Discount += f.Discount
}

func (a *Accumulator) Merge(other Accumulator) {
	a.sold += other.sold
	a.revenue = a.revenue.Add(other.revenue)
	a.totalDiscount = a.totalDiscount.Add(other.totalDiscount)
	a.netRevenue = a.netRevenue.Add(other.netRevenue)
	a.adjustments.Restock += other.adjustments.Restock
	a.adjustments.Giveaway += other.adjustments.Giveaway
	a.adjustments.Loss += other.adjustments.Loss
	a.adjustments.Discount += other.adjustments.Discount
}

// Totals reports the accumulated figures rounded to cents.
func (a Accumulator) Totals() domain.StatsTotals {
	return domain.StatsTotals{
		Sold:          a.sold,
		Revenue:       RoundMoney(a.revenue),
		TotalDiscount: RoundMoney(a.totalDiscount),
		NetRevenue:    RoundMoney(a.netRevenue),
		Adjustments:   a.adjustments,
	}
}
