/*
settlement.go - Driver settlement summaries

PURPOSE:
  Aggregates persisted payables for one driver/carrier over a date range
  into the numbers a settlement statement shows: gross pay, deductions,
  net, and a per-category breakdown. Read-only; the item set is the source
  of truth and the summary is always recomputed from it.

EXAMPLE:
  calc := &pay.SettlementCalculator{Payables: store}
  s, err := calc.Calculate(ctx, orgID, driverID, weekStart, weekEnd)
  fmt.Println(s.NetPay) // gross + deductions (deductions are negative)

SEE ALSO:
  - store.go: PayableStore.ListItemsInRange
*/
package pay

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTLEMENT SUMMARY
// =============================================================================

// Settlement is the aggregate of a subject's payables over a range.
type Settlement struct {
	OrgID     OrgID
	SubjectID SubjectID
	From      time.Time
	To        time.Time

	// GrossPay is base + accessorial (non-negative categories only).
	GrossPay decimal.Decimal

	// Deductions is the signed sum of deduction items (<= 0).
	Deductions decimal.Decimal

	// NetPay = GrossPay + Deductions.
	NetPay decimal.Decimal

	ItemCount  int
	ByCategory map[RuleCategory]decimal.Decimal

	// WarnedItems counts items carrying a warning, so statements can
	// surface "review before paying".
	WarnedItems int
}

// =============================================================================
// SETTLEMENT CALCULATOR
// =============================================================================

type SettlementCalculator struct {
	Payables PayableStore
}

// Calculate sums the subject's payables whose load delivered in [from, to].
func (sc *SettlementCalculator) Calculate(
	ctx context.Context,
	orgID OrgID,
	subjectID SubjectID,
	from, to time.Time,
) (*Settlement, error) {
	items, err := sc.Payables.ListItemsInRange(ctx, orgID, subjectID, from, to)
	if err != nil {
		return nil, err
	}

	s := &Settlement{
		OrgID:      orgID,
		SubjectID:  subjectID,
		From:       from,
		To:         to,
		GrossPay:   decimal.Zero,
		Deductions: decimal.Zero,
		ByCategory: map[RuleCategory]decimal.Decimal{
			CategoryBase:        decimal.Zero,
			CategoryAccessorial: decimal.Zero,
			CategoryDeduction:   decimal.Zero,
		},
	}

	for _, item := range items {
		s.ItemCount++
		s.ByCategory[item.Category] = s.ByCategory[item.Category].Add(item.Signed())
		if item.Category == CategoryDeduction {
			s.Deductions = s.Deductions.Add(item.Signed())
		} else {
			s.GrossPay = s.GrossPay.Add(item.Signed())
		}
		if item.WarningMessage != "" {
			s.WarnedItems++
		}
	}
	s.NetPay = s.GrossPay.Add(s.Deductions)

	return s, nil
}
