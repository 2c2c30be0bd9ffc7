package pay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/pay-engine/pay"
	paystore "github.com/linehaul/pay-engine/pay/store"
)

func settlementFixture(t *testing.T) (*pay.SettlementCalculator, *paystore.Memory) {
	t.Helper()
	mem := paystore.NewMemory()
	return &pay.SettlementCalculator{Payables: mem}, mem
}

func addLegItems(t *testing.T, mem *paystore.Memory, legID string, delivered time.Time, items ...pay.LineItem) {
	t.Helper()
	mem.SetLegMeta(pay.LegID(legID), paystore.LegMeta{
		OrgID:       "org-1",
		SubjectID:   "drv-1",
		DeliveredAt: delivered,
	})
	for i := range items {
		items[i].LegID = pay.LegID(legID)
	}
	require.NoError(t, mem.ReplaceSystemItems(context.Background(), pay.LegID(legID), items))
}

func TestSettlement_GrossDeductionsNet(t *testing.T) {
	// GIVEN: one delivered leg with base 275, accessorial 50, deduction -45
	// WHEN: a settlement is calculated over a range containing it
	// THEN: gross 325, deductions -45, net 280, per-category breakdown matches

	calc, mem := settlementFixture(t)
	delivered := time.Date(2026, time.August, 10, 14, 0, 0, 0, time.UTC)

	addLegItems(t, mem, "leg-1", delivered,
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryBase, TotalAmount: pay.MustDec("275")},
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryAccessorial, TotalAmount: pay.MustDec("50")},
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryDeduction, TotalAmount: pay.MustDec("-45")},
	)

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 23, 59, 59, 0, time.UTC)
	s, err := calc.Calculate(context.Background(), "org-1", "drv-1", from, to)
	require.NoError(t, err)

	assert.True(t, s.GrossPay.Equal(pay.MustDec("325")), "gross: got %s", s.GrossPay)
	assert.True(t, s.Deductions.Equal(pay.MustDec("-45")), "deductions: got %s", s.Deductions)
	assert.True(t, s.NetPay.Equal(pay.MustDec("280")), "net: got %s", s.NetPay)
	assert.Equal(t, 3, s.ItemCount)
	assert.True(t, s.ByCategory[pay.CategoryBase].Equal(pay.MustDec("275")))
	assert.True(t, s.ByCategory[pay.CategoryAccessorial].Equal(pay.MustDec("50")))
	assert.True(t, s.ByCategory[pay.CategoryDeduction].Equal(pay.MustDec("-45")))
}

func TestSettlement_RangeFiltering(t *testing.T) {
	// Legs delivered outside [from, to] never contribute.
	calc, mem := settlementFixture(t)

	addLegItems(t, mem, "leg-in", time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC),
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryBase, TotalAmount: pay.MustDec("100")},
	)
	addLegItems(t, mem, "leg-late", time.Date(2026, time.August, 20, 9, 0, 0, 0, time.UTC),
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryBase, TotalAmount: pay.MustDec("999")},
	)

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 23, 59, 59, 0, time.UTC)
	s, err := calc.Calculate(context.Background(), "org-1", "drv-1", from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, s.ItemCount, "only the in-range item should count")
	assert.True(t, s.NetPay.Equal(pay.MustDec("100")), "net: got %s", s.NetPay)
}

func TestSettlement_ManualItemsIncluded(t *testing.T) {
	calc, mem := settlementFixture(t)
	delivered := time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC)

	addLegItems(t, mem, "leg-1", delivered,
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryBase, TotalAmount: pay.MustDec("200")},
	)
	require.NoError(t, mem.AddManualItem(context.Background(), pay.LineItem{
		LegID: "leg-1", Source: pay.SourceManual,
		Category: pay.CategoryAccessorial, Description: "Layover",
		TotalAmount: pay.MustDec("75"), CreatedBy: "dispatch",
	}))

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	s, err := calc.Calculate(context.Background(), "org-1", "drv-1", from, to)
	require.NoError(t, err)

	assert.True(t, s.NetPay.Equal(pay.MustDec("275")), "manual item missing from net: %s", s.NetPay)
}

func TestSettlement_WarnedItemsCounted(t *testing.T) {
	// Items carrying warnings still pay out but are counted for review.
	calc, mem := settlementFixture(t)
	delivered := time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC)

	addLegItems(t, mem, "leg-1", delivered,
		pay.LineItem{
			Source: pay.SourceSystem, Category: pay.CategoryBase,
			TotalAmount:    pay.MustDec("275"),
			WarningMessage: "paid miles 500 diverge from contract miles 400 by more than 10%",
		},
		pay.LineItem{Source: pay.SourceSystem, Category: pay.CategoryAccessorial, TotalAmount: pay.MustDec("50")},
	)

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	s, err := calc.Calculate(context.Background(), "org-1", "drv-1", from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, s.WarnedItems)
	assert.True(t, s.NetPay.Equal(pay.MustDec("325")), "warned items still pay: got %s", s.NetPay)
}

func TestSettlement_EmptyRange(t *testing.T) {
	calc, _ := settlementFixture(t)

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	s, err := calc.Calculate(context.Background(), "org-1", "drv-1", from, to)
	require.NoError(t, err)

	assert.Equal(t, 0, s.ItemCount)
	assert.True(t, s.NetPay.IsZero())
}
