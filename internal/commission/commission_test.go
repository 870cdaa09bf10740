package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printflow-system/internal/database/models"
	"printflow-system/internal/quotes"
)

func pct(s string) *string { return &s }

func TestComputeBalances_SnapshotPercentWins(t *testing.T) {
	list := []models.Quote{
		{ID: 1, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "1000", CommissionPercent: pct("10")},
		{ID: 2, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "500", CommissionPercent: pct("8")},
	}

	balances := ComputeBalances(list, decimal.NewFromInt(5))

	require.Contains(t, balances, int64(7))
	b := balances[7]
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(140)), "1000*10%% + 500*8%% = 140, got %s", b.Amount)
	assert.Equal(t, 2, b.QuoteCount)
}

func TestComputeBalances_GlobalFallback(t *testing.T) {
	list := []models.Quote{
		{ID: 1, SalespersonID: 3, Status: quotes.StatusDelivered, TotalAmount: "200"},
	}

	balances := ComputeBalances(list, decimal.NewFromInt(5))
	assert.True(t, balances[3].Amount.Equal(decimal.NewFromInt(10)))
}

func TestComputeBalances_OnlyDeliveredUnpaid(t *testing.T) {
	list := []models.Quote{
		{ID: 1, SalespersonID: 4, Status: quotes.StatusProduction, TotalAmount: "1000", CommissionPercent: pct("10")},
		{ID: 2, SalespersonID: 4, Status: quotes.StatusDelivered, TotalAmount: "1000", CommissionPercent: pct("10"), CommissionPaid: true},
		{ID: 3, SalespersonID: 4, Status: quotes.StatusRejected, TotalAmount: "1000", CommissionPercent: pct("10")},
	}

	balances := ComputeBalances(list, decimal.NewFromInt(5))
	assert.NotContains(t, balances, int64(4))
}

func TestComputeBalances_MultipleSalespeople(t *testing.T) {
	list := []models.Quote{
		{ID: 1, SalespersonID: 1, Status: quotes.StatusDelivered, TotalAmount: "100", CommissionPercent: pct("10")},
		{ID: 2, SalespersonID: 2, Status: quotes.StatusDelivered, TotalAmount: "300"},
	}

	balances := ComputeBalances(list, decimal.NewFromInt(5))
	assert.True(t, balances[1].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, balances[2].Amount.Equal(decimal.NewFromInt(15)))
}

func TestEffectivePercent_BadSnapshotFallsBack(t *testing.T) {
	q := models.Quote{CommissionPercent: pct("not-a-number")}
	p := EffectivePercent(&q, decimal.NewFromInt(7))
	assert.True(t, p.Equal(decimal.NewFromInt(7)))
}
