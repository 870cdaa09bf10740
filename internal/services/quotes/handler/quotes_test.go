package handler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"printflow-system/internal/database/models"
	"printflow-system/internal/quotes"
)

func TestEditableQuote_PreConfirmationStatuses(t *testing.T) {
	for _, status := range []string{quotes.StatusDraft, quotes.StatusSent, quotes.StatusNegotiating} {
		q := models.Quote{ID: 1, Status: status}
		assert.NoError(t, editableQuote(&q), status)
	}
}

func TestEditableQuote_FrozenPastConfirmation(t *testing.T) {
	for _, status := range []string{quotes.StatusConfirmed, quotes.StatusProduction, quotes.StatusDelivered, quotes.StatusRejected} {
		q := models.Quote{ID: 1, Status: status}
		assert.Error(t, editableQuote(&q), status)
	}
}

func TestEditableQuote_StockDeductedFreezesDraft(t *testing.T) {
	// An explicit deduct-stock call can happen while the quote is still
	// a draft; the ledger rows pin the item list from that point on.
	q := models.Quote{ID: 1, Status: quotes.StatusDraft, StockDeducted: true}
	assert.Error(t, editableQuote(&q))
}

func TestComputeLogisticsFee(t *testing.T) {
	cfg := models.FinancialConfig{
		LogisticsRatePerKm: "2.50",
		LogisticsFixedFee:  "10",
	}

	fee := computeLogisticsFee(decimal.NewFromInt(12), cfg)
	assert.True(t, fee.Equal(decimal.RequireFromString("40")), "12km x 2.50 + 10, got %s", fee)
}

func TestComputeLogisticsFee_NoDelivery(t *testing.T) {
	cfg := models.FinancialConfig{
		LogisticsRatePerKm: "2.50",
		LogisticsFixedFee:  "10",
	}

	// Pickup orders pay neither the per-km rate nor the fixed fee.
	fee := computeLogisticsFee(decimal.Zero, cfg)
	assert.True(t, fee.IsZero())
}

func TestComputeTotal(t *testing.T) {
	total := computeTotal(
		decimal.RequireFromString("1000"), // items
		decimal.RequireFromString("10"),   // discount %
		decimal.RequireFromString("150"),  // design fee
		decimal.RequireFromString("50"),   // install fee
		decimal.RequireFromString("35"),   // logistics
	)
	// 1000 * 0.9 + 150 + 50 + 35
	assert.True(t, total.Equal(decimal.RequireFromString("1135")), "got %s", total)
}

func TestComputeTotal_DiscountOnlyAppliesToItems(t *testing.T) {
	withFees := computeTotal(
		decimal.RequireFromString("200"),
		decimal.RequireFromString("50"),
		decimal.RequireFromString("100"),
		decimal.Zero,
		decimal.Zero,
	)
	assert.True(t, withFees.Equal(decimal.RequireFromString("200")), "got %s", withFees)
}
