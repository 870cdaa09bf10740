package commission

import (
	"github.com/shopspring/decimal"

	"printflow-system/internal/database/models"
	"printflow-system/internal/quotes"
)

// Balance is the payable commission accrued by one salesperson.
type Balance struct {
	Amount     decimal.Decimal
	QuoteCount int
}

var hundred = decimal.NewFromInt(100)

// ComputeBalances derives per-salesperson payable commission. Only
// delivered, unpaid quotes accrue; each contributes totalAmount times
// its snapshotted percentage, falling back to the global rate when no
// snapshot exists. Quotes with unparseable totals contribute nothing.
func ComputeBalances(list []models.Quote, globalPercent decimal.Decimal) map[int64]Balance {
	balances := make(map[int64]Balance)

	for _, q := range list {
		if !Eligible(&q) {
			continue
		}

		total, err := decimal.NewFromString(q.TotalAmount)
		if err != nil {
			continue
		}

		b := balances[q.SalespersonID]
		b.Amount = b.Amount.Add(total.Mul(EffectivePercent(&q, globalPercent)).Div(hundred))
		b.QuoteCount++
		balances[q.SalespersonID] = b
	}

	return balances
}

// Eligible reports whether a quote accrues payable commission.
func Eligible(q *models.Quote) bool {
	return q.Status == quotes.StatusDelivered && !q.CommissionPaid
}

// EffectivePercent returns the quote's snapshotted commission rate when
// present, otherwise the global rate.
func EffectivePercent(q *models.Quote, globalPercent decimal.Decimal) decimal.Decimal {
	if q.CommissionPercent != nil {
		if p, err := decimal.NewFromString(*q.CommissionPercent); err == nil {
			return p
		}
	}
	return globalPercent
}
