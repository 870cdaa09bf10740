package commission

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"printflow-system/internal/database/models"
)

// ErrNothingPayable is returned when a settlement finds no eligible
// quote, including every repeat call after a successful batch.
var ErrNothingPayable = errors.New("commission: no payable quotes")

// QuoteStore is the narrow storage capability settlement needs.
// Handlers bind it to one database transaction so a batch flips
// all-or-nothing.
type QuoteStore interface {
	// ListPayable returns the salesperson's delivered, unpaid quotes,
	// optionally restricted to the given ids.
	ListPayable(ctx context.Context, salespersonID int64, quoteIDs []int64) ([]models.Quote, error)
	MarkPaid(ctx context.Context, quoteID int64, paidAt time.Time) error
}

// Settlement reports one pay batch: the amount owed for exactly the
// quotes flipped.
type Settlement struct {
	SalespersonID int64
	Amount        decimal.Decimal
	QuoteIDs      []int64
	PaidAt        time.Time
}

// Settle marks all, and only, the salesperson's payable quotes as paid.
// Eligibility is re-checked per quote, so a store returning stale rows
// can never settle a draft or pay a quote twice. With no eligible
// quotes the batch is ErrNothingPayable — a second call for the same
// salesperson therefore pays nothing.
func Settle(ctx context.Context, salespersonID int64, quoteIDs []int64, globalPercent decimal.Decimal, store QuoteStore) (*Settlement, error) {
	list, err := store.ListPayable(ctx, salespersonID, quoteIDs)
	if err != nil {
		return nil, err
	}

	st := &Settlement{SalespersonID: salespersonID, PaidAt: time.Now()}

	for i := range list {
		q := &list[i]
		if q.SalespersonID != salespersonID || !Eligible(q) {
			continue
		}

		if err := store.MarkPaid(ctx, q.ID, st.PaidAt); err != nil {
			return nil, err
		}

		total, err := decimal.NewFromString(q.TotalAmount)
		if err != nil {
			total = decimal.Zero
		}
		st.Amount = st.Amount.Add(total.Mul(EffectivePercent(q, globalPercent)).Div(hundred))
		st.QuoteIDs = append(st.QuoteIDs, q.ID)
	}

	if len(st.QuoteIDs) == 0 {
		return nil, ErrNothingPayable
	}
	return st, nil
}
