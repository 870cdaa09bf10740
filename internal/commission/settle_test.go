package commission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printflow-system/internal/database/models"
	"printflow-system/internal/quotes"
)

type memQuoteStore struct {
	quotes map[int64]*models.Quote
}

func newMemQuoteStore(list ...*models.Quote) *memQuoteStore {
	m := &memQuoteStore{quotes: make(map[int64]*models.Quote)}
	for _, q := range list {
		m.quotes[q.ID] = q
	}
	return m
}

func (m *memQuoteStore) ListPayable(_ context.Context, salespersonID int64, quoteIDs []int64) ([]models.Quote, error) {
	wanted := make(map[int64]bool, len(quoteIDs))
	for _, id := range quoteIDs {
		wanted[id] = true
	}

	var out []models.Quote
	for _, q := range m.quotes {
		if q.SalespersonID != salespersonID || q.Status != quotes.StatusDelivered || q.CommissionPaid {
			continue
		}
		if len(quoteIDs) > 0 && !wanted[q.ID] {
			continue
		}
		out = append(out, *q)
	}
	return out, nil
}

func (m *memQuoteStore) MarkPaid(_ context.Context, quoteID int64, paidAt time.Time) error {
	q := m.quotes[quoteID]
	q.CommissionPaid = true
	q.CommissionPaidAt = &paidAt
	return nil
}

func (m *memQuoteStore) all() []models.Quote {
	out := make([]models.Quote, 0, len(m.quotes))
	for _, q := range m.quotes {
		out = append(out, *q)
	}
	return out
}

func TestSettle_FlipsAllAndOnlyEligibleQuotes(t *testing.T) {
	store := newMemQuoteStore(
		&models.Quote{ID: 1, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "1000", CommissionPercent: pct("10")},
		&models.Quote{ID: 2, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "400", CommissionPercent: pct("10")},
		&models.Quote{ID: 3, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "999", CommissionPaid: true},
		&models.Quote{ID: 4, SalespersonID: 7, Status: quotes.StatusDraft, TotalAmount: "500"},
		&models.Quote{ID: 5, SalespersonID: 8, Status: quotes.StatusDelivered, TotalAmount: "300", CommissionPercent: pct("10")},
	)

	st, err := Settle(context.Background(), 7, nil, decimal.NewFromInt(5), store)
	require.NoError(t, err)

	// 10% of 1000 + 10% of 400.
	assert.True(t, st.Amount.Equal(decimal.NewFromInt(140)), "got %s", st.Amount)
	assert.ElementsMatch(t, []int64{1, 2}, st.QuoteIDs)

	assert.True(t, store.quotes[1].CommissionPaid)
	assert.True(t, store.quotes[2].CommissionPaid)
	require.NotNil(t, store.quotes[1].CommissionPaidAt)

	// Other salespeople and non-delivered or already-paid quotes stay
	// exactly as they were.
	assert.False(t, store.quotes[4].CommissionPaid)
	assert.False(t, store.quotes[5].CommissionPaid)
	assert.Nil(t, store.quotes[4].CommissionPaidAt)
	assert.Nil(t, store.quotes[5].CommissionPaidAt)
}

func TestSettle_SecondCallPaysNothing(t *testing.T) {
	store := newMemQuoteStore(
		&models.Quote{ID: 1, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "1000", CommissionPercent: pct("10")},
	)

	_, err := Settle(context.Background(), 7, nil, decimal.Zero, store)
	require.NoError(t, err)

	_, err = Settle(context.Background(), 7, nil, decimal.Zero, store)
	assert.ErrorIs(t, err, ErrNothingPayable)

	balances := ComputeBalances(store.all(), decimal.Zero)
	_, ok := balances[7]
	assert.False(t, ok, "a settled salesperson accrues a zero balance")
}

func TestSettle_ExplicitQuoteSubset(t *testing.T) {
	store := newMemQuoteStore(
		&models.Quote{ID: 1, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "1000", CommissionPercent: pct("10")},
		&models.Quote{ID: 2, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "400", CommissionPercent: pct("10")},
	)

	st, err := Settle(context.Background(), 7, []int64{2}, decimal.Zero, store)
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, st.QuoteIDs)
	assert.True(t, st.Amount.Equal(decimal.NewFromInt(40)), "got %s", st.Amount)
	assert.False(t, store.quotes[1].CommissionPaid, "quotes outside the batch stay payable")
}

func TestSettle_StaleStoreRowsRecheckedForEligibility(t *testing.T) {
	store := newMemQuoteStore(
		&models.Quote{ID: 1, SalespersonID: 7, Status: quotes.StatusDelivered, TotalAmount: "100"},
	)
	stale := staleStore{store}

	st, err := Settle(context.Background(), 7, nil, decimal.NewFromInt(10), stale)
	require.NoError(t, err)

	// Only the genuinely eligible quote settles; the leaked rows are
	// filtered out before any flip.
	assert.Equal(t, []int64{1}, st.QuoteIDs)
	assert.True(t, st.Amount.Equal(decimal.NewFromInt(10)), "got %s", st.Amount)
}

// staleStore leaks a draft quote and another salesperson's quote into
// the payable list, as a lagging read might.
type staleStore struct {
	*memQuoteStore
}

func (s staleStore) ListPayable(ctx context.Context, salespersonID int64, quoteIDs []int64) ([]models.Quote, error) {
	list, err := s.memQuoteStore.ListPayable(ctx, salespersonID, quoteIDs)
	if err != nil {
		return nil, err
	}
	list = append(list,
		models.Quote{ID: 98, SalespersonID: salespersonID, Status: quotes.StatusDraft, TotalAmount: "500"},
		models.Quote{ID: 99, SalespersonID: salespersonID + 1, Status: quotes.StatusDelivered, TotalAmount: "500"},
	)
	return list, nil
}
