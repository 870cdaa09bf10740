package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printflow-system/internal/database/models"
)

// In-memory stores backing the algorithm in tests.

type memProducts struct {
	products map[int64]*models.Product
	stocks   map[int64]decimal.Decimal
}

func newMemProducts(products ...*models.Product) *memProducts {
	m := &memProducts{
		products: make(map[int64]*models.Product),
		stocks:   make(map[int64]decimal.Decimal),
	}
	for _, p := range products {
		m.products[p.ID] = p
		m.stocks[p.ID] = decimal.RequireFromString(p.Stock)
	}
	return m
}

func (m *memProducts) Get(_ context.Context, id int64) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *memProducts) UpdateStock(_ context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := m.products[id]; !ok {
		return decimal.Zero, ErrNotFound
	}
	m.stocks[id] = m.stocks[id].Add(delta)
	return m.stocks[id], nil
}

type memLog struct {
	entries []*models.InventoryTransaction
}

func (m *memLog) Append(_ context.Context, entry *models.InventoryTransaction) error {
	m.entries = append(m.entries, entry)
	return nil
}

type memQuotes struct {
	deducted map[int64]bool
}

func (m *memQuotes) ClaimStockDeduction(_ context.Context, quoteID int64) (bool, error) {
	if m.deducted == nil {
		m.deducted = make(map[int64]bool)
	}
	if m.deducted[quoteID] {
		return false, nil
	}
	m.deducted[quoteID] = true
	return true, nil
}

func TestDeductForQuote_SimpleUnitItem(t *testing.T) {
	ctx := context.Background()
	products := newMemProducts(&models.Product{ID: 10, Name: "Banner grommet", UnitType: models.UnitPiece, Stock: "20"})
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 1, Items: []models.QuoteItem{
		{ID: 100, ProductID: 10, Quantity: 5},
	}}

	res, err := DeductForQuote(ctx, quote, 7, products, log, quotes)
	require.NoError(t, err)
	assert.False(t, res.AlreadyDeducted)

	assert.True(t, products.stocks[10].Equal(decimal.NewFromInt(15)))
	require.Len(t, log.entries, 1)
	assert.Equal(t, "-5", log.entries[0].QuantityChange)
	assert.Equal(t, models.TxProductionDeduction, log.entries[0].TransactionType)
	require.NotNil(t, log.entries[0].ReferenceID)
	assert.Equal(t, "1", *log.entries[0].ReferenceID)
	assert.True(t, quotes.deducted[1])
	assert.True(t, quote.StockDeducted)
}

func TestDeductForQuote_SecondCallIsNoOp(t *testing.T) {
	ctx := context.Background()
	products := newMemProducts(&models.Product{ID: 10, Name: "Vinyl roll", UnitType: models.UnitPiece, Stock: "20"})
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 1, Items: []models.QuoteItem{
		{ID: 100, ProductID: 10, Quantity: 5},
	}}

	_, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)

	res, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)
	assert.True(t, res.AlreadyDeducted)
	assert.Empty(t, res.Items)

	assert.True(t, products.stocks[10].Equal(decimal.NewFromInt(15)))
	assert.Len(t, log.entries, 1)
}

func TestDeductForQuote_LostClaimTouchesNothing(t *testing.T) {
	ctx := context.Background()
	products := newMemProducts(&models.Product{ID: 10, Name: "Vinyl roll", UnitType: models.UnitPiece, Stock: "20"})
	log := &memLog{}

	// Another run already holds the flag, even though this caller's
	// snapshot of the quote still says not deducted.
	quotes := &memQuotes{deducted: map[int64]bool{1: true}}

	quote := &models.Quote{ID: 1, Items: []models.QuoteItem{
		{ID: 100, ProductID: 10, Quantity: 5},
	}}

	res, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)
	assert.True(t, res.AlreadyDeducted)
	assert.Empty(t, res.Items)

	assert.True(t, products.stocks[10].Equal(decimal.NewFromInt(20)), "losing the claim must not move stock")
	assert.Empty(t, log.entries)
}

func TestDeductForQuote_CompositeExpandsOneLevel(t *testing.T) {
	ctx := context.Background()
	kit := &models.Product{
		ID: 1, Name: "Storefront kit", IsComposite: true, UnitType: models.UnitPiece, Stock: "0",
		Components: []models.ProductComponent{
			{ParentProductID: 1, ComponentProductID: 2, Quantity: "2"},
			{ParentProductID: 1, ComponentProductID: 3, Quantity: "1"},
		},
	}
	products := newMemProducts(kit,
		&models.Product{ID: 2, Name: "ACM panel", UnitType: models.UnitPiece, Stock: "50"},
		&models.Product{ID: 3, Name: "LED module", UnitType: models.UnitPiece, Stock: "40"},
	)
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 9, Items: []models.QuoteItem{
		{ID: 90, ProductID: 1, Quantity: 3},
	}}

	res, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)

	assert.True(t, products.stocks[2].Equal(decimal.NewFromInt(44)), "2 per kit x 3 kits")
	assert.True(t, products.stocks[3].Equal(decimal.NewFromInt(37)))
	// The kit itself holds no stock and must not be decremented.
	assert.True(t, products.stocks[1].Equal(decimal.Zero))

	require.Len(t, log.entries, 2)
	for _, entry := range log.entries {
		require.NotNil(t, entry.Notes)
		assert.Contains(t, *entry.Notes, "Storefront kit")
	}
	require.Len(t, res.Items, 1)
	assert.Len(t, res.Items[0].Deductions, 2)
}

func TestDeductForQuote_AreaUnitUsesMeters(t *testing.T) {
	ctx := context.Background()
	products := newMemProducts(&models.Product{ID: 5, Name: "Lona 440g", UnitType: models.UnitSquareMeter, Stock: "100"})
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 2, Items: []models.QuoteItem{
		{ID: 20, ProductID: 5, Quantity: 2, WidthM: "2", HeightM: "1.5"},
	}}

	_, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)

	// 2m x 1.5m x 2 pieces = 6 m².
	assert.True(t, products.stocks[5].Equal(decimal.NewFromInt(94)))
	require.Len(t, log.entries, 1)
	logged := decimal.RequireFromString(log.entries[0].QuantityChange)
	assert.True(t, logged.Equal(decimal.NewFromInt(-6)))
}

func TestDeductForQuote_MissingProductSkipped(t *testing.T) {
	ctx := context.Background()
	products := newMemProducts(&models.Product{ID: 10, Name: "Foam board", UnitType: models.UnitPiece, Stock: "8"})
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 3, Items: []models.QuoteItem{
		{ID: 30, ProductID: 999, Quantity: 4}, // deleted product
		{ID: 31, ProductID: 10, Quantity: 2},
	}}

	res, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Skipped)
	assert.False(t, res.Items[1].Skipped)
	assert.True(t, products.stocks[10].Equal(decimal.NewFromInt(6)))
	assert.True(t, quotes.deducted[3], "a skipped item must not block the flag")
}

func TestDeductForQuote_LedgerMatchesStockDelta(t *testing.T) {
	ctx := context.Background()
	initial := map[int64]decimal.Decimal{
		2: decimal.NewFromInt(50),
		3: decimal.NewFromInt(40),
		5: decimal.NewFromInt(100),
	}
	kit := &models.Product{
		ID: 1, Name: "Kit", IsComposite: true, UnitType: models.UnitPiece, Stock: "0",
		Components: []models.ProductComponent{
			{ParentProductID: 1, ComponentProductID: 2, Quantity: "2.5"},
			{ParentProductID: 1, ComponentProductID: 3, Quantity: "1"},
		},
	}
	products := newMemProducts(kit,
		&models.Product{ID: 2, Name: "A", UnitType: models.UnitPiece, Stock: "50"},
		&models.Product{ID: 3, Name: "B", UnitType: models.UnitPiece, Stock: "40"},
		&models.Product{ID: 5, Name: "C", UnitType: models.UnitSquareMeter, Stock: "100"},
	)
	log := &memLog{}
	quotes := &memQuotes{}

	quote := &models.Quote{ID: 4, Items: []models.QuoteItem{
		{ID: 40, ProductID: 1, Quantity: 2},
		{ID: 41, ProductID: 5, Quantity: 3, WidthM: "1.2", HeightM: "0.8"},
	}}

	_, err := DeductForQuote(ctx, quote, 0, products, log, quotes)
	require.NoError(t, err)

	sums := make(map[int64]decimal.Decimal)
	for _, entry := range log.entries {
		sums[entry.ProductID] = sums[entry.ProductID].Add(decimal.RequireFromString(entry.QuantityChange))
	}
	for id, start := range initial {
		delta := products.stocks[id].Sub(start)
		assert.True(t, sums[id].Equal(delta), "ledger sum must equal stock delta for product %d", id)
	}
}
