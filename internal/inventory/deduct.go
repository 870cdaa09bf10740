package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"printflow-system/internal/database/models"
)

// ErrNotFound is returned by stores when a record does not exist,
// whatever the backing storage is.
var ErrNotFound = errors.New("inventory: record not found")

// ProductStore, TransactionLog and QuoteStore are the narrow storage
// capabilities the deduction algorithm needs. Handlers bind all three
// to one database transaction so a quote's deduction commits
// all-or-nothing together with the stock-deducted flag.
type ProductStore interface {
	Get(ctx context.Context, id int64) (*models.Product, error)
	// UpdateStock applies a signed delta atomically and returns the
	// resulting stock level.
	UpdateStock(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}

type TransactionLog interface {
	Append(ctx context.Context, entry *models.InventoryTransaction) error
}

type QuoteStore interface {
	// ClaimStockDeduction flips stock_deducted false -> true, guarded so
	// only one caller ever wins. claimed=false means another run already
	// holds the flag.
	ClaimStockDeduction(ctx context.Context, quoteID int64) (claimed bool, err error)
}

// Deducted records one stock mutation performed for a quote item.
type Deducted struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	NewStock  decimal.Decimal `json:"new_stock"`
}

// ItemOutcome is the per-item report of a deduction run.
type ItemOutcome struct {
	QuoteItemID int64      `json:"quote_item_id"`
	ProductID   int64      `json:"product_id"`
	Skipped     bool       `json:"skipped"`
	Deductions  []Deducted `json:"deductions,omitempty"`
}

// Result summarises a deduction run.
type Result struct {
	QuoteID         int64         `json:"quote_id"`
	AlreadyDeducted bool          `json:"already_deducted"`
	Items           []ItemOutcome `json:"items,omitempty"`
}

// DeductForQuote decomposes every quote item into stock decrements and
// matching production_deduction ledger entries. The quote's
// StockDeducted flag is the idempotency guard: it is claimed up front,
// before any stock is touched, so an already-deducted quote — or a
// concurrent run that lost the claim — is a no-op, never an error.
//
// Composite products are expanded one level: each composition line's
// component stock is decremented by itemQty x componentQty. Nested kits
// are a documented catalog constraint, not expanded further here.
//
// Line items whose product was deleted are skipped and reported; they
// never fail the rest of the quote. Stock is allowed to go negative —
// a negative balance signals backorder.
func DeductForQuote(ctx context.Context, quote *models.Quote, actorID int64, products ProductStore, log TransactionLog, quotes QuoteStore) (*Result, error) {
	res := &Result{QuoteID: quote.ID}

	if quote.StockDeducted {
		res.AlreadyDeducted = true
		return res, nil
	}

	claimed, err := quotes.ClaimStockDeduction(ctx, quote.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		res.AlreadyDeducted = true
		return res, nil
	}
	quote.StockDeducted = true

	ref := strconv.FormatInt(quote.ID, 10)

	for _, item := range quote.Items {
		outcome := ItemOutcome{QuoteItemID: item.ID, ProductID: item.ProductID}

		product, err := products.Get(ctx, item.ProductID)
		if errors.Is(err, ErrNotFound) {
			outcome.Skipped = true
			res.Items = append(res.Items, outcome)
			continue
		}
		if err != nil {
			return nil, err
		}

		itemQty := decimal.NewFromInt32(item.Quantity)

		if product.IsComposite && len(product.Components) > 0 {
			for _, comp := range product.Components {
				compQty := parseQuantity(comp.Quantity, decimal.Zero)
				total := itemQty.Mul(compQty)
				notes := fmt.Sprintf("component of kit %s", product.Name)

				deducted, err := applyDeduction(ctx, products, log, comp.ComponentProductID, total, ref, notes, actorID)
				if errors.Is(err, ErrNotFound) {
					// Component product deleted; nothing to decrement.
					continue
				}
				if err != nil {
					return nil, err
				}
				outcome.Deductions = append(outcome.Deductions, deducted)
			}
		} else {
			qty := itemQty
			if IsAreaUnit(product.UnitType) {
				width := parseQuantity(item.WidthM, decimal.NewFromInt(1))
				height := parseQuantity(item.HeightM, decimal.NewFromInt(1))
				qty = width.Mul(height).Mul(itemQty)
			}

			deducted, err := applyDeduction(ctx, products, log, product.ID, qty, ref, product.Name, actorID)
			if err != nil {
				return nil, err
			}
			outcome.Deductions = append(outcome.Deductions, deducted)
		}

		res.Items = append(res.Items, outcome)
	}

	return res, nil
}

func applyDeduction(ctx context.Context, products ProductStore, log TransactionLog, productID int64, qty decimal.Decimal, ref, notes string, actorID int64) (Deducted, error) {
	newStock, err := products.UpdateStock(ctx, productID, qty.Neg())
	if err != nil {
		return Deducted{}, err
	}

	entry := &models.InventoryTransaction{
		ProductID:       productID,
		QuantityChange:  qty.Neg().String(),
		TransactionType: models.TxProductionDeduction,
		ReferenceID:     &ref,
		Notes:           &notes,
	}
	if actorID != 0 {
		entry.CreatedBy = &actorID
	}
	if err := log.Append(ctx, entry); err != nil {
		return Deducted{}, err
	}

	return Deducted{ProductID: productID, Quantity: qty, NewStock: newStock}, nil
}

// IsAreaUnit reports whether a unit of measure denotes area, meaning
// stock consumption is width x height x quantity in meters.
func IsAreaUnit(unit string) bool {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "m2", "m²", "metro quadrado":
		return true
	}
	return false
}

func parseQuantity(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}
