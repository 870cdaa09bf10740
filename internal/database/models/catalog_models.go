package models

import "time"

// Unit of measure values accepted for products. Area products consume
// stock by width x height x quantity, everything else by quantity.
const (
	UnitSquareMeter = "m2"
	UnitPiece       = "un"
	UnitLinearMeter = "ml"
)

type Product struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	Name                  string `gorm:"size:255;not null"`
	Category              string `gorm:"size:100"`
	UnitType              string `gorm:"size:20;not null;default:un"`
	CostPrice             string `gorm:"type:decimal(18,2);not null;default:0"`
	SalePrice             string `gorm:"type:decimal(18,2);not null;default:0"`
	ProductionTimeMinutes int32  `gorm:"not null;default:0"`
	WastePercent          string `gorm:"type:decimal(5,2);not null;default:0"`
	Stock                 string `gorm:"type:decimal(18,3);not null;default:0"`
	MinStock              string `gorm:"type:decimal(18,3);not null;default:0"`
	IsComposite           bool   `gorm:"not null;default:false"`
	IsActive              bool   `gorm:"not null;default:true"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	Components []ProductComponent `gorm:"foreignKey:ParentProductID"`
}

// ProductComponent is one line of a composite product's composition.
// Quantity is how many units of the component go into one unit of the
// parent kit.
type ProductComponent struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	ParentProductID    int64  `gorm:"uniqueIndex:idx_parent_component;not null"`
	ComponentProductID int64  `gorm:"uniqueIndex:idx_parent_component;not null"`
	Quantity           string `gorm:"type:decimal(18,3);not null"`
	SortOrder          int32  `gorm:"not null;default:0"`

	Component *Product `gorm:"foreignKey:ComponentProductID"`
}

// FinancialConfig is a singleton row. Changing it never recomputes
// totals already stored on quotes.
type FinancialConfig struct {
	ID                  int32  `gorm:"primaryKey"`
	TargetMarginPercent string `gorm:"type:decimal(5,2);not null;default:0"`
	TaxPercent          string `gorm:"type:decimal(5,2);not null;default:0"`
	CommissionPercent   string `gorm:"type:decimal(5,2);not null;default:0"`
	CostPerHour         string `gorm:"type:decimal(18,2);not null;default:0"`
	LogisticsRatePerKm  string `gorm:"type:decimal(18,2);not null;default:0"`
	LogisticsFixedFee   string `gorm:"type:decimal(18,2);not null;default:0"`
	UpdatedAt           time.Time
}

// Inventory transaction types.
const (
	TxManualAdjustment    = "manual_adjustment"
	TxSale                = "sale"
	TxPurchase            = "purchase"
	TxProductionDeduction = "production_deduction"
	TxReturn              = "return"
)

// InventoryTransaction is append-only. A product's stock column is the
// materialized running sum of its transactions; every stock mutation is
// written together with exactly one transaction row.
type InventoryTransaction struct {
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	ProductID       int64   `gorm:"index;not null"`
	QuantityChange  string  `gorm:"type:decimal(18,3);not null"`
	TransactionType string  `gorm:"size:32;not null"`
	ReferenceID     *string `gorm:"size:100"`
	Notes           *string `gorm:"type:text"`
	CreatedBy       *int64
	CreatedAt       time.Time
}
