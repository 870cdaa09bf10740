package models

import "time"

type Quote struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	QuoteNumber     string `gorm:"size:64;uniqueIndex;not null"`
	CustomerID      int64  `gorm:"index;not null"`
	SalespersonID   int64  `gorm:"index;not null"`
	QuoteDate       *time.Time
	Status          string `gorm:"size:32;index;not null;default:draft"`
	DeadlineDays    int32  `gorm:"not null;default:0"`
	DiscountPercent string `gorm:"type:decimal(5,2);not null;default:0"`
	PaymentMethod   string `gorm:"size:64"`

	TotalAmount  string `gorm:"type:decimal(18,2);not null;default:0"`
	DownPayment  string `gorm:"type:decimal(18,2);not null;default:0"`
	DesignFee    string `gorm:"type:decimal(18,2);not null;default:0"`
	InstallFee   string `gorm:"type:decimal(18,2);not null;default:0"`
	DeliveryKm   string `gorm:"type:decimal(10,2);not null;default:0"`
	LogisticsFee string `gorm:"type:decimal(18,2);not null;default:0"`

	// CommissionPercent is frozen at creation so later config changes
	// never alter commission already earned on this quote.
	CommissionPercent *string `gorm:"type:decimal(5,2)"`
	CommissionPaid    bool    `gorm:"not null;default:false"`
	CommissionPaidAt  *time.Time

	// StockDeducted transitions false -> true exactly once per quote.
	StockDeducted bool `gorm:"not null;default:false"`

	Notes     *string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []QuoteItem `gorm:"foreignKey:QuoteID"`
}

type QuoteItem struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	QuoteID   int64 `gorm:"index;not null"`
	ProductID int64 `gorm:"not null"`
	Quantity  int32 `gorm:"not null;default:1"`

	// WidthM/HeightM are in meters and only meaningful for area-unit
	// products; they default to 1 everywhere else.
	WidthM  string `gorm:"type:decimal(10,3);not null;default:1"`
	HeightM string `gorm:"type:decimal(10,3);not null;default:1"`

	UnitPrice string `gorm:"type:decimal(18,2);not null;default:0"`
	// Subtotal is the authoritative charged amount; it may diverge from
	// unit price x quantity when PriceOverridden is set.
	Subtotal        string `gorm:"type:decimal(18,2);not null;default:0"`
	PriceOverridden bool   `gorm:"not null;default:false"`

	LabelData *string `gorm:"type:text"`
	CreatedAt time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}
