package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"printflow-system/internal/database/models"
	"printflow-system/internal/gateway/middleware"
	"printflow-system/internal/inventory"
	"printflow-system/internal/quotes"
)

const (
	QUOTE_CACHE_PREFIX    = "quotes:quote:"
	QUOTES_CACHE_KEY      = "quotes:list"
	PRODUCTS_CACHE_KEY    = "catalog:products"
	QUOTE_EVENTS_PREFIX   = "quotes:events:"
	EVENT_QUOTE_CREATED   = "created"
	EVENT_STATUS_CHANGED  = "status_changed"
	EVENT_STOCK_DEDUCTED  = "stock_deducted"
	QUOTE_CACHE_TTL_SHORT = 5 * time.Minute
)

type QuotesHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewQuotesHandler(db *gorm.DB, redisClient *redis.Client) *QuotesHandler {
	return &QuotesHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *QuotesHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *QuotesHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *QuotesHandler) invalidateQuoteCaches(ctx context.Context, quoteID int64) {
	_ = s.redis.Del(ctx, QUOTES_CACHE_KEY).Err()
	_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", QUOTE_CACHE_PREFIX, quoteID)).Err()
}

func (s *QuotesHandler) publishQuoteEvent(ctx context.Context, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, QUOTE_EVENTS_PREFIX+eventType, raw).Err(); err != nil {
		logrus.Warnf("Failed to publish quote event %s: %v", eventType, err)
	}
	_ = s.redis.Publish(ctx, QUOTE_EVENTS_PREFIX+"all", raw).Err()
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// --- gorm bindings for the deduction engine ---
//
// All three stores share one *gorm.DB transaction so every stock
// decrement, ledger row and the stock-deducted flag commit together.

type txProductStore struct{ tx *gorm.DB }

func (p txProductStore) Get(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := p.tx.WithContext(ctx).Preload("Components").First(&product, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, inventory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (p txProductStore) UpdateStock(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	res := p.tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", delta.String()))
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, inventory.ErrNotFound
	}

	var product models.Product
	if err := p.tx.WithContext(ctx).Select("stock").First(&product, id).Error; err != nil {
		return decimal.Zero, err
	}
	return parseAmount(product.Stock), nil
}

type txTransactionLog struct{ tx *gorm.DB }

func (l txTransactionLog) Append(ctx context.Context, entry *models.InventoryTransaction) error {
	return l.tx.WithContext(ctx).Create(entry).Error
}

type txQuoteStore struct{ tx *gorm.DB }

// ClaimStockDeduction is guarded on stock_deducted so two concurrent
// requests serialize on the quote row and only one wins the claim.
func (q txQuoteStore) ClaimStockDeduction(ctx context.Context, quoteID int64) (bool, error) {
	res := q.tx.WithContext(ctx).Model(&models.Quote{}).
		Where("id = ? AND stock_deducted = ?", quoteID, false).
		Update("stock_deducted", true)
	return res.RowsAffected > 0, res.Error
}

// --- DTOs ---

type QuoteItemInput struct {
	ProductID int64   `json:"product_id" binding:"required"`
	Quantity  int32   `json:"quantity" binding:"required,gt=0"`
	WidthM    string  `json:"width_m"`
	HeightM   string  `json:"height_m"`
	UnitPrice *string `json:"unit_price"`
	LabelData *string `json:"label_data"`
}

type CreateQuoteRequest struct {
	CustomerID      int64            `json:"customer_id" binding:"required"`
	SalespersonID   int64            `json:"salesperson_id" binding:"required"`
	DeadlineDays    int32            `json:"deadline_days"`
	DiscountPercent string           `json:"discount_percent"`
	PaymentMethod   string           `json:"payment_method"`
	DownPayment     string           `json:"down_payment"`
	DesignFee       string           `json:"design_fee"`
	InstallFee      string           `json:"install_fee"`
	DeliveryKm      string           `json:"delivery_km"`
	Notes           *string          `json:"notes"`
	Items           []QuoteItemInput `json:"items" binding:"required,min=1,dive"`
}

type UpdateQuoteRequest struct {
	DeadlineDays    *int32            `json:"deadline_days"`
	DiscountPercent *string           `json:"discount_percent"`
	PaymentMethod   *string           `json:"payment_method"`
	DownPayment     *string           `json:"down_payment"`
	DesignFee       *string           `json:"design_fee"`
	InstallFee      *string           `json:"install_fee"`
	DeliveryKm      *string           `json:"delivery_km"`
	Notes           *string           `json:"notes"`
	Items           *[]QuoteItemInput `json:"items" binding:"omitempty,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// buildItems resolves each input line against the catalog: the unit
// price defaults to the product's sale price unless the caller pins
// one, and area products charge width x height x quantity.
func buildItems(tx *gorm.DB, inputs []QuoteItemInput) ([]models.QuoteItem, decimal.Decimal, error) {
	var items []models.QuoteItem
	itemsTotal := decimal.Zero

	for _, in := range inputs {
		var product models.Product
		if err := tx.First(&product, in.ProductID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, decimal.Zero, fmt.Errorf("product %d not found", in.ProductID)
			}
			return nil, decimal.Zero, err
		}
		if !product.IsActive {
			return nil, decimal.Zero, fmt.Errorf("product %q is inactive", product.Name)
		}

		if in.LabelData != nil {
			if _, err := quotes.ParseLabelData(*in.LabelData); err != nil {
				return nil, decimal.Zero, err
			}
		}

		width := decimal.NewFromInt(1)
		height := decimal.NewFromInt(1)
		if inventory.IsAreaUnit(product.UnitType) {
			if in.WidthM != "" {
				width = parseAmount(in.WidthM)
			}
			if in.HeightM != "" {
				height = parseAmount(in.HeightM)
			}
			if !width.IsPositive() || !height.IsPositive() {
				return nil, decimal.Zero, fmt.Errorf("width and height must be positive for %q", product.Name)
			}
		}

		unitPrice := parseAmount(product.SalePrice)
		overridden := false
		if in.UnitPrice != nil {
			unitPrice = parseAmount(*in.UnitPrice)
			overridden = true
		}

		qty := decimal.NewFromInt32(in.Quantity)
		subtotal := unitPrice.Mul(qty)
		if inventory.IsAreaUnit(product.UnitType) {
			subtotal = unitPrice.Mul(width).Mul(height).Mul(qty)
		}
		subtotal = subtotal.Round(2)

		items = append(items, models.QuoteItem{
			ProductID:       in.ProductID,
			Quantity:        in.Quantity,
			WidthM:          width.String(),
			HeightM:         height.String(),
			UnitPrice:       unitPrice.Round(2).String(),
			Subtotal:        subtotal.String(),
			PriceOverridden: overridden,
			LabelData:       in.LabelData,
		})
		itemsTotal = itemsTotal.Add(subtotal)
	}

	return items, itemsTotal, nil
}

func computeLogisticsFee(deliveryKm decimal.Decimal, cfg models.FinancialConfig) decimal.Decimal {
	if !deliveryKm.IsPositive() {
		return decimal.Zero
	}
	rate := parseAmount(cfg.LogisticsRatePerKm)
	fixed := parseAmount(cfg.LogisticsFixedFee)
	return deliveryKm.Mul(rate).Add(fixed).Round(2)
}

func computeTotal(itemsTotal, discountPercent, designFee, installFee, logisticsFee decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	discounted := itemsTotal.Mul(hundred.Sub(discountPercent)).Div(hundred)
	return discounted.Add(designFee).Add(installFee).Add(logisticsFee).Round(2)
}

// --- Quote endpoints ---

func (s *QuotesHandler) CreateQuote(c *gin.Context) {
	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var quote models.Quote
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var cfg models.FinancialConfig
		if err := tx.First(&cfg).Error; err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		items, itemsTotal, err := buildItems(tx, req.Items)
		if err != nil {
			return err
		}

		discount := parseAmount(req.DiscountPercent)
		designFee := parseAmount(req.DesignFee)
		installFee := parseAmount(req.InstallFee)
		deliveryKm := parseAmount(req.DeliveryKm)
		logisticsFee := computeLogisticsFee(deliveryKm, cfg)

		now := time.Now()
		commissionSnapshot := parseAmount(cfg.CommissionPercent).String()

		quote = models.Quote{
			QuoteNumber:       "Q-" + strings.ToUpper(uuid.NewString()[:8]),
			CustomerID:        req.CustomerID,
			SalespersonID:     req.SalespersonID,
			QuoteDate:         &now,
			Status:            quotes.StatusDraft,
			DeadlineDays:      req.DeadlineDays,
			DiscountPercent:   discount.String(),
			PaymentMethod:     req.PaymentMethod,
			TotalAmount:       computeTotal(itemsTotal, discount, designFee, installFee, logisticsFee).String(),
			DownPayment:       parseAmount(req.DownPayment).String(),
			DesignFee:         designFee.String(),
			InstallFee:        installFee.String(),
			DeliveryKm:        deliveryKm.String(),
			LogisticsFee:      logisticsFee.String(),
			CommissionPercent: &commissionSnapshot,
			Notes:             req.Notes,
			Items:             items,
		}
		return tx.Create(&quote).Error
	})
	if err != nil {
		s.error(c, http.StatusBadRequest, "Failed to create quote: "+err.Error())
		return
	}

	s.invalidateQuoteCaches(c.Request.Context(), quote.ID)
	s.publishQuoteEvent(c.Request.Context(), EVENT_QUOTE_CREATED, gin.H{
		"quote_id":     quote.ID,
		"quote_number": quote.QuoteNumber,
		"total_amount": quote.TotalAmount,
	})
	s.success(c, quote)
}

// editableQuote reports why a quote can no longer be modified, nil if
// it still can. A stock-deducted quote is frozen even in draft: its
// ledger rows already reference the item list, and replacing the items
// would silently desynchronize the two.
func editableQuote(q *models.Quote) error {
	switch q.Status {
	case quotes.StatusDraft, quotes.StatusSent, quotes.StatusNegotiating:
	default:
		return fmt.Errorf("quote in status %q can no longer be edited", q.Status)
	}
	if q.StockDeducted {
		return fmt.Errorf("quote %d already had stock deducted and can no longer be edited", q.ID)
	}
	return nil
}

// UpdateQuote edits header fields and optionally replaces the item
// list. Quotes past confirmation are frozen.
func (s *QuotesHandler) UpdateQuote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	var req UpdateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var quote models.Quote
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&quote, id).Error; err != nil {
			return err
		}

		if err := editableQuote(&quote); err != nil {
			return err
		}

		var cfg models.FinancialConfig
		if err := tx.First(&cfg).Error; err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		if req.DeadlineDays != nil {
			quote.DeadlineDays = *req.DeadlineDays
		}
		if req.DiscountPercent != nil {
			quote.DiscountPercent = parseAmount(*req.DiscountPercent).String()
		}
		if req.PaymentMethod != nil {
			quote.PaymentMethod = *req.PaymentMethod
		}
		if req.DownPayment != nil {
			quote.DownPayment = parseAmount(*req.DownPayment).String()
		}
		if req.DesignFee != nil {
			quote.DesignFee = parseAmount(*req.DesignFee).String()
		}
		if req.InstallFee != nil {
			quote.InstallFee = parseAmount(*req.InstallFee).String()
		}
		if req.DeliveryKm != nil {
			quote.DeliveryKm = parseAmount(*req.DeliveryKm).String()
		}
		if req.Notes != nil {
			quote.Notes = req.Notes
		}

		if req.Items != nil {
			if err := tx.Where("quote_id = ?", quote.ID).Delete(&models.QuoteItem{}).Error; err != nil {
				return err
			}
			items, _, err := buildItems(tx, *req.Items)
			if err != nil {
				return err
			}
			for i := range items {
				items[i].QuoteID = quote.ID
				if err := tx.Create(&items[i]).Error; err != nil {
					return err
				}
			}
			quote.Items = items
		}

		itemsTotal := decimal.Zero
		for _, it := range quote.Items {
			itemsTotal = itemsTotal.Add(parseAmount(it.Subtotal))
		}
		logisticsFee := computeLogisticsFee(parseAmount(quote.DeliveryKm), cfg)
		quote.LogisticsFee = logisticsFee.String()
		quote.TotalAmount = computeTotal(
			itemsTotal,
			parseAmount(quote.DiscountPercent),
			parseAmount(quote.DesignFee),
			parseAmount(quote.InstallFee),
			logisticsFee,
		).String()

		return tx.Omit("Items").Save(&quote).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Quote not found")
			return
		}
		s.error(c, http.StatusBadRequest, "Failed to update quote: "+err.Error())
		return
	}

	s.invalidateQuoteCaches(c.Request.Context(), quote.ID)
	s.success(c, quote)
}

func (s *QuotesHandler) GetQuote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	var quote models.Quote
	if err := s.db.Preload("Items.Product").First(&quote, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Quote not found")
			return
		}
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.success(c, quote)
}

func (s *QuotesHandler) ListQuotes(c *gin.Context) {
	query := s.db.Model(&models.Quote{})

	if status := c.Query("status"); status != "" {
		if !quotes.IsValidStatus(status) {
			s.error(c, http.StatusBadRequest, "Unknown status: "+status)
			return
		}
		query = query.Where("status = ?", status)
	}
	if sp := c.Query("salesperson_id"); sp != "" {
		if id, err := strconv.ParseInt(sp, 10, 64); err == nil {
			query = query.Where("salesperson_id = ?", id)
		}
	}
	if cu := c.Query("customer_id"); cu != "" {
		if id, err := strconv.ParseInt(cu, 10, 64); err == nil {
			query = query.Where("customer_id = ?", id)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize <= 0 {
		pageSize = 20
	}
	pageNumber := 1
	if token := c.Query("page_token"); token != "" {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			pageNumber = n
		}
	}

	var list []models.Quote
	if err := query.Order("created_at desc, id desc").
		Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
		"pagination": gin.H{
			"next_page_token": nextPageToken,
			"total_count":     total,
		},
	})
}

// UpdateStatus moves a quote along the workflow. Entering confirmed or
// production deducts stock in the same transaction as the status write,
// guarded by the quote's stock-deducted flag.
func (s *QuotesHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !quotes.IsValidStatus(req.Status) {
		s.error(c, http.StatusBadRequest, "Unknown status: "+req.Status)
		return
	}

	actorID := middleware.CurrentUserID(c)

	var quote models.Quote
	var deduction *inventory.Result
	var previousStatus string

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&quote, id).Error; err != nil {
			return err
		}
		previousStatus = quote.Status

		if !quotes.CanTransition(quote.Status, req.Status) {
			return fmt.Errorf("cannot move quote from %q to %q", quote.Status, req.Status)
		}

		if quotes.TriggersDeduction(req.Status) && !quote.StockDeducted {
			res, err := inventory.DeductForQuote(c.Request.Context(), &quote, actorID,
				txProductStore{tx}, txTransactionLog{tx}, txQuoteStore{tx})
			if err != nil {
				return err
			}
			deduction = res
		}

		quote.Status = req.Status
		return tx.Model(&models.Quote{}).Where("id = ?", quote.ID).
			Update("status", req.Status).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Quote not found")
			return
		}
		s.error(c, http.StatusBadRequest, "Failed to update status: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	s.invalidateQuoteCaches(ctx, quote.ID)
	if deduction != nil {
		_ = s.redis.Del(ctx, PRODUCTS_CACHE_KEY).Err()
	}
	s.publishQuoteEvent(ctx, EVENT_STATUS_CHANGED, gin.H{
		"quote_id": quote.ID,
		"from":     previousStatus,
		"to":       quote.Status,
	})
	if deduction != nil && !deduction.AlreadyDeducted {
		s.publishQuoteEvent(ctx, EVENT_STOCK_DEDUCTED, deduction)
	}

	s.success(c, gin.H{
		"quote_id":  quote.ID,
		"status":    quote.Status,
		"deduction": deduction,
	})
}

// DeductStock triggers the stock deduction explicitly. Calling it on
// an already-deducted quote reports that without touching stock.
func (s *QuotesHandler) DeductStock(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	actorID := middleware.CurrentUserID(c)

	var result *inventory.Result
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var quote models.Quote
		if err := tx.Preload("Items").First(&quote, id).Error; err != nil {
			return err
		}

		res, err := inventory.DeductForQuote(c.Request.Context(), &quote, actorID,
			txProductStore{tx}, txTransactionLog{tx}, txQuoteStore{tx})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Quote not found")
			return
		}
		s.error(c, http.StatusInternalServerError, "Failed to deduct stock: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if !result.AlreadyDeducted {
		_ = s.redis.Del(ctx, PRODUCTS_CACHE_KEY).Err()
		s.invalidateQuoteCaches(ctx, id)
		s.publishQuoteEvent(ctx, EVENT_STOCK_DEDUCTED, result)
	}

	s.success(c, result)
}

// DeleteQuote removes a quote that never left negotiation.
func (s *QuotesHandler) DeleteQuote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quote ID")
		return
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var quote models.Quote
		if err := tx.First(&quote, id).Error; err != nil {
			return err
		}
		switch quote.Status {
		case quotes.StatusDraft, quotes.StatusSent, quotes.StatusNegotiating, quotes.StatusRejected:
		default:
			return fmt.Errorf("quote in status %q cannot be deleted", quote.Status)
		}
		if quote.StockDeducted {
			return fmt.Errorf("quote %d already had stock deducted and cannot be deleted", quote.ID)
		}
		if err := tx.Where("quote_id = ?", id).Delete(&models.QuoteItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Quote{}, id).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Quote not found")
			return
		}
		s.error(c, http.StatusBadRequest, err.Error())
		return
	}

	s.invalidateQuoteCaches(c.Request.Context(), id)
	s.success(c, gin.H{"quote_id": id, "deleted": true})
}
