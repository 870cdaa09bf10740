package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"printflow-system/internal/database/models"
	"printflow-system/internal/gateway/middleware"
)

const (
	STOCK_CACHE_PREFIX   = "inventory:stock:"
	LOW_STOCK_CACHE_KEY  = "inventory:low_stock"
	PRODUCTS_CACHE_KEY   = "catalog:products"
	STOCK_EVENTS_CHANNEL = "inventory:events:adjustment"
	CACHE_TTL_SHORT      = 5 * time.Minute
)

type InventoryHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client) *InventoryHandler {
	return &InventoryHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *InventoryHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *InventoryHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *InventoryHandler) invalidateStockCaches(ctx context.Context, productID int64) {
	_ = s.redis.Del(ctx, PRODUCTS_CACHE_KEY).Err()
	_ = s.redis.Del(ctx, LOW_STOCK_CACHE_KEY).Err()
	_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", STOCK_CACHE_PREFIX, productID)).Err()
}

var manualAdjustmentTypes = map[string]bool{
	models.TxManualAdjustment: true,
	models.TxPurchase:         true,
	models.TxReturn:           true,
}

type StockAdjustmentRequest struct {
	QuantityChange  string  `json:"quantity_change" binding:"required"`
	TransactionType string  `json:"transaction_type" binding:"required"`
	Notes           *string `json:"notes"`
	ReferenceID     *string `json:"reference_id"`
}

// AdjustStock applies a signed stock delta and records the matching
// ledger row in the same transaction. Manual adjustments cannot drive
// stock below zero; production deductions elsewhere can.
func (s *InventoryHandler) AdjustStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req StockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if !manualAdjustmentTypes[req.TransactionType] {
		s.error(c, http.StatusBadRequest, "Unsupported transaction type: "+req.TransactionType)
		return
	}

	delta, err := decimal.NewFromString(req.QuantityChange)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid quantity_change")
		return
	}
	if delta.IsZero() {
		s.error(c, http.StatusBadRequest, "quantity_change must be non-zero")
		return
	}

	actorID := middleware.CurrentUserID(c)

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var product models.Product
	if err := tx.First(&product, productID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Product not found")
			return
		}
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	current, err := decimal.NewFromString(product.Stock)
	if err != nil {
		current = decimal.Zero
	}
	newStock := current.Add(delta)
	if newStock.IsNegative() {
		tx.Rollback()
		s.error(c, http.StatusBadRequest, "Adjustment would result in negative stock")
		return
	}

	if err := tx.Model(&models.Product{}).Where("id = ?", productID).
		Update("stock", newStock.String()).Error; err != nil {
		tx.Rollback()
		s.error(c, http.StatusInternalServerError, "Failed to update stock")
		return
	}

	entry := models.InventoryTransaction{
		ProductID:       productID,
		QuantityChange:  delta.String(),
		TransactionType: req.TransactionType,
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
	}
	if actorID != 0 {
		entry.CreatedBy = &actorID
	}
	if err := tx.Create(&entry).Error; err != nil {
		tx.Rollback()
		s.error(c, http.StatusInternalServerError, "Failed to record transaction")
		return
	}

	if err := tx.Commit().Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Failed to commit adjustment")
		return
	}

	s.invalidateStockCaches(c.Request.Context(), productID)
	s.publishAdjustmentEvent(c.Request.Context(), entry, newStock.String())

	s.success(c, gin.H{
		"product_id":  productID,
		"new_stock":   newStock.String(),
		"transaction": entry,
	})
}

func (s *InventoryHandler) publishAdjustmentEvent(ctx context.Context, entry models.InventoryTransaction, newStock string) {
	payload := fmt.Sprintf(`{"product_id":%d,"quantity_change":%q,"transaction_type":%q,"new_stock":%q}`,
		entry.ProductID, entry.QuantityChange, entry.TransactionType, newStock)
	if err := s.redis.Publish(ctx, STOCK_EVENTS_CHANNEL, payload).Err(); err != nil {
		logrus.Warnf("Failed to publish stock adjustment event: %v", err)
	}
}

// ListTransactions returns ledger rows newest first, optionally
// scoped to one product or transaction type. Mounted both globally and
// under /products/:id/transactions.
func (s *InventoryHandler) ListTransactions(c *gin.Context) {
	query := s.db.Model(&models.InventoryTransaction{})

	if pid := c.Param("id"); pid != "" {
		id, err := strconv.ParseInt(pid, 10, 64)
		if err != nil {
			s.error(c, http.StatusBadRequest, "Invalid product ID")
			return
		}
		query = query.Where("product_id = ?", id)
	} else if pid := c.Query("product_id"); pid != "" {
		id, err := strconv.ParseInt(pid, 10, 64)
		if err != nil {
			s.error(c, http.StatusBadRequest, "Invalid product_id")
			return
		}
		query = query.Where("product_id = ?", id)
	}
	if txType := c.Query("transaction_type"); txType != "" {
		query = query.Where("transaction_type = ?", txType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize <= 0 {
		pageSize = 50
	}
	pageNumber := 1
	if token := c.Query("page_token"); token != "" {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			pageNumber = n
		}
	}

	var transactions []models.InventoryTransaction
	if err := query.Order("created_at desc, id desc").
		Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Find(&transactions).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    transactions,
		"pagination": gin.H{
			"next_page_token": nextPageToken,
			"total_count":     total,
		},
	})
}

// LowStock lists active products whose stock sits at or below their
// minimum level.
func (s *InventoryHandler) LowStock(c *gin.Context) {
	var products []models.Product
	if err := s.db.Where("is_active = ? AND stock <= min_stock", true).
		Order("name asc").Find(&products).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	type lowStockItem struct {
		models.Product
		Deficit string `json:"deficit"`
	}

	items := make([]lowStockItem, 0, len(products))
	for _, p := range products {
		stock, serr := decimal.NewFromString(p.Stock)
		min, merr := decimal.NewFromString(p.MinStock)
		deficit := decimal.Zero
		if serr == nil && merr == nil {
			deficit = min.Sub(stock)
		}
		items = append(items, lowStockItem{Product: p, Deficit: deficit.String()})
	}

	s.success(c, items)
}
