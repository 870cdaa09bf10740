package handler

import (
	"context"
	"encoding/json"
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
	"printflow-system/internal/pricing"
)

const (
	CATALOG_CACHE_PREFIX = "catalog:product:"
	PRODUCTS_CACHE_KEY   = "catalog:products"
	CACHE_TTL_SHORT      = 5 * time.Minute
	CACHE_TTL_MEDIUM     = 30 * time.Minute
)

type CatalogHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCatalogHandler(db *gorm.DB, redisClient *redis.Client) *CatalogHandler {
	return &CatalogHandler{
		db:    db,
		redis: redisClient,
	}
}

// --- Helpers ---

func (s *CatalogHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *CatalogHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func parseIDParam(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}

// normalizeAmount coerces user-entered decimal text; anything
// unparseable becomes zero rather than an error.
func normalizeAmount(s string) string {
	if s == "" {
		return "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0"
	}
	return d.String()
}

func amountToFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func (s *CatalogHandler) InvalidateCatalogCaches(ctx context.Context, productIDs ...int64) {
	_ = s.redis.Del(ctx, PRODUCTS_CACHE_KEY).Err()

	for _, id := range productIDs {
		cacheKey := fmt.Sprintf("%s%d", CATALOG_CACHE_PREFIX, id)
		_ = s.redis.Del(ctx, cacheKey).Err()
	}
}

// --- Cost rollup ---

func costViewOf(p models.Product) pricing.CostView {
	view := pricing.CostView{
		ID:          p.ID,
		Name:        p.Name,
		CostPrice:   amountToFloat(p.CostPrice),
		IsComposite: p.IsComposite,
	}
	for _, comp := range p.Components {
		view.Components = append(view.Components, pricing.Component{
			ProductID: comp.ComponentProductID,
			Quantity:  amountToFloat(comp.Quantity),
		})
	}
	return view
}

func (s *CatalogHandler) productLookup(tx *gorm.DB) pricing.ProductLookup {
	return func(id int64) (pricing.CostView, bool) {
		var p models.Product
		if err := tx.Preload("Components").First(&p, id).Error; err != nil {
			return pricing.CostView{}, false
		}
		return costViewOf(p), true
	}
}

// recomputeCostPrice refreshes a composite product's cached rollup.
// The stored cost price of a kit is always the last rollup, never a
// hand-entered value.
func (s *CatalogHandler) recomputeCostPrice(tx *gorm.DB, product *models.Product) {
	if !product.IsComposite {
		return
	}
	res := pricing.ResolveMaterialCost(costViewOf(*product), s.productLookup(tx))
	if res.CycleDetected {
		logrus.Warnf("composition of product %d refers back to itself; cycle priced at stored cost", product.ID)
	}
	product.CostPrice = decimal.NewFromFloat(res.Total).Round(2).String()
}

func (s *CatalogHandler) deriveSalePrice(tx *gorm.DB, product *models.Product) {
	var cfg models.FinancialConfig
	if err := tx.First(&cfg).Error; err != nil {
		return
	}

	b := pricing.SalePrice(
		pricing.Inputs{
			MaterialCost:          amountToFloat(product.CostPrice),
			ProductionTimeMinutes: float64(product.ProductionTimeMinutes),
			WastePercent:          amountToFloat(product.WastePercent),
		},
		pricing.Config{
			TargetMarginPercent: amountToFloat(cfg.TargetMarginPercent),
			TaxPercent:          amountToFloat(cfg.TaxPercent),
			CommissionPercent:   amountToFloat(cfg.CommissionPercent),
			CostPerHour:         amountToFloat(cfg.CostPerHour),
		},
	)
	if b.Fallback {
		logrus.Warnf("sale price for product %q fell back to 2x production cost; margin+tax+commission leaves no usable divisor", product.Name)
	}
	product.SalePrice = decimal.NewFromFloat(b.SalePrice).Round(2).String()
}

// --- DTOs ---

type ComponentInput struct {
	ComponentProductID int64  `json:"component_product_id" binding:"required"`
	Quantity           string `json:"quantity" binding:"required"`
}

type CreateProductRequest struct {
	Name                  string           `json:"name" binding:"required"`
	Category              string           `json:"category"`
	UnitType              string           `json:"unit_type" binding:"omitempty,oneof=m2 un ml"`
	CostPrice             string           `json:"cost_price"`
	SalePrice             string           `json:"sale_price"`
	ProductionTimeMinutes int32            `json:"production_time_minutes"`
	WastePercent          string           `json:"waste_percent"`
	Stock                 string           `json:"stock"`
	MinStock              string           `json:"min_stock"`
	IsComposite           bool             `json:"is_composite"`
	Composition           []ComponentInput `json:"composition" binding:"dive"`
}

type UpdateProductRequest struct {
	Name                  *string           `json:"name"`
	Category              *string           `json:"category"`
	UnitType              *string           `json:"unit_type" binding:"omitempty,oneof=m2 un ml"`
	CostPrice             *string           `json:"cost_price"`
	SalePrice             *string           `json:"sale_price"`
	ProductionTimeMinutes *int32            `json:"production_time_minutes"`
	WastePercent          *string           `json:"waste_percent"`
	MinStock              *string           `json:"min_stock"`
	IsActive              *bool             `json:"is_active"`
	Composition           *[]ComponentInput `json:"composition" binding:"omitempty,dive"`
}

type componentView struct {
	ComponentProductID int64  `json:"component_product_id"`
	Name               string `json:"name"`
	Quantity           string `json:"quantity"`
	UnitCost           string `json:"unit_cost"`
}

type productView struct {
	models.Product
	Composition []componentView `json:"composition,omitempty"`
}

func buildProductView(p models.Product) productView {
	view := productView{Product: p}
	for _, comp := range p.Components {
		cv := componentView{
			ComponentProductID: comp.ComponentProductID,
			Quantity:           comp.Quantity,
		}
		if comp.Component != nil {
			cv.Name = comp.Component.Name
			cv.UnitCost = comp.Component.CostPrice
		} else {
			// Component product was deleted; it still shows up in the
			// composition but contributes nothing to cost.
			cv.Name = "item removido"
			cv.UnitCost = "0"
		}
		view.Composition = append(view.Composition, cv)
	}
	view.Product.Components = nil
	return view
}

// --- Product endpoints ---

func (s *CatalogHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.IsComposite && len(req.Composition) == 0 {
		s.error(c, http.StatusBadRequest, "Composite product requires a non-empty composition")
		return
	}

	unitType := req.UnitType
	if unitType == "" {
		unitType = models.UnitPiece
	}

	product := models.Product{
		Name:                  req.Name,
		Category:              req.Category,
		UnitType:              unitType,
		CostPrice:             normalizeAmount(req.CostPrice),
		SalePrice:             normalizeAmount(req.SalePrice),
		ProductionTimeMinutes: req.ProductionTimeMinutes,
		WastePercent:          normalizeAmount(req.WastePercent),
		Stock:                 normalizeAmount(req.Stock),
		MinStock:              normalizeAmount(req.MinStock),
		IsComposite:           req.IsComposite,
		IsActive:              true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		for i, comp := range req.Composition {
			if comp.ComponentProductID == product.ID {
				return fmt.Errorf("a product cannot be a component of itself")
			}
			line := models.ProductComponent{
				ParentProductID:    product.ID,
				ComponentProductID: comp.ComponentProductID,
				Quantity:           normalizeAmount(comp.Quantity),
				SortOrder:          int32(i),
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
			product.Components = append(product.Components, line)
		}

		if product.IsComposite {
			s.recomputeCostPrice(tx, &product)
		}
		if req.SalePrice == "" {
			s.deriveSalePrice(tx, &product)
		}
		return tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Updates(map[string]interface{}{"cost_price": product.CostPrice, "sale_price": product.SalePrice}).Error
	})
	if err != nil {
		s.error(c, http.StatusBadRequest, "Failed to create product: "+err.Error())
		return
	}

	s.db.Preload("Components.Component").First(&product, product.ID)

	s.InvalidateCatalogCaches(c.Request.Context(), product.ID)
	s.success(c, buildProductView(product))
}

func (s *CatalogHandler) UpdateProduct(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var product models.Product
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Components").First(&product, id).Error; err != nil {
			return err
		}

		if req.Name != nil {
			product.Name = *req.Name
		}
		if req.Category != nil {
			product.Category = *req.Category
		}
		if req.UnitType != nil {
			product.UnitType = *req.UnitType
		}
		if req.CostPrice != nil && !product.IsComposite {
			product.CostPrice = normalizeAmount(*req.CostPrice)
		}
		if req.ProductionTimeMinutes != nil {
			product.ProductionTimeMinutes = *req.ProductionTimeMinutes
		}
		if req.WastePercent != nil {
			product.WastePercent = normalizeAmount(*req.WastePercent)
		}
		if req.MinStock != nil {
			product.MinStock = normalizeAmount(*req.MinStock)
		}
		if req.IsActive != nil {
			product.IsActive = *req.IsActive
		}

		if req.Composition != nil {
			if product.IsComposite && len(*req.Composition) == 0 {
				return fmt.Errorf("composite product requires a non-empty composition")
			}
			if err := tx.Where("parent_product_id = ?", product.ID).
				Delete(&models.ProductComponent{}).Error; err != nil {
				return err
			}
			product.Components = nil
			for i, comp := range *req.Composition {
				if comp.ComponentProductID == product.ID {
					return fmt.Errorf("a product cannot be a component of itself")
				}
				line := models.ProductComponent{
					ParentProductID:    product.ID,
					ComponentProductID: comp.ComponentProductID,
					Quantity:           normalizeAmount(comp.Quantity),
					SortOrder:          int32(i),
				}
				if err := tx.Create(&line).Error; err != nil {
					return err
				}
				product.Components = append(product.Components, line)
			}
		}

		// Every edit of a kit refreshes its cached rollup.
		s.recomputeCostPrice(tx, &product)

		if req.SalePrice != nil {
			product.SalePrice = normalizeAmount(*req.SalePrice)
		} else if req.Composition != nil || req.CostPrice != nil || req.WastePercent != nil || req.ProductionTimeMinutes != nil {
			s.deriveSalePrice(tx, &product)
		}

		return tx.Omit("Components").Save(&product).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Product not found")
			return
		}
		s.error(c, http.StatusBadRequest, "Failed to update product: "+err.Error())
		return
	}

	s.db.Preload("Components.Component").First(&product, product.ID)

	s.InvalidateCatalogCaches(c.Request.Context(), product.ID)
	s.success(c, buildProductView(product))
}

func (s *CatalogHandler) GetProduct(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var product models.Product
	if err := s.db.Preload("Components.Component").First(&product, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "Product not found")
			return
		}
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.success(c, buildProductView(product))
}

func (s *CatalogHandler) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()

	category := c.Query("category")
	search := c.Query("search")
	isActive := c.Query("is_active")
	pageToken := c.Query("page_token")

	unfiltered := category == "" && search == "" && isActive == "" && pageToken == ""
	if unfiltered {
		if cached, err := s.redis.Get(ctx, PRODUCTS_CACHE_KEY).Result(); err == nil {
			var payload gin.H
			if json.Unmarshal([]byte(cached), &payload) == nil {
				c.JSON(http.StatusOK, payload)
				return
			}
		}
	}

	query := s.db.Model(&models.Product{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if isActive != "" {
		if v, err := strconv.ParseBool(isActive); err == nil {
			query = query.Where("is_active = ?", v)
		}
	}
	if search != "" {
		term := "%" + search + "%"
		query = query.Where("name ILIKE ? OR category ILIKE ?", term, term)
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
	if pageToken != "" {
		if n, err := strconv.Atoi(pageToken); err == nil && n > 0 {
			pageNumber = n
		}
	}

	var products []models.Product
	if err := query.Order("name asc").
		Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Find(&products).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	payload := gin.H{
		"success": true,
		"data":    products,
		"pagination": gin.H{
			"next_page_token": nextPageToken,
			"total_count":     total,
		},
	}

	if unfiltered {
		if raw, err := json.Marshal(payload); err == nil {
			_ = s.redis.Set(ctx, PRODUCTS_CACHE_KEY, raw, CACHE_TTL_SHORT).Err()
		}
	}

	c.JSON(http.StatusOK, payload)
}

func (s *CatalogHandler) DeleteProduct(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	result := s.db.Model(&models.Product{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		s.error(c, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	if result.RowsAffected == 0 {
		s.error(c, http.StatusNotFound, "Product not found")
		return
	}

	s.InvalidateCatalogCaches(c.Request.Context(), id)
	s.success(c, gin.H{"id": id, "is_active": false})
}
