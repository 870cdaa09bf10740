package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"printflow-system/internal/database/models"
	"printflow-system/internal/pricing"
)

const FINANCE_CONFIG_CACHE = "finance:config"

type FinanceHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewFinanceHandler(db *gorm.DB, redisClient *redis.Client) *FinanceHandler {
	return &FinanceHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *FinanceHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *FinanceHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func normalizePercent(s string) string {
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

// loadOrCreateConfig returns the singleton config row, creating a
// zeroed one on first use.
func (s *FinanceHandler) loadOrCreateConfig(tx *gorm.DB) (models.FinancialConfig, error) {
	var cfg models.FinancialConfig
	err := tx.First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		cfg = models.FinancialConfig{ID: 1}
		err = tx.Create(&cfg).Error
	}
	return cfg, err
}

func (s *FinanceHandler) GetConfig(c *gin.Context) {
	cfg, err := s.loadOrCreateConfig(s.db)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.success(c, cfg)
}

type UpdateConfigRequest struct {
	TargetMarginPercent *string `json:"target_margin_percent"`
	TaxPercent          *string `json:"tax_percent"`
	CommissionPercent   *string `json:"commission_percent"`
	CostPerHour         *string `json:"cost_per_hour"`
	LogisticsRatePerKm  *string `json:"logistics_rate_per_km"`
	LogisticsFixedFee   *string `json:"logistics_fixed_fee"`
}

// UpdateConfig edits the singleton. Existing quote totals and
// commission snapshots are untouched; only future derivations see the
// new rates.
func (s *FinanceHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var cfg models.FinancialConfig
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		cfg, err = s.loadOrCreateConfig(tx)
		if err != nil {
			return err
		}

		if req.TargetMarginPercent != nil {
			cfg.TargetMarginPercent = normalizePercent(*req.TargetMarginPercent)
		}
		if req.TaxPercent != nil {
			cfg.TaxPercent = normalizePercent(*req.TaxPercent)
		}
		if req.CommissionPercent != nil {
			cfg.CommissionPercent = normalizePercent(*req.CommissionPercent)
		}
		if req.CostPerHour != nil {
			cfg.CostPerHour = normalizePercent(*req.CostPerHour)
		}
		if req.LogisticsRatePerKm != nil {
			cfg.LogisticsRatePerKm = normalizePercent(*req.LogisticsRatePerKm)
		}
		if req.LogisticsFixedFee != nil {
			cfg.LogisticsFixedFee = normalizePercent(*req.LogisticsFixedFee)
		}

		return tx.Save(&cfg).Error
	})
	if err != nil {
		s.error(c, http.StatusInternalServerError, "Failed to update config: "+err.Error())
		return
	}

	_ = s.redis.Del(c.Request.Context(), FINANCE_CONFIG_CACHE).Err()
	s.success(c, cfg)
}

type PriceSimulationRequest struct {
	MaterialCost          string `json:"material_cost" binding:"required"`
	ProductionTimeMinutes int32  `json:"production_time_minutes"`
	WastePercent          string `json:"waste_percent"`
}

// SimulatePrice runs the sale price derivation against the current
// config without persisting anything. The response carries the full
// breakdown so a salesperson can see where the number comes from.
func (s *FinanceHandler) SimulatePrice(c *gin.Context) {
	var req PriceSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cfg, err := s.loadOrCreateConfig(s.db)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	b := pricing.SalePrice(
		pricing.Inputs{
			MaterialCost:          amountToFloat(req.MaterialCost),
			ProductionTimeMinutes: float64(req.ProductionTimeMinutes),
			WastePercent:          amountToFloat(req.WastePercent),
		},
		pricing.Config{
			TargetMarginPercent: amountToFloat(cfg.TargetMarginPercent),
			TaxPercent:          amountToFloat(cfg.TaxPercent),
			CommissionPercent:   amountToFloat(cfg.CommissionPercent),
			CostPerHour:         amountToFloat(cfg.CostPerHour),
		},
	)

	resp := gin.H{
		"sale_price":            decimal.NewFromFloat(b.SalePrice).Round(2).String(),
		"cost_with_waste":       decimal.NewFromFloat(b.CostWithWaste).Round(4).String(),
		"operational_cost":      decimal.NewFromFloat(b.OperationalCost).Round(4).String(),
		"total_production_cost": decimal.NewFromFloat(b.TotalProductionCost).Round(4).String(),
		"divisor":               decimal.NewFromFloat(b.Divisor).Round(4).String(),
		"fallback":              b.Fallback,
	}
	if b.Fallback {
		resp["warning"] = "margin, tax and commission leave no usable divisor; price fell back to 2x production cost"
	}

	s.success(c, resp)
}
