package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"printflow-system/internal/commission"
	"printflow-system/internal/database/models"
	"printflow-system/internal/quotes"
)

const (
	COMMISSION_EVENTS_CHANNEL = "commissions:events:paid"
	QUOTES_CACHE_KEY          = "quotes:list"
)

type CommissionsHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCommissionsHandler(db *gorm.DB, redisClient *redis.Client) *CommissionsHandler {
	return &CommissionsHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *CommissionsHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *CommissionsHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *CommissionsHandler) globalCommissionPercent() decimal.Decimal {
	var cfg models.FinancialConfig
	if err := s.db.First(&cfg).Error; err != nil {
		return decimal.Zero
	}
	p, err := decimal.NewFromString(cfg.CommissionPercent)
	if err != nil {
		return decimal.Zero
	}
	return p
}

type balanceView struct {
	SalespersonID int64  `json:"salesperson_id"`
	Amount        string `json:"amount"`
	QuoteCount    int    `json:"quote_count"`
}

// GetBalances reports each salesperson's payable commission over
// delivered, unpaid quotes.
func (s *CommissionsHandler) GetBalances(c *gin.Context) {
	query := s.db.Where("status = ? AND commission_paid = ?", quotes.StatusDelivered, false)
	if sp := c.Query("salesperson_id"); sp != "" {
		id, err := strconv.ParseInt(sp, 10, 64)
		if err != nil {
			s.error(c, http.StatusBadRequest, "Invalid salesperson_id")
			return
		}
		query = query.Where("salesperson_id = ?", id)
	}

	var list []models.Quote
	if err := query.Find(&list).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	balances := commission.ComputeBalances(list, s.globalCommissionPercent())

	views := make([]balanceView, 0, len(balances))
	for salespersonID, b := range balances {
		views = append(views, balanceView{
			SalespersonID: salespersonID,
			Amount:        b.Amount.Round(2).String(),
			QuoteCount:    b.QuoteCount,
		})
	}

	s.success(c, views)
}

// txQuoteStore binds the settlement engine to one database
// transaction, so a pay batch flips all-or-nothing.
type txQuoteStore struct{ tx *gorm.DB }

func (s txQuoteStore) ListPayable(ctx context.Context, salespersonID int64, quoteIDs []int64) ([]models.Quote, error) {
	query := s.tx.WithContext(ctx).
		Where("salesperson_id = ? AND status = ? AND commission_paid = ?",
			salespersonID, quotes.StatusDelivered, false)
	if len(quoteIDs) > 0 {
		query = query.Where("id IN ?", quoteIDs)
	}

	var list []models.Quote
	return list, query.Find(&list).Error
}

func (s txQuoteStore) MarkPaid(ctx context.Context, quoteID int64, paidAt time.Time) error {
	return s.tx.WithContext(ctx).Model(&models.Quote{}).Where("id = ?", quoteID).
		Updates(map[string]interface{}{
			"commission_paid":    true,
			"commission_paid_at": paidAt,
		}).Error
}

type PayCommissionRequest struct {
	QuoteIDs []int64 `json:"quote_ids"`
}

// PayCommission settles a salesperson's accrued commission in one
// batch. With no explicit quote list, every eligible quote settles.
func (s *CommissionsHandler) PayCommission(c *gin.Context) {
	salespersonID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid salesperson ID")
		return
	}

	var req PayCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	globalPercent := s.globalCommissionPercent()

	var settlement *commission.Settlement
	err = s.db.Transaction(func(tx *gorm.DB) error {
		st, err := commission.Settle(c.Request.Context(), salespersonID, req.QuoteIDs, globalPercent, txQuoteStore{tx})
		if err != nil {
			return err
		}
		settlement = st
		return nil
	})
	if err != nil {
		if errors.Is(err, commission.ErrNothingPayable) {
			s.error(c, http.StatusBadRequest, fmt.Sprintf("no payable quotes for salesperson %d", salespersonID))
			return
		}
		s.error(c, http.StatusInternalServerError, "Failed to pay commission: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	_ = s.redis.Del(ctx, QUOTES_CACHE_KEY).Err()

	payload := fmt.Sprintf(`{"salesperson_id":%d,"amount":%q,"quote_count":%d}`,
		salespersonID, settlement.Amount.Round(2).String(), len(settlement.QuoteIDs))
	if err := s.redis.Publish(ctx, COMMISSION_EVENTS_CHANNEL, payload).Err(); err != nil {
		logrus.Warnf("Failed to publish commission paid event: %v", err)
	}

	s.success(c, gin.H{
		"salesperson_id": salespersonID,
		"amount_paid":    settlement.Amount.Round(2).String(),
		"quote_ids":      settlement.QuoteIDs,
	})
}

// History lists a salesperson's settled quotes, newest settlement
// first.
func (s *CommissionsHandler) History(c *gin.Context) {
	salespersonID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid salesperson ID")
		return
	}

	var list []models.Quote
	if err := s.db.Where("salesperson_id = ? AND commission_paid = ?", salespersonID, true).
		Order("commission_paid_at desc").Find(&list).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	globalPercent := s.globalCommissionPercent()
	type historyItem struct {
		models.Quote
		CommissionAmount string `json:"commission_amount"`
	}
	items := make([]historyItem, 0, len(list))
	for i := range list {
		amount := decimal.Zero
		if total, err := decimal.NewFromString(list[i].TotalAmount); err == nil {
			amount = total.Mul(commission.EffectivePercent(&list[i], globalPercent)).Div(decimal.NewFromInt(100))
		}
		items = append(items, historyItem{Quote: list[i], CommissionAmount: amount.Round(2).String()})
	}

	s.success(c, items)
}
