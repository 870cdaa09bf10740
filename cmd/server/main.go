package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"printflow-system/config"
	"printflow-system/internal/database"
	"printflow-system/internal/gateway/middleware"
	cataloghandler "printflow-system/internal/services/catalog/handler"
	commissionshandler "printflow-system/internal/services/commissions/handler"
	financehandler "printflow-system/internal/services/finance/handler"
	inventoryhandler "printflow-system/internal/services/inventory/handler"
	quoteshandler "printflow-system/internal/services/quotes/handler"
	userhandler "printflow-system/internal/services/user/handler"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.LoadConfig()

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	catalogHandler := cataloghandler.NewCatalogHandler(db, redisClient)
	inventoryHandler := inventoryhandler.NewInventoryHandler(db, redisClient)
	quotesHandler := quoteshandler.NewQuotesHandler(db, redisClient)
	commissionsHandler := commissionshandler.NewCommissionsHandler(db, redisClient)
	financeHandler := financehandler.NewFinanceHandler(db, redisClient)
	userHandler := userhandler.NewUserHandler(db, redisClient)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit())

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "up", "redis": "up"}
		healthy := true

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["database"] = "down"
			healthy = false
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			healthy = false
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"success": healthy, "data": status})
	})

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", userHandler.Login)
			auth.POST("/register", userHandler.Register)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		users := protected.Group("/users")
		{
			users.GET("", userHandler.ListUsers)
			users.GET("/:id", userHandler.GetUser)
		}

		roles := protected.Group("/roles")
		{
			roles.GET("", userHandler.ListRoles)
			roles.POST("", userHandler.CreateRole)
		}

		products := protected.Group("/products")
		{
			products.GET("", catalogHandler.ListProducts)
			products.POST("", catalogHandler.CreateProduct)
			products.GET("/:id", catalogHandler.GetProduct)
			products.PUT("/:id", catalogHandler.UpdateProduct)
			products.DELETE("/:id", catalogHandler.DeleteProduct)
			products.POST("/:id/stock-adjustments", inventoryHandler.AdjustStock)
			products.GET("/:id/transactions", inventoryHandler.ListTransactions)
		}

		inventory := protected.Group("/inventory")
		{
			inventory.GET("/transactions", inventoryHandler.ListTransactions)
			inventory.GET("/low-stock", inventoryHandler.LowStock)
		}

		quotes := protected.Group("/quotes")
		{
			quotes.GET("", quotesHandler.ListQuotes)
			quotes.POST("", quotesHandler.CreateQuote)
			quotes.GET("/:id", quotesHandler.GetQuote)
			quotes.PUT("/:id", quotesHandler.UpdateQuote)
			quotes.DELETE("/:id", quotesHandler.DeleteQuote)
			quotes.PATCH("/:id/status", quotesHandler.UpdateStatus)
			quotes.POST("/:id/deduct-stock", quotesHandler.DeductStock)
		}

		commissions := protected.Group("/commissions")
		{
			commissions.GET("/balances", commissionsHandler.GetBalances)
			commissions.POST("/:id/pay", commissionsHandler.PayCommission)
			commissions.GET("/:id/history", commissionsHandler.History)
		}

		finance := protected.Group("/finance")
		{
			finance.GET("/config", financeHandler.GetConfig)
			finance.PUT("/config", financeHandler.UpdateConfig)
			finance.POST("/price-simulation", financeHandler.SimulatePrice)
		}
	}

	logrus.Infof("Server listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}
