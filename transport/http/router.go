package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/ports"
)

// Dependencies are the objects the router serves.
type Dependencies struct {
	Env          string
	Logger       *zap.Logger
	Auth         Authenticator
	Transactions ports.TransactionStore
	Metrics      *HTTPMetrics

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(deps.Logger))
	router.Use(deps.Metrics.Handler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	auth := NewAuthHandlers(deps.Auth, deps.Logger)
	router.GET("/auth", auth.Challenge)
	router.POST("/auth", auth.Token)

	if deps.Transactions != nil {
		transactions := NewTransactionHandlers(deps.Transactions, deps.Logger)
		sep24 := router.Group("/sep24")
		sep24.Use(AuthMiddleware(deps.Auth))
		{
			sep24.GET("/transaction", transactions.Transaction)
			sep24.GET("/transactions", transactions.Transactions)
		}
	}

	return router
}
