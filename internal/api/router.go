package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dorm-open-data-backend/internal/metrics"
	"dorm-open-data-backend/internal/mw"
)

// RouterConfig carries the middleware settings of NewRouter.
type RouterConfig struct {
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	RateLimiter *mw.IPRateLimiter
	IPHeader    string
	// Cache is nil when response caching is disabled.
	Cache    mw.CacheStore
	CacheTTL time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(logger), mw.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.GET("/health", handler.Health)

	caching := func(c *gin.Context) { c.Next() }
	if cfg.Cache != nil {
		caching = mw.Cache(cfg.Cache, cfg.CacheTTL)
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(mw.RateLimiter(cfg.RateLimiter, cfg.IPHeader))
	}
	{
		openData := api.Group("/open-data", caching)
		openData.GET("/statistics", handler.GetStatistics)
		openData.GET("/statistics/dorms/:dorm_id", handler.GetDormitoryStatistics)
		openData.GET("/rooms/search", handler.SearchRooms)
		openData.GET("/rooms/:room_id/applications", handler.GetRoomApplications)
		openData.GET("/applications/academic-year", handler.GetAcceptedByYear)
		openData.GET("/dorms/list", handler.GetDormitories)
		openData.GET("/dorms/compare", handler.CompareDormitories)
		openData.GET("/trends/applications", handler.GetApplicationTrends)
		openData.GET("/occupancy/heatmap", handler.GetOccupancyHeatmap)
		openData.GET("/export", handler.Export)
		openData.GET("/amenities", handler.GetAmenities)

		api.POST("/applications/:id/approve", handler.ApproveApplication)
		api.POST("/residents/:user_id/evict", handler.EvictResident)
		api.POST("/residents/:user_id/checkout", handler.CheckoutResident)
		api.POST("/payments/:id/paid", handler.MarkPaymentPaid)
		api.POST("/payments/:id/unpaid", handler.MarkPaymentUnpaid)
		api.POST("/payments/overdue-sweep", handler.SweepOverduePayments)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
