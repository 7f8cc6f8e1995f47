package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the Gin engine with the work-order routes and middlewares.
func NewRouter(handler *WorkOrderHandler, zlog *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(zlog))

	orders := r.Group("/work-orders")
	{
		orders.POST("", handler.Create)
		orders.GET("", handler.ListBySite)
		orders.GET("/:id", handler.Get)
		orders.GET("/:id/history", handler.History)
		orders.GET("/:id/finish-check", handler.CheckFinish)

		orders.POST("/:id/ready", handler.MarkReady)
		orders.POST("/:id/start", handler.Start)
		orders.POST("/:id/pause", handler.Pause)
		orders.POST("/:id/resume", handler.Resume)
		orders.POST("/:id/progress", handler.AdjustProgress)
		orders.PUT("/:id/declared-total", handler.EditDeclaredTotal)
		orders.POST("/:id/finish", handler.Finish)
		orders.POST("/:id/cancel", handler.Cancel)

		orders.POST("/:id/crew", handler.Assign)
		orders.POST("/:id/crew/confirm", handler.ConfirmReassign)
		orders.DELETE("/:id/crew/:crewMemberId", handler.Revoke)
		orders.POST("/:id/attendance", handler.RecordAttendance)

		orders.DELETE("/:id", handler.RequestDelete)
		orders.POST("/:id/undo", handler.Undo)
	}

	r.GET("/sites/:site/capacity", handler.RemainingCapacity)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

func zapLoggerMiddleware(zlog *zap.Logger) gin.HandlerFunc {
	if zlog == nil {
		zlog = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		zlog.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
