package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"HexCollector-App/internal/logger"
)

// NewRouter はAPIのルーティングを組み立てる
func NewRouter(collectionHandler *CollectionHandler, l *log.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.OrDefault(l)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "HexCollector-App",
		})
	})

	collectionHandler.RegisterRoutes(router)
	return router
}

func requestLogger(l *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := l.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry = l.Error()
		}
		entry.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTPリクエスト")
	}
}
