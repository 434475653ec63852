package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func HealthCheck(c *gin.Context) {
	status, code := "ok", http.StatusOK
	database := "up"
	if db.DB == nil {
		database = "not initialized"
		status, code = "degraded", http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.DB.PingContext(ctx); err != nil {
			log.Warnf("HealthCheck: database ping failed: %v", err)
			database = "down"
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": database,
		"message":  "AdReel API is running",
	})
}
