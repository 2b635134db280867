package controller

import (
	"context"
	"net/http"
	"time"

	"learning_progress_backend/internal/service"
	"learning_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Dispatcher *service.RollupDispatcher
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, dispatcher *service.RollupDispatcher) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Dispatcher: dispatcher}
}

// @Summary 健康检查
// @Description 检查数据库、Redis 与汇总模式
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up"}
	// Redis 只用于分布式锁，不可用时降级而不是整体失败
	if c.Redis != nil {
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			components["redis"] = "down"
		} else {
			components["redis"] = "up"
		}
	}
	if c.Dispatcher != nil {
		components["rollup_mode"] = c.Dispatcher.Mode()
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
