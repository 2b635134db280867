package util

import (
	"learning_progress_backend/internal/model"

	"github.com/gin-gonic/gin"
)

// GetScopeFromContext 由 TenantMiddleware 写入
func GetScopeFromContext(c *gin.Context) (model.TenantScope, bool) {
	v, exists := c.Get(CtxScopeKey)
	if !exists {
		return model.TenantScope{}, false
	}
	scope, ok := v.(model.TenantScope)
	return scope, ok
}

// GetUserIDFromContext 由 LearnerMiddleware 写入
func GetUserIDFromContext(c *gin.Context) (uint, bool) {
	v, exists := c.Get(CtxUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
