package middleware

import (
	"strings"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TenantMiddleware 租户与机构由网关注入，引擎只用于过滤
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := model.TenantScope{
			TenantID:       strings.TrimSpace(c.GetHeader(util.HeaderTenantID)),
			OrganizationID: strings.TrimSpace(c.GetHeader(util.HeaderOrganizationID)),
		}
		if scope.TenantID == "" || scope.OrganizationID == "" {
			util.BadRequest(c, "missing tenant headers")
			c.Abort()
			return
		}

		c.Set(util.CtxScopeKey, scope)
		c.Next()
	}
}

// LearnerMiddleware 学员接口需要 X-User-ID
func LearnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := util.ParseID(c.GetHeader(util.HeaderUserID))
		if err != nil {
			util.BadRequest(c, "missing or invalid "+util.HeaderUserID)
			c.Abort()
			return
		}

		c.Set(util.CtxUserIDKey, userID)
		c.Next()
	}
}
