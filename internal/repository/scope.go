package repository

import (
	"context"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
)

// scoped 所有查询都按租户与机构过滤
func scoped(ctx context.Context, db *gorm.DB, scope model.TenantScope) *gorm.DB {
	return db.WithContext(ctx).Where("tenant_id = ? AND organization_id = ?", scope.TenantID, scope.OrganizationID)
}
