package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// withStoreTimeout 为存储访问设置上限，超时后由 util.StoreError 转为可重试错误
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func scopeFields(scope model.TenantScope) []zap.Field {
	return []zap.Field{
		zap.String("tenant_id", scope.TenantID),
		zap.String("organization_id", scope.OrganizationID),
	}
}

func spanAttrs(scope model.TenantScope, userID, id uint, idKey string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("tenant.id", scope.TenantID),
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64(idKey, int64(id)),
	}
}

// dedupe 去重并保持原有顺序，跳过 0 与 self
func dedupe(ids []uint, self uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == self || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func groupByLesson(tracks []model.LessonTrack) map[uint][]model.LessonTrack {
	grouped := make(map[uint][]model.LessonTrack)
	for _, t := range tracks {
		grouped[t.LessonID] = append(grouped[t.LessonID], t)
	}
	return grouped
}

func toSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
