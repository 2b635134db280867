package service

import (
	"context"
	"sync"
	"time"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RepairService 强制全量重算，用于修复与回填
type RepairService struct {
	Content      *repository.ContentRepository
	Enrollments  *repository.EnrollmentRepository
	Tracks       *repository.LessonTrackRepository
	Rollup       Recomputer
	StoreTimeout time.Duration

	mu      sync.Mutex
	lastRun time.Time
	now     func() time.Time
}

func NewRepairService(
	content *repository.ContentRepository,
	enrollments *repository.EnrollmentRepository,
	tracks *repository.LessonTrackRepository,
	rollup Recomputer,
	storeTimeout time.Duration,
) *RepairService {
	return &RepairService{
		Content:      content,
		Enrollments:  enrollments,
		Tracks:       tracks,
		Rollup:       rollup,
		StoreTimeout: storeTimeout,
		now:          time.Now,
	}
}

// RecalculateProgress 对课程的每个选课学员执行 REPAIR 重算，单个失败不影响其他学员
func (s *RepairService) RecalculateProgress(ctx context.Context, scope model.TenantScope, courseID uint) (int, error) {
	sctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	if _, err := s.Content.FindCourse(sctx, scope, courseID); err != nil {
		cancel()
		return 0, util.StoreError(err, util.ErrCourseNotFound)
	}
	enrollments, err := s.Enrollments.ListByCourse(sctx, scope, courseID)
	cancel()
	if err != nil {
		return 0, util.StoreError(err, util.ErrEnrollmentNotFound)
	}

	processed, failed := 0, 0
	var firstErr error
	for _, e := range enrollments {
		err := s.Rollup.Recompute(ctx, RollupRequest{
			Scope:    scope,
			UserID:   e.UserID,
			CourseID: courseID,
			Trigger:  TriggerRepair,
		})
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			logger.Log.Error("Repair recompute failed",
				append(scopeFields(scope), zap.Uint("user_id", e.UserID), zap.Uint("course_id", courseID), zap.Error(err))...)
			continue
		}
		processed++
	}

	logger.Log.Info("Progress recalculated",
		append(scopeFields(scope), zap.Uint("course_id", courseID), zap.Int("processed", processed), zap.Int("failed", failed))...)
	if firstErr != nil {
		return processed, errors.Wrapf(firstErr, "%d of %d recomputes failed", failed, len(enrollments))
	}
	return processed, nil
}

// RecalculateActive 定时任务：重算自上次运行以来有尝试变更的学员-课程，首次运行回看 24 小时
func (s *RepairService) RecalculateActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startedAt := s.now()
	since := s.lastRun
	if since.IsZero() {
		since = startedAt.Add(-24 * time.Hour)
	}

	sctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	active, err := s.Tracks.ListActiveUserCourses(sctx, since)
	cancel()
	if err != nil {
		return 0, util.StoreError(err, util.ErrAttemptNotFound)
	}

	processed := 0
	var firstErr error
	for _, a := range active {
		scope := model.TenantScope{TenantID: a.TenantID, OrganizationID: a.OrganizationID}
		err := s.Rollup.Recompute(ctx, RollupRequest{
			Scope:    scope,
			UserID:   a.UserID,
			CourseID: a.CourseID,
			Trigger:  TriggerRepair,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Log.Error("Scheduled recompute failed",
				append(scopeFields(scope), zap.Uint("user_id", a.UserID), zap.Uint("course_id", a.CourseID), zap.Error(err))...)
			continue
		}
		processed++
	}

	// 有失败时不推进游标，下次重跑
	if firstErr == nil {
		s.lastRun = startedAt
	}
	return processed, firstErr
}
