package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/lock"
	"learning_progress_backend/pkg/monitoring"
	"learning_progress_backend/pkg/tracing"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// RollupTrigger 触发重算的事件，只有 COMPLETED 与 REPAIR 能把课程置为完成
type RollupTrigger string

const (
	TriggerStarted    RollupTrigger = "STARTED"
	TriggerIncomplete RollupTrigger = "INCOMPLETE"
	TriggerSubmitted  RollupTrigger = "SUBMITTED"
	TriggerCompleted  RollupTrigger = "COMPLETED"
	TriggerRepair     RollupTrigger = "REPAIR"
)

// TriggerFor 尝试状态到触发事件
func TriggerFor(status model.TrackStatus) RollupTrigger {
	switch status {
	case model.TrackCompleted:
		return TriggerCompleted
	case model.TrackSubmitted:
		return TriggerSubmitted
	case model.TrackIncomplete:
		return TriggerIncomplete
	}
	return TriggerStarted
}

type RollupRequest struct {
	Scope    model.TenantScope
	UserID   uint
	CourseID uint
	LessonID uint // 0 表示重算课程下全部模块
	Trigger  RollupTrigger
}

// RollupService 汇总表的唯一写入口
type RollupService struct {
	DB           *gorm.DB
	Content      *repository.ContentRepository
	Tracks       *repository.LessonTrackRepository
	Aggregates   *repository.AggregateRepository
	Locker       lock.Locker
	StoreTimeout time.Duration
	now          func() time.Time
}

func NewRollupService(
	db *gorm.DB,
	content *repository.ContentRepository,
	tracks *repository.LessonTrackRepository,
	aggregates *repository.AggregateRepository,
	locker lock.Locker,
	storeTimeout time.Duration,
) *RollupService {
	return &RollupService{
		DB:           db,
		Content:      content,
		Tracks:       tracks,
		Aggregates:   aggregates,
		Locker:       locker,
		StoreTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Recompute 从尝试记录重新计算课程与模块汇总，重复调用结果一致
func (s *RollupService) Recompute(ctx context.Context, req RollupRequest) error {
	ctx, span := tracing.Tracer.Start(ctx, "rollup.Recompute", trace.WithAttributes(
		append(spanAttrs(req.Scope, req.UserID, req.CourseID, "course.id"),
			attribute.Int64("lesson.id", int64(req.LessonID)),
			attribute.String("trigger", string(req.Trigger)))...,
	))
	defer span.End()

	start := time.Now()
	defer func() {
		monitoring.RollupDuration.Observe(time.Since(start).Seconds())
	}()

	unlock, err := s.Locker.Lock(ctx, lock.RollupKey(req.Scope.TenantID, req.UserID, req.CourseID))
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(util.ErrConflict, err.Error())
	}
	defer unlock()

	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.recompute(ctx, tx, req)
	})
	if err != nil {
		span.RecordError(err)
		return util.StoreError(err, util.ErrCourseTrackMissing)
	}
	return nil
}

func (s *RollupService) recompute(ctx context.Context, tx *gorm.DB, req RollupRequest) error {
	content := s.Content.WithTx(tx)
	tracks := s.Tracks.WithTx(tx)
	aggregates := s.Aggregates.WithTx(tx)

	lessons, err := content.ListCountableLessons(ctx, req.Scope, req.CourseID)
	if err != nil {
		return err
	}

	ids := make([]uint, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	attempts, err := tracks.ListByUserLessons(ctx, req.Scope, req.UserID, ids)
	if err != nil {
		return err
	}
	grouped := groupByLesson(attempts)

	completed := make(map[uint]bool, len(lessons))
	for i := range lessons {
		if ResolveOutcome(grouped[lessons[i].ID], &lessons[i]).Completed {
			completed[lessons[i].ID] = true
		}
	}

	// 子内容的尝试同样代表课程已开始
	started, err := tracks.CountByUserCourse(ctx, req.Scope, req.UserID, req.CourseID)
	if err != nil {
		return err
	}
	activity := courseActivity{
		total:       len(lessons),
		completed:   len(completed),
		hasAttempts: started > 0,
		hasProgress: hasProgress(attempts),
	}
	now := s.now()

	if err := s.writeCourse(ctx, aggregates, req, activity, now); err != nil {
		return err
	}

	moduleIDs, err := s.modulesToRecompute(ctx, content, req)
	if err != nil {
		return err
	}
	for _, moduleID := range moduleIDs {
		var total, done int
		for _, l := range lessons {
			if l.ModuleID != moduleID {
				continue
			}
			total++
			if completed[l.ID] {
				done++
			}
		}
		if err := s.writeModule(ctx, aggregates, req, moduleID, total, done); err != nil {
			return err
		}
	}
	return nil
}

type courseActivity struct {
	total       int
	completed   int
	hasAttempts bool
	hasProgress bool
}

func hasProgress(attempts []model.LessonTrack) bool {
	for _, a := range attempts {
		if a.Status != model.TrackNotStarted && a.Status != model.TrackStarted && a.Status != model.TrackNotEligible {
			return true
		}
	}
	return false
}

// nextCourseStatus INCOMPLETE/SUBMITTED/STARTED 触发的重算不会把课程置为完成
func nextCourseStatus(current model.CourseTrackStatus, a courseActivity, trigger RollupTrigger) model.CourseTrackStatus {
	allDone := a.total > 0 && a.completed >= a.total
	switch {
	case allDone && (trigger == TriggerCompleted || trigger == TriggerRepair):
		return model.CourseCompleted
	case allDone && current == model.CourseCompleted:
		return model.CourseCompleted
	case a.completed == 0 && !a.hasProgress:
		if a.hasAttempts {
			return model.CourseStarted
		}
		if current == model.CourseCompleted || current == model.CourseIncomplete {
			return model.CourseIncomplete
		}
		if current == "" {
			return model.CourseNotStarted
		}
		return current
	}
	return model.CourseIncomplete
}

func (s *RollupService) writeCourse(ctx context.Context, aggregates *repository.AggregateRepository, req RollupRequest, a courseActivity, now time.Time) error {
	track, err := aggregates.LockCourseTrack(ctx, req.Scope, req.UserID, req.CourseID)
	if err != nil {
		return err
	}
	if track == nil {
		// 未经选课创建的汇总行，延迟到首次写入时创建
		track = &model.CourseTrack{
			Tenant:   req.Scope.Columns(),
			UserID:   req.UserID,
			CourseID: req.CourseID,
			Status:   model.CourseNotStarted,
		}
	}

	track.TotalLessons = a.total
	track.CompletedLessons = a.completed
	track.Status = nextCourseStatus(track.Status, a, req.Trigger)
	if track.StartDatetime == nil && a.hasAttempts {
		track.StartDatetime = &now
	}
	if track.Status == model.CourseCompleted && track.EndDatetime == nil {
		track.EndDatetime = &now
	}
	track.LastAccessedDate = &now

	if track.ID == "" {
		return aggregates.CreateCourseTrack(ctx, track)
	}
	return aggregates.SaveCourseTrack(ctx, track)
}

func (s *RollupService) modulesToRecompute(ctx context.Context, content *repository.ContentRepository, req RollupRequest) ([]uint, error) {
	if req.LessonID != 0 {
		lesson, err := content.FindLesson(ctx, req.Scope, req.LessonID)
		if err == nil {
			return []uint{lesson.ModuleID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 课时已归档时退回到全部模块
	}

	modules, err := content.ListModules(ctx, req.Scope, req.CourseID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *RollupService) writeModule(ctx context.Context, aggregates *repository.AggregateRepository, req RollupRequest, moduleID uint, total, completed int) error {
	track, err := aggregates.LockModuleTrack(ctx, req.Scope, req.UserID, moduleID)
	if err != nil {
		return err
	}
	if track == nil {
		track = &model.ModuleTrack{
			Tenant:   req.Scope.Columns(),
			UserID:   req.UserID,
			ModuleID: moduleID,
			CourseID: req.CourseID,
		}
	}

	track.TotalLessons = total
	track.CompletedLessons = completed
	track.Progress = model.ProgressPercent(completed, total)
	track.Status = model.ModuleIncomplete
	if total > 0 && completed >= total {
		track.Status = model.ModuleCompleted
	}

	return aggregates.SaveModuleTrack(ctx, track)
}
