package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/lock"
	"learning_progress_backend/pkg/logger"
	"learning_progress_backend/pkg/monitoring"
	"learning_progress_backend/pkg/tracing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RollupSubmitter 由 RollupDispatcher 实现
type RollupSubmitter interface {
	Dispatch(ctx context.Context, req RollupRequest) error
}

// ProgressDelta 进度上报，未传的字段保持不变
type ProgressDelta struct {
	CurrentPosition      *int               `json:"currentPosition" validate:"omitempty,gte=0"`
	TotalContent         *int               `json:"totalContent" validate:"omitempty,gte=0"`
	Score                *int               `json:"score" validate:"omitempty,gte=0"`
	CompletionPercentage *int               `json:"completionPercentage" validate:"omitempty,gte=0,lte=100"`
	TimeSpent            *int               `json:"timeSpent" validate:"omitempty,gte=0"` // 本次增量，累加
	Status               *model.TrackStatus `json:"status" validate:"omitempty,oneof=NOT_STARTED STARTED INCOMPLETE SUBMITTED COMPLETED"`
}

// ExternalSignal 外部测验/签到给出的判定
type ExternalSignal struct {
	SourceKey string             `json:"sourceKey" validate:"required"`
	UserID    uint               `json:"userId" validate:"required"`
	Result    model.SignalResult `json:"result" validate:"required,oneof=PASS FAIL"`
	Score     *int               `json:"score" validate:"omitempty,gte=0"`
	TimeSpent int                `json:"timeSpent" validate:"gte=0"`
}

type LessonStatus struct {
	CanResume          bool              `json:"canResume"`
	CanReattempt       bool              `json:"canReattempt"`
	LastAttemptStatus  model.TrackStatus `json:"lastAttemptStatus,omitempty"`
	LastAttemptID      string            `json:"lastAttemptId,omitempty"`
	IsEligible         bool              `json:"isEligible"`
	UnmetPrerequisites []uint            `json:"unmetPrerequisites"`
}

// AttemptService 单个学员单个课时的尝试状态机
type AttemptService struct {
	DB          *gorm.DB
	Content     *repository.ContentRepository
	Tracks      *repository.LessonTrackRepository
	Enrollments *repository.EnrollmentRepository
	Eligibility *EligibilityService
	Rollups     RollupSubmitter
	Locker      lock.Locker

	cfg      config.TrackingConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	content *repository.ContentRepository,
	tracks *repository.LessonTrackRepository,
	enrollments *repository.EnrollmentRepository,
	eligibility *EligibilityService,
	rollups RollupSubmitter,
	locker lock.Locker,
	cfg config.TrackingConfig,
) *AttemptService {
	return &AttemptService{
		DB:          db,
		Content:     content,
		Tracks:      tracks,
		Enrollments: enrollments,
		Eligibility: eligibility,
		Rollups:     rollups,
		Locker:      locker,
		cfg:         cfg,
		validate:    validator.New(),
		now:         time.Now,
	}
}

// attemptFunc 在 (user, lesson) 锁内执行，返回是否发生了需要汇总的写入
type attemptFunc func(ctx context.Context, latest *model.LessonTrack) (*model.LessonTrack, bool, error)

// StartOrResume 有进行中的尝试且允许继续时直接返回，否则创建下一次尝试
func (s *AttemptService) StartOrResume(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (track *model.LessonTrack, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "attempt.StartOrResume", trace.WithAttributes(spanAttrs(scope, userID, lessonID, "lesson.id")...))
	defer span.End()
	defer s.observe("start", &err)

	lesson, err := s.loadStartable(ctx, scope, lessonID, userID)
	if err != nil {
		return nil, err
	}

	track, changed, err := s.serialize(ctx, scope, userID, lessonID, func(ctx context.Context, latest *model.LessonTrack) (*model.LessonTrack, bool, error) {
		if lesson.AllowResubmission {
			if latest == nil {
				return nil, false, util.ErrNoExistingAttempt
			}
			return latest, false, nil
		}
		if latest != nil && latest.Status.CanContinue() && lesson.CanResume() {
			return latest, false, nil
		}
		if lesson.MaxAttempts > 0 && latest != nil && latest.Attempt >= lesson.MaxAttempts {
			return nil, false, util.ErrMaxAttemptsReached
		}

		next := s.newTrack(scope, lesson, userID, nextAttempt(latest))
		if err := s.Tracks.Create(ctx, next); err != nil {
			return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if err := s.dispatch(ctx, scope, track, TriggerStarted); err != nil {
			return nil, err
		}
	}
	return track, nil
}

// StartOver 重交模式原地重置；否则在同一尝试序号上重新开始
func (s *AttemptService) StartOver(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (track *model.LessonTrack, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "attempt.StartOver", trace.WithAttributes(spanAttrs(scope, userID, lessonID, "lesson.id")...))
	defer span.End()
	defer s.observe("start_over", &err)

	lesson, err := s.loadStartable(ctx, scope, lessonID, userID)
	if err != nil {
		return nil, err
	}

	track, _, err = s.serialize(ctx, scope, userID, lessonID, func(ctx context.Context, latest *model.LessonTrack) (*model.LessonTrack, bool, error) {
		if latest == nil {
			fresh := s.newTrack(scope, lesson, userID, 1)
			if err := s.Tracks.Create(ctx, fresh); err != nil {
				return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
			}
			return fresh, true, nil
		}

		if lesson.AllowResubmission {
			latest.Reset(s.now())
			if err := s.Tracks.Save(ctx, latest); err != nil {
				return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
			}
			return latest, true, nil
		}

		if latest.Status == model.TrackCompleted {
			return nil, false, util.ErrAttemptCompleted
		}
		if lesson.MaxAttempts > 0 && latest.Attempt >= lesson.MaxAttempts {
			return nil, false, util.ErrMaxAttemptsReached
		}

		// 重新开始当前这一次：替换该序号的记录，序号不递增
		fresh := s.newTrack(scope, lesson, userID, latest.Attempt)
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			tracks := s.Tracks.WithTx(tx)
			if err := tracks.HardDelete(ctx, latest); err != nil {
				return err
			}
			return tracks.Create(ctx, fresh)
		})
		if err != nil {
			return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
		}
		return fresh, true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, scope, track, TriggerStarted); err != nil {
		return nil, err
	}
	return track, nil
}

// Resume 重交模式总是允许继续
func (s *AttemptService) Resume(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (track *model.LessonTrack, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "attempt.Resume", trace.WithAttributes(spanAttrs(scope, userID, lessonID, "lesson.id")...))
	defer span.End()
	defer s.observe("resume", &err)

	lesson, err := s.loadStartable(ctx, scope, lessonID, userID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()
	latest, err := s.Tracks.FindLatest(sctx, scope, userID, lessonID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}

	if lesson.AllowResubmission {
		if latest == nil {
			return nil, util.ErrNoExistingAttempt
		}
		return latest, nil
	}
	if !lesson.CanResume() {
		return nil, util.ErrResumeDisabled
	}
	if latest == nil {
		return nil, util.ErrNoExistingAttempt
	}
	if !latest.Status.CanContinue() {
		return nil, util.ErrAttemptCompleted
	}
	return latest, nil
}

// UpdateProgress 应用进度增量并推导状态；状态变化时触发汇总
func (s *AttemptService) UpdateProgress(ctx context.Context, scope model.TenantScope, attemptID string, delta ProgressDelta) (track *model.LessonTrack, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "attempt.UpdateProgress")
	defer span.End()
	defer s.observe("update", &err)

	if err := s.validate.Struct(delta); err != nil {
		return nil, errors.Wrap(util.ErrInvalidArgument, err.Error())
	}

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	current, err := s.Tracks.FindByID(sctx, scope, attemptID)
	cancel()
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}
	lesson, err := s.loadLesson(ctx, scope, current.LessonID)
	if err != nil {
		return nil, err
	}

	var previous model.TrackStatus
	var previousScore int
	track, changed, err := s.serialize(ctx, scope, current.UserID, current.LessonID, func(ctx context.Context, _ *model.LessonTrack) (*model.LessonTrack, bool, error) {
		// 锁内重新读取，StartOver 可能已替换该记录
		t, err := s.Tracks.FindByID(ctx, scope, attemptID)
		if err != nil {
			return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
		}
		if t.Status == model.TrackCompleted && !lesson.AllowResubmission {
			return nil, false, util.ErrAttemptCompleted
		}

		previous, previousScore = t.Status, t.Score
		s.applyDelta(t, delta)
		if err := s.Tracks.Save(ctx, t); err != nil {
			return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
		}
		return t, t.Status != previous || (t.Status.IsTerminal() && t.Score != previousScore), nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if err := s.dispatch(ctx, scope, track, TriggerFor(track.Status)); err != nil {
			return nil, err
		}
	}
	return track, nil
}

func (s *AttemptService) applyDelta(t *model.LessonTrack, delta ProgressDelta) {
	if delta.CurrentPosition != nil {
		t.CurrentPosition = *delta.CurrentPosition
	}
	if delta.TotalContent != nil {
		t.TotalContent = *delta.TotalContent
	}
	if delta.Score != nil {
		t.Score = *delta.Score
	}
	if delta.CompletionPercentage != nil {
		t.CompletionPercentage = *delta.CompletionPercentage
	}
	if delta.TimeSpent != nil {
		t.TimeSpent += *delta.TimeSpent
	}

	finished := (t.TotalContent > 0 && t.CurrentPosition >= t.TotalContent) || t.CompletionPercentage >= 100
	switch {
	case delta.Status != nil:
		t.Status = *delta.Status
	case finished:
		t.Status = model.TrackCompleted
		t.CompletionPercentage = 100
	case t.Status.IsResumable():
		t.Status = model.TrackIncomplete
	}

	if t.Status.IsTerminal() {
		if t.EndDatetime == nil {
			now := s.now()
			t.EndDatetime = &now
		}
	} else {
		t.EndDatetime = nil
	}
}

// CompleteByExternalSignal PASS -> COMPLETED，FAIL -> SUBMITTED；记录判定后完成度固定为 100
func (s *AttemptService) CompleteByExternalSignal(ctx context.Context, scope model.TenantScope, signal ExternalSignal) (track *model.LessonTrack, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "attempt.CompleteByExternalSignal")
	defer span.End()
	defer s.observe("external", &err)

	if err := s.validate.Struct(signal); err != nil {
		return nil, errors.Wrap(util.ErrInvalidArgument, err.Error())
	}

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	lesson, err := s.Content.FindLessonBySourceKey(sctx, scope, signal.SourceKey)
	cancel()
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}
	if err := s.requireEnrollment(ctx, scope, signal.UserID, lesson.CourseID); err != nil {
		return nil, err
	}

	status := model.TrackSubmitted
	if signal.Result == model.SignalPass {
		status = model.TrackCompleted
	}

	track, _, err = s.serialize(ctx, scope, signal.UserID, lesson.ID, func(ctx context.Context, latest *model.LessonTrack) (*model.LessonTrack, bool, error) {
		target := latest
		switch {
		case lesson.AllowResubmission && latest != nil:
		case latest != nil && latest.Status.IsResumable():
		case !lesson.AllowResubmission && lesson.MaxAttempts > 0 && latest != nil && latest.Attempt >= lesson.MaxAttempts:
			return nil, false, util.ErrMaxAttemptsReached
		default:
			target = s.newTrack(scope, lesson, signal.UserID, nextAttempt(latest))
		}

		now := s.now()
		target.Status = status
		target.CompletionPercentage = 100
		target.TimeSpent += signal.TimeSpent
		if signal.Score != nil {
			target.Score = *signal.Score
		}
		target.EndDatetime = &now

		var err error
		if target.ID == "" {
			err = s.Tracks.Create(ctx, target)
		} else {
			err = s.Tracks.Save(ctx, target)
		}
		if err != nil {
			return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
		}
		return target, true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, scope, track, TriggerFor(track.Status)); err != nil {
		return nil, err
	}
	return track, nil
}

func (s *AttemptService) GetLessonStatus(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (*LessonStatus, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	lesson, err := s.Content.FindLesson(ctx, scope, lessonID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}
	latest, err := s.Tracks.FindLatest(ctx, scope, userID, lessonID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}
	eligibility, err := s.Eligibility.CheckLessonEligibility(ctx, scope, lesson, userID)
	if err != nil {
		return nil, err
	}

	status := &LessonStatus{
		IsEligible:         eligibility.IsEligible,
		UnmetPrerequisites: eligibility.UnmetPrerequisites,
		CanReattempt:       lesson.AllowResubmission || lesson.MaxAttempts == 0 || latest == nil || latest.Attempt < lesson.MaxAttempts,
	}
	if latest != nil {
		status.LastAttemptStatus = latest.Status
		status.LastAttemptID = latest.ID
		status.CanResume = lesson.AllowResubmission || (lesson.CanResume() && latest.Status.CanContinue())
	}
	return status, nil
}

func (s *AttemptService) GetAttempt(ctx context.Context, scope model.TenantScope, attemptID string) (*model.LessonTrack, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	track, err := s.Tracks.FindByID(ctx, scope, attemptID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}
	return track, nil
}

func (s *AttemptService) loadLesson(ctx context.Context, scope model.TenantScope, lessonID uint) (*model.Lesson, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	lesson, err := s.Content.FindLesson(ctx, scope, lessonID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}
	return lesson, nil
}

// loadStartable 课时存在、学员已选课、前置课时均已完成
func (s *AttemptService) loadStartable(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (*model.Lesson, error) {
	lesson, err := s.loadLesson(ctx, scope, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(ctx, scope, userID, lesson.CourseID); err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()
	if err := s.Eligibility.RequireLesson(ctx, scope, lesson, userID); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *AttemptService) requireEnrollment(ctx context.Context, scope model.TenantScope, userID, courseID uint) error {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	enrolled, err := s.Enrollments.IsActive(ctx, scope, userID, courseID)
	if err != nil {
		return util.StoreError(err, util.ErrCourseNotFound)
	}
	if !enrolled {
		return util.ErrNotEnrolled
	}
	return nil
}

// serialize 同一 (user, lesson) 的读最新 + 写入串行执行；冲突时重新读取后重试一次
func (s *AttemptService) serialize(ctx context.Context, scope model.TenantScope, userID, lessonID uint, fn attemptFunc) (*model.LessonTrack, bool, error) {
	var (
		track   *model.LessonTrack
		changed bool
		err     error
	)
	for i := 0; i < 2; i++ {
		track, changed, err = s.locked(ctx, scope, userID, lessonID, fn)
		if !errors.Is(err, util.ErrConflict) {
			break
		}
		logger.Log.Warn("Attempt write conflict",
			append(scopeFields(scope),
				zap.Uint("user_id", userID),
				zap.Uint("lesson_id", lessonID),
				zap.Int("try", i+1),
				zap.Error(err))...)
	}
	return track, changed, err
}

func (s *AttemptService) locked(ctx context.Context, scope model.TenantScope, userID, lessonID uint, fn attemptFunc) (*model.LessonTrack, bool, error) {
	unlock, err := s.Locker.Lock(ctx, lock.AttemptKey(scope.TenantID, userID, lessonID))
	if err != nil {
		return nil, false, errors.Wrap(util.ErrConflict, err.Error())
	}
	defer unlock()

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	latest, err := s.Tracks.FindLatest(ctx, scope, userID, lessonID)
	if err != nil {
		return nil, false, util.StoreError(err, util.ErrAttemptNotFound)
	}
	return fn(ctx, latest)
}

func (s *AttemptService) newTrack(scope model.TenantScope, lesson *model.Lesson, userID uint, attempt int) *model.LessonTrack {
	return &model.LessonTrack{
		Tenant:        scope.Columns(),
		UserID:        userID,
		LessonID:      lesson.ID,
		CourseID:      lesson.CourseID,
		Attempt:       attempt,
		Status:        model.TrackStarted,
		StartDatetime: s.now(),
	}
}

func nextAttempt(latest *model.LessonTrack) int {
	if latest == nil {
		return 1
	}
	return latest.Attempt + 1
}

func (s *AttemptService) dispatch(ctx context.Context, scope model.TenantScope, track *model.LessonTrack, trigger RollupTrigger) error {
	return s.Rollups.Dispatch(ctx, RollupRequest{
		Scope:    scope,
		UserID:   track.UserID,
		CourseID: track.CourseID,
		LessonID: track.LessonID,
		Trigger:  trigger,
	})
}

func (s *AttemptService) observe(op string, err *error) {
	monitoring.AttemptCounter.WithLabelValues(op, util.ErrorKind(*err)).Inc()
}
