package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EnrollResult struct {
	Enrollment  *model.Enrollment  `json:"enrollment"`
	CourseTrack *model.CourseTrack `json:"courseTrack"`
	Eligibility *CourseEligibility `json:"eligibility"`
}

// EnrollmentService 选课生命周期：创建时预建汇总行，删除前检查是否已有尝试
type EnrollmentService struct {
	DB           *gorm.DB
	Content      *repository.ContentRepository
	Enrollments  *repository.EnrollmentRepository
	Tracks       *repository.LessonTrackRepository
	Aggregates   *repository.AggregateRepository
	Eligibility  *EligibilityService
	StoreTimeout time.Duration
}

func NewEnrollmentService(
	db *gorm.DB,
	content *repository.ContentRepository,
	enrollments *repository.EnrollmentRepository,
	tracks *repository.LessonTrackRepository,
	aggregates *repository.AggregateRepository,
	eligibility *EligibilityService,
	storeTimeout time.Duration,
) *EnrollmentService {
	return &EnrollmentService{
		DB:           db,
		Content:      content,
		Enrollments:  enrollments,
		Tracks:       tracks,
		Aggregates:   aggregates,
		Eligibility:  eligibility,
		StoreTimeout: storeTimeout,
	}
}

// Enroll 重复选课返回已有记录；前置课程未完成时课程汇总为 NOT_ELIGIBLE
func (s *EnrollmentService) Enroll(ctx context.Context, scope model.TenantScope, userID, courseID uint, cohortID *uint) (*EnrollResult, error) {
	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	course, err := s.Content.FindCourse(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCourseNotFound)
	}

	eligibility, err := s.Eligibility.CheckCourseEligibility(ctx, scope, course, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.Enrollments.Find(ctx, scope, userID, courseID)
	if err == nil {
		track, err := s.Aggregates.FindCourseTrack(ctx, scope, userID, courseID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.StoreError(err, util.ErrCourseTrackMissing)
		}
		return &EnrollResult{Enrollment: existing, CourseTrack: track, Eligibility: eligibility}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.StoreError(err, util.ErrEnrollmentNotFound)
	}

	modules, err := s.Content.ListModules(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrModuleNotFound)
	}
	totals, err := s.Content.CountCountableLessons(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}

	status := model.CourseStarted
	if !eligibility.IsEligible {
		status = model.CourseNotEligible
	}

	result := &EnrollResult{Eligibility: eligibility}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment := &model.Enrollment{
			Tenant:   scope.Columns(),
			UserID:   userID,
			CourseID: courseID,
			CohortID: cohortID,
			Status:   model.EnrollmentActive,
		}
		if err := s.Enrollments.WithTx(tx).Create(ctx, enrollment); err != nil {
			return err
		}

		total := 0
		moduleTracks := make([]model.ModuleTrack, 0, len(modules))
		for _, m := range modules {
			total += totals[m.ID]
			moduleTracks = append(moduleTracks, model.ModuleTrack{
				Tenant:       scope.Columns(),
				UserID:       userID,
				ModuleID:     m.ID,
				CourseID:     courseID,
				TotalLessons: totals[m.ID],
				Status:       model.ModuleIncomplete,
			})
		}

		aggregates := s.Aggregates.WithTx(tx)
		track, err := aggregates.LockCourseTrack(ctx, scope, userID, courseID)
		if err != nil {
			return err
		}
		if track == nil {
			track = &model.CourseTrack{
				Tenant:       scope.Columns(),
				UserID:       userID,
				CourseID:     courseID,
				TotalLessons: total,
				Status:       status,
			}
			if err := aggregates.CreateCourseTrack(ctx, track); err != nil {
				return err
			}
			if err := aggregates.CreateModuleTracks(ctx, moduleTracks); err != nil {
				return err
			}
		}

		result.Enrollment = enrollment
		result.CourseTrack = track
		return nil
	})
	if err != nil {
		return nil, util.StoreError(err, util.ErrEnrollmentNotFound)
	}

	logger.Log.Info("Learner enrolled",
		append(scopeFields(scope),
			zap.Uint("user_id", userID),
			zap.Uint("course_id", courseID),
			zap.String("status", string(status)))...)
	return result, nil
}

func (s *EnrollmentService) IsEnrolled(ctx context.Context, scope model.TenantScope, userID, courseID uint) (bool, error) {
	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	ok, err := s.Enrollments.IsActive(ctx, scope, userID, courseID)
	if err != nil {
		return false, util.StoreError(err, util.ErrEnrollmentNotFound)
	}
	return ok, nil
}

// CheckEnrollmentDeletable 已有任何尝试记录时不允许删除选课
func (s *EnrollmentService) CheckEnrollmentDeletable(ctx context.Context, scope model.TenantScope, userID, courseID uint) error {
	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()
	return s.checkDeletable(ctx, s.Enrollments, s.Tracks, scope, userID, courseID)
}

func (s *EnrollmentService) checkDeletable(ctx context.Context, enrollments *repository.EnrollmentRepository, tracks *repository.LessonTrackRepository, scope model.TenantScope, userID, courseID uint) error {
	if _, err := enrollments.Find(ctx, scope, userID, courseID); err != nil {
		return util.StoreError(err, util.ErrEnrollmentNotFound)
	}
	count, err := tracks.CountByUserCourse(ctx, scope, userID, courseID)
	if err != nil {
		return util.StoreError(err, util.ErrAttemptNotFound)
	}
	if count > 0 {
		return util.ErrEnrollmentHasAttempts
	}
	return nil
}

// DeleteEnrollment 物理删除选课及其汇总行
func (s *EnrollmentService) DeleteEnrollment(ctx context.Context, scope model.TenantScope, userID, courseID uint) error {
	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollments := s.Enrollments.WithTx(tx)
		if err := s.checkDeletable(ctx, enrollments, s.Tracks.WithTx(tx), scope, userID, courseID); err != nil {
			return err
		}
		enrollment, err := enrollments.Find(ctx, scope, userID, courseID)
		if err != nil {
			return err
		}
		if err := s.Aggregates.WithTx(tx).DeleteForUserCourse(ctx, scope, userID, courseID); err != nil {
			return err
		}
		return enrollments.HardDelete(ctx, enrollment)
	})
	return util.StoreError(err, util.ErrEnrollmentNotFound)
}
