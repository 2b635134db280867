package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/identity"
	"learning_progress_backend/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BatchCriterion MinimumCompletedCount 为 0 时要求全部匹配的课时完成
type BatchCriterion struct {
	Format                model.LessonFormat `json:"format" validate:"required,oneof=video document test event"`
	SubFormat             string             `json:"subFormat"`
	MinimumCompletedCount int                `json:"minimumCompletedCount" validate:"gte=0"`
}

type CriterionResult struct {
	BatchCriterion
	CompletedCount int  `json:"completedCount"`
	TotalCount     int  `json:"totalCount"`
	Passed         bool `json:"passed"`
}

type BatchCompletion struct {
	OverallStatus model.CourseTrackStatus `json:"overallStatus"`
	Criteria      []CriterionResult       `json:"criteria"`
}

type CohortReportRow struct {
	UserID           uint                    `json:"userId"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	CourseID         uint                    `json:"courseId"`
	Status           model.CourseTrackStatus `json:"status"`
	CompletedLessons int                     `json:"completedLessons"`
	TotalLessons     int                     `json:"totalLessons"`
	Progress         int                     `json:"progress"`
}

type CohortReport struct {
	Cohort *model.Cohort     `json:"cohort"`
	Rows   []CohortReportRow `json:"rows"`
}

// LearnerDirectory 外部学员身份查询，由 identity.Client 实现
type LearnerDirectory interface {
	LookupLearners(ctx context.Context, tenantID, organizationID string, ids []uint) (map[uint]identity.Learner, error)
}

type ReportService struct {
	Content      *repository.ContentRepository
	Tracks       *repository.LessonTrackRepository
	Aggregates   *repository.AggregateRepository
	Enrollments  *repository.EnrollmentRepository
	Cohorts      *repository.CohortRepository
	Directory    LearnerDirectory
	StoreTimeout time.Duration

	validate *validator.Validate
}

func NewReportService(
	content *repository.ContentRepository,
	tracks *repository.LessonTrackRepository,
	aggregates *repository.AggregateRepository,
	enrollments *repository.EnrollmentRepository,
	cohorts *repository.CohortRepository,
	directory LearnerDirectory,
	storeTimeout time.Duration,
) *ReportService {
	return &ReportService{
		Content:      content,
		Tracks:       tracks,
		Aggregates:   aggregates,
		Enrollments:  enrollments,
		Cohorts:      cohorts,
		Directory:    directory,
		StoreTimeout: storeTimeout,
		validate:     validator.New(),
	}
}

// CheckBatchCompletion 在批次的全部课程中按格式统计学员完成的课时，判分规则与汇总一致
func (s *ReportService) CheckBatchCompletion(ctx context.Context, scope model.TenantScope, cohortID, userID uint, criteria []BatchCriterion) (*BatchCompletion, error) {
	if len(criteria) == 0 {
		return nil, errors.Wrap(util.ErrInvalidArgument, "criteria required")
	}
	for _, c := range criteria {
		if err := s.validate.Struct(c); err != nil {
			return nil, errors.Wrap(util.ErrInvalidArgument, err.Error())
		}
	}

	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if _, err := s.Cohorts.FindByID(ctx, scope, cohortID); err != nil {
		return nil, util.StoreError(err, util.ErrCohortNotFound)
	}
	courseIDs, err := s.Cohorts.ListCourseIDs(ctx, scope, cohortID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCohortNotFound)
	}

	result := &BatchCompletion{OverallStatus: model.CourseCompleted}
	for _, c := range criteria {
		lessons, err := s.Content.ListLessonsByFormat(ctx, scope, courseIDs, c.Format, c.SubFormat)
		if err != nil {
			return nil, util.StoreError(err, util.ErrLessonNotFound)
		}
		ids := make([]uint, 0, len(lessons))
		for _, l := range lessons {
			ids = append(ids, l.ID)
		}
		attempts, err := s.Tracks.ListByUserLessons(ctx, scope, userID, ids)
		if err != nil {
			return nil, util.StoreError(err, util.ErrAttemptNotFound)
		}
		grouped := groupByLesson(attempts)

		r := CriterionResult{BatchCriterion: c, TotalCount: len(lessons)}
		for i := range lessons {
			if ResolveOutcome(grouped[lessons[i].ID], &lessons[i]).Completed {
				r.CompletedCount++
			}
		}
		required := c.MinimumCompletedCount
		if required == 0 {
			required = r.TotalCount
		}
		r.Passed = r.CompletedCount >= required
		if !r.Passed {
			result.OverallStatus = model.CourseIncomplete
		}
		result.Criteria = append(result.Criteria, r)
	}
	return result, nil
}

// GetCohortReport 批次内每个选课的课程汇总，附带学员身份信息
func (s *ReportService) GetCohortReport(ctx context.Context, scope model.TenantScope, cohortID uint) (*CohortReport, error) {
	sctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	cohort, err := s.Cohorts.FindByID(sctx, scope, cohortID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCohortNotFound)
	}
	enrollments, err := s.Enrollments.ListByCohort(sctx, scope, cohortID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrEnrollmentNotFound)
	}

	userIDs := make([]uint, 0, len(enrollments))
	courseIDs := make([]uint, 0, len(enrollments))
	seenUser, seenCourse := map[uint]bool{}, map[uint]bool{}
	for _, e := range enrollments {
		if !seenUser[e.UserID] {
			seenUser[e.UserID] = true
			userIDs = append(userIDs, e.UserID)
		}
		if !seenCourse[e.CourseID] {
			seenCourse[e.CourseID] = true
			courseIDs = append(courseIDs, e.CourseID)
		}
	}

	tracks, err := s.Aggregates.ListCourseTracksByUsers(sctx, scope, userIDs, courseIDs)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCourseTrackMissing)
	}
	type key struct{ user, course uint }
	byKey := make(map[key]model.CourseTrack, len(tracks))
	for _, t := range tracks {
		byKey[key{t.UserID, t.CourseID}] = t
	}

	learners := map[uint]identity.Learner{}
	if s.Directory != nil {
		learners, err = s.Directory.LookupLearners(ctx, scope.TenantID, scope.OrganizationID, userIDs)
		if err != nil {
			logger.Log.Error("Learner lookup failed",
				append(scopeFields(scope), zap.Uint("cohort_id", cohortID), zap.Error(err))...)
			return nil, errors.Wrap(util.ErrUpstreamUnavailable, err.Error())
		}
	}

	report := &CohortReport{Cohort: cohort, Rows: make([]CohortReportRow, 0, len(enrollments))}
	for _, e := range enrollments {
		row := CohortReportRow{
			UserID:   e.UserID,
			CourseID: e.CourseID,
			Status:   model.CourseNotStarted,
		}
		if t, ok := byKey[key{e.UserID, e.CourseID}]; ok {
			row.Status = t.Status
			row.CompletedLessons = t.CompletedLessons
			row.TotalLessons = t.TotalLessons
			row.Progress = model.ProgressPercent(t.CompletedLessons, t.TotalLessons)
		}
		if l, ok := learners[e.UserID]; ok {
			row.Name = l.Name
			row.Email = l.Email
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}
