package service

import (
	"context"
	"testing"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/testutil"
	"learning_progress_backend/pkg/lock"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var scope = testutil.Scope

type harness struct {
	db          *gorm.DB
	content     *repository.ContentRepository
	tracks      *repository.LessonTrackRepository
	aggregates  *repository.AggregateRepository
	enrollments *repository.EnrollmentRepository
	cohorts     *repository.CohortRepository

	eligibility *EligibilityService
	rollup      *RollupService
	dispatcher  *RollupDispatcher
	attempts    *AttemptService
	enrollment  *EnrollmentService
	tracking    *TrackingService
	repair      *RepairService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testutil.TrackingConfig()
	db := testutil.OpenDB(t)
	locker := lock.NewLocalLocker(cfg.LockWait())

	h := &harness{
		db:          db,
		content:     repository.NewContentRepository(db),
		tracks:      repository.NewLessonTrackRepository(db),
		aggregates:  repository.NewAggregateRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		cohorts:     repository.NewCohortRepository(db),
	}
	h.eligibility = NewEligibilityService(h.content, h.tracks, h.aggregates)
	h.rollup = NewRollupService(db, h.content, h.tracks, h.aggregates, locker, cfg.StoreTimeout())
	h.dispatcher = NewRollupDispatcher(h.rollup, cfg)
	t.Cleanup(h.dispatcher.Close)
	h.attempts = NewAttemptService(db, h.content, h.tracks, h.enrollments, h.eligibility, h.dispatcher, locker, cfg)
	h.enrollment = NewEnrollmentService(db, h.content, h.enrollments, h.tracks, h.aggregates, h.eligibility, cfg.StoreTimeout())
	h.tracking = NewTrackingService(h.content, h.tracks, h.aggregates, h.eligibility, cfg.StoreTimeout())
	h.repair = NewRepairService(h.content, h.enrollments, h.tracks, h.rollup, cfg.StoreTimeout())
	return h
}

// courseWithLessons 一门课程、一个模块、n 个计入及格的课时
func (h *harness) courseWithLessons(t *testing.T, n int, opts ...testutil.LessonOption) (*model.Course, *model.CourseModule, []*model.Lesson) {
	t.Helper()
	course := testutil.CreateCourse(t, h.db, "Course")
	module := testutil.CreateModule(t, h.db, course.ID, "Module")
	lessons := make([]*model.Lesson, 0, n)
	for i := 0; i < n; i++ {
		lessons = append(lessons, testutil.CreateLesson(t, h.db, module, "Lesson", opts...))
	}
	return course, module, lessons
}

func (h *harness) enroll(t *testing.T, userID, courseID uint) *EnrollResult {
	t.Helper()
	res, err := h.enrollment.Enroll(context.Background(), scope, userID, courseID, nil)
	require.NoError(t, err)
	return res
}

func (h *harness) courseTrack(t *testing.T, userID, courseID uint) *model.CourseTrack {
	t.Helper()
	track, err := h.aggregates.FindCourseTrack(context.Background(), scope, userID, courseID)
	require.NoError(t, err)
	return track
}

// complete 开始并直接完成一个课时
func (h *harness) complete(t *testing.T, userID uint, lesson *model.Lesson) *model.LessonTrack {
	t.Helper()
	ctx := context.Background()
	track, err := h.attempts.StartOrResume(ctx, scope, lesson.ID, userID)
	require.NoError(t, err)
	pct := 100
	track, err = h.attempts.UpdateProgress(ctx, scope, track.ID, ProgressDelta{CompletionPercentage: &pct})
	require.NoError(t, err)
	require.Equal(t, model.TrackCompleted, track.Status)
	return track
}
