package service

import (
	"context"
	"testing"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/testutil"
	"learning_progress_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndCourseCompletion(t *testing.T) {
	h := newHarness(t)
	course, module, lessons := h.courseWithLessons(t, 3)

	res := h.enroll(t, learner, course.ID)
	assert.Equal(t, 0, res.CourseTrack.CompletedLessons)
	assert.Equal(t, 3, res.CourseTrack.TotalLessons)
	assert.Equal(t, model.CourseStarted, res.CourseTrack.Status)

	h.complete(t, learner, lessons[0])
	h.complete(t, learner, lessons[1])

	track := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 2, track.CompletedLessons)
	assert.Equal(t, model.CourseIncomplete, track.Status)
	assert.Nil(t, track.EndDatetime)

	h.complete(t, learner, lessons[2])

	track = h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 3, track.CompletedLessons)
	assert.Equal(t, model.CourseCompleted, track.Status)
	require.NotNil(t, track.EndDatetime)
	endedAt := *track.EndDatetime

	// 再次触发重算不会改变完成时间
	require.NoError(t, h.rollup.Recompute(context.Background(), RollupRequest{
		Scope: scope, UserID: learner, CourseID: course.ID, LessonID: lessons[2].ID, Trigger: TriggerCompleted,
	}))
	track = h.courseTrack(t, learner, course.ID)
	assert.Equal(t, model.CourseCompleted, track.Status)
	assert.True(t, endedAt.Equal(*track.EndDatetime))

	modules, err := h.aggregates.ListModuleTracks(context.Background(), scope, learner, course.ID)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, module.ID, modules[0].ModuleID)
	assert.Equal(t, 3, modules[0].CompletedLessons)
	assert.Equal(t, 100, modules[0].Progress)
	assert.Equal(t, model.ModuleCompleted, modules[0].Status)
}

func TestFreshAttemptMarksCourseStarted(t *testing.T) {
	h := newHarness(t)
	course, _, lessons := h.courseWithLessons(t, 2)

	// 直接写入选课记录，汇总行在首次重算时创建
	testutil.CreateEnrollment(t, h.db, learner, course.ID, nil)
	_, err := h.attempts.StartOrResume(context.Background(), scope, lessons[0].ID, learner)
	require.NoError(t, err)

	track := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, model.CourseStarted, track.Status)
	assert.Equal(t, 2, track.TotalLessons)
	assert.NotNil(t, track.StartDatetime)
	assert.NotNil(t, track.LastAccessedDate)
}

func TestIncompleteTriggerNeverCompletesCourse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course, _, lessons := h.courseWithLessons(t, 1)
	h.enroll(t, learner, course.ID)
	testutil.CreateAttempt(t, h.db, lessons[0], learner, 1, model.TrackCompleted, 0)

	require.NoError(t, h.rollup.Recompute(ctx, RollupRequest{Scope: scope, UserID: learner, CourseID: course.ID, LessonID: lessons[0].ID, Trigger: TriggerIncomplete}))
	track := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 1, track.CompletedLessons)
	assert.Equal(t, model.CourseIncomplete, track.Status)
	assert.Nil(t, track.EndDatetime)

	require.NoError(t, h.rollup.Recompute(ctx, RollupRequest{Scope: scope, UserID: learner, CourseID: course.ID, Trigger: TriggerRepair}))
	track = h.courseTrack(t, learner, course.ID)
	assert.Equal(t, model.CourseCompleted, track.Status)
	assert.NotNil(t, track.EndDatetime)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course, _, lessons := h.courseWithLessons(t, 3)
	h.enroll(t, learner, course.ID)
	testutil.CreateAttempt(t, h.db, lessons[0], learner, 1, model.TrackCompleted, 0)
	testutil.CreateAttempt(t, h.db, lessons[1], learner, 1, model.TrackIncomplete, 0)

	req := RollupRequest{Scope: scope, UserID: learner, CourseID: course.ID, Trigger: TriggerRepair}
	require.NoError(t, h.rollup.Recompute(ctx, req))
	first := h.courseTrack(t, learner, course.ID)
	firstModules, err := h.aggregates.ListModuleTracks(ctx, scope, learner, course.ID)
	require.NoError(t, err)

	require.NoError(t, h.rollup.Recompute(ctx, req))
	second := h.courseTrack(t, learner, course.ID)
	secondModules, err := h.aggregates.ListModuleTracks(ctx, scope, learner, course.ID)
	require.NoError(t, err)

	assert.Equal(t, first.CompletedLessons, second.CompletedLessons)
	assert.Equal(t, first.TotalLessons, second.TotalLessons)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.EndDatetime, second.EndDatetime)
	assert.Equal(t, 1, second.CompletedLessons)
	assert.Equal(t, model.CourseIncomplete, second.Status)

	require.Len(t, secondModules, len(firstModules))
	for i := range firstModules {
		assert.Equal(t, firstModules[i].CompletedLessons, secondModules[i].CompletedLessons)
		assert.Equal(t, firstModules[i].Progress, secondModules[i].Progress)
		assert.Equal(t, firstModules[i].Status, secondModules[i].Status)
	}
	assert.Equal(t, 33, secondModules[0].Progress)
}

func TestRollupCountsOnlyCountableTopLevelLessons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course, module, lessons := h.courseWithLessons(t, 1)
	child := testutil.CreateLesson(t, h.db, module, "Child", testutil.WithParent(lessons[0].ID))
	optional := testutil.CreateLesson(t, h.db, module, "Optional", testutil.NotCounted())
	h.enroll(t, learner, course.ID)

	testutil.CreateAttempt(t, h.db, child, learner, 1, model.TrackCompleted, 0)
	testutil.CreateAttempt(t, h.db, optional, learner, 1, model.TrackCompleted, 0)

	require.NoError(t, h.rollup.Recompute(ctx, RollupRequest{Scope: scope, UserID: learner, CourseID: course.ID, Trigger: TriggerRepair}))
	track := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 1, track.TotalLessons)
	assert.Equal(t, 0, track.CompletedLessons)
	// 子内容与不计入的课时只说明课程已开始
	assert.Equal(t, model.CourseStarted, track.Status)
}

func TestRollupModulesAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := testutil.CreateCourse(t, h.db, "Course")
	m1 := testutil.CreateModule(t, h.db, course.ID, "M1")
	m2 := testutil.CreateModule(t, h.db, course.ID, "M2")
	l1 := testutil.CreateLesson(t, h.db, m1, "L1")
	testutil.CreateLesson(t, h.db, m2, "L2")
	h.enroll(t, learner, course.ID)

	h.complete(t, learner, l1)

	tracks, err := h.aggregates.ListModuleTracks(ctx, scope, learner, course.ID)
	require.NoError(t, err)
	byModule := map[uint]model.ModuleTrack{}
	for _, mt := range tracks {
		byModule[mt.ModuleID] = mt
	}
	assert.Equal(t, model.ModuleCompleted, byModule[m1.ID].Status)
	assert.Equal(t, 100, byModule[m1.ID].Progress)
	assert.Equal(t, model.ModuleIncomplete, byModule[m2.ID].Status)
	assert.Equal(t, 0, byModule[m2.ID].CompletedLessons)

	course1 := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, model.CourseIncomplete, course1.Status)
	assert.Equal(t, 1, course1.CompletedLessons)
}

func TestNextCourseStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  model.CourseTrackStatus
		activity courseActivity
		trigger  RollupTrigger
		want     model.CourseTrackStatus
	}{
		{"all done on completed trigger", model.CourseIncomplete, courseActivity{total: 2, completed: 2, hasAttempts: true, hasProgress: true}, TriggerCompleted, model.CourseCompleted},
		{"all done on incomplete trigger", model.CourseIncomplete, courseActivity{total: 2, completed: 2, hasAttempts: true, hasProgress: true}, TriggerIncomplete, model.CourseIncomplete},
		{"already completed stays", model.CourseCompleted, courseActivity{total: 2, completed: 2, hasAttempts: true, hasProgress: true}, TriggerStarted, model.CourseCompleted},
		{"fresh attempt", model.CourseStarted, courseActivity{total: 2, hasAttempts: true}, TriggerStarted, model.CourseStarted},
		{"no attempts keeps not eligible", model.CourseNotEligible, courseActivity{total: 2}, TriggerRepair, model.CourseNotEligible},
		{"partial progress", model.CourseStarted, courseActivity{total: 2, completed: 1, hasAttempts: true, hasProgress: true}, TriggerCompleted, model.CourseIncomplete},
		{"empty course never completes", model.CourseStarted, courseActivity{}, TriggerRepair, model.CourseStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextCourseStatus(tt.current, tt.activity, tt.trigger))
		})
	}
}

func TestArchivedModuleLessonsAreHidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course, _, lessons := h.courseWithLessons(t, 1)
	retired := testutil.CreateModule(t, h.db, course.ID, "Retired")
	hidden := testutil.CreateLesson(t, h.db, retired, "Hidden")
	require.NoError(t, h.db.Model(retired).Update("status", model.ContentArchived).Error)

	res := h.enroll(t, learner, course.ID)
	assert.Equal(t, 1, res.CourseTrack.TotalLessons)

	_, err := h.attempts.StartOrResume(ctx, scope, hidden.ID, learner)
	assert.ErrorIs(t, err, util.ErrLessonNotFound)

	h.complete(t, learner, lessons[0])

	track := h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 1, track.TotalLessons)
	assert.Equal(t, 1, track.CompletedLessons)
	assert.Equal(t, model.CourseCompleted, track.Status)

	// 修复重算与选课时的统计一致
	_, err = h.repair.RecalculateProgress(ctx, scope, course.ID)
	require.NoError(t, err)
	track = h.courseTrack(t, learner, course.ID)
	assert.Equal(t, 1, track.TotalLessons)
	assert.Equal(t, model.CourseCompleted, track.Status)
}
