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

func TestEnrollCreatesAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := testutil.CreateCourse(t, h.db, "Course")
	m1 := testutil.CreateModule(t, h.db, course.ID, "M1")
	m2 := testutil.CreateModule(t, h.db, course.ID, "M2")
	testutil.CreateLesson(t, h.db, m1, "L1")
	testutil.CreateLesson(t, h.db, m1, "L2")
	testutil.CreateLesson(t, h.db, m2, "L3")
	testutil.CreateLesson(t, h.db, m2, "Optional", testutil.NotCounted())

	res := h.enroll(t, learner, course.ID)
	assert.Equal(t, model.EnrollmentActive, res.Enrollment.Status)
	assert.Equal(t, 3, res.CourseTrack.TotalLessons)
	assert.True(t, res.Eligibility.IsEligible)

	modules, err := h.aggregates.ListModuleTracks(ctx, scope, learner, course.ID)
	require.NoError(t, err)
	totals := map[uint]int{}
	for _, m := range modules {
		totals[m.ModuleID] = m.TotalLessons
	}
	assert.Equal(t, map[uint]int{m1.ID: 2, m2.ID: 1}, totals)

	again := h.enroll(t, learner, course.ID)
	assert.Equal(t, res.Enrollment.ID, again.Enrollment.ID)

	ok, err := h.enrollment.IsEnrolled(ctx, scope, learner, course.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnrollWithUnmetCoursePrerequisite(t *testing.T) {
	h := newHarness(t)
	basics := testutil.CreateCourse(t, h.db, "Basics")
	advanced := testutil.CreateCourse(t, h.db, "Advanced", basics.ID)

	res := h.enroll(t, learner, advanced.ID)
	assert.Equal(t, model.CourseNotEligible, res.CourseTrack.Status)
	assert.False(t, res.Eligibility.IsEligible)
	assert.Equal(t, []uint{basics.ID}, res.Eligibility.RequiredCourses)
}

func TestEnrollUnknownCourse(t *testing.T) {
	h := newHarness(t)

	_, err := h.enrollment.Enroll(context.Background(), scope, learner, 404, nil)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)
}

func TestDeleteEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course, _, lessons := h.courseWithLessons(t, 1)
	other, _, _ := h.courseWithLessons(t, 1)
	h.enroll(t, learner, course.ID)
	h.enroll(t, learner, other.ID)

	_, err := h.attempts.StartOrResume(ctx, scope, lessons[0].ID, learner)
	require.NoError(t, err)

	err = h.enrollment.CheckEnrollmentDeletable(ctx, scope, learner, course.ID)
	assert.ErrorIs(t, err, util.ErrEnrollmentHasAttempts)
	assert.ErrorIs(t, h.enrollment.DeleteEnrollment(ctx, scope, learner, course.ID), util.ErrEnrollmentHasAttempts)

	require.NoError(t, h.enrollment.CheckEnrollmentDeletable(ctx, scope, learner, other.ID))
	require.NoError(t, h.enrollment.DeleteEnrollment(ctx, scope, learner, other.ID))

	ok, err := h.enrollment.IsEnrolled(ctx, scope, learner, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	modules, err := h.aggregates.ListModuleTracks(ctx, scope, learner, other.ID)
	require.NoError(t, err)
	assert.Empty(t, modules)

	assert.ErrorIs(t, h.enrollment.CheckEnrollmentDeletable(ctx, scope, learner, other.ID), util.ErrEnrollmentNotFound)
}
