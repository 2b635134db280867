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

func TestGetCourseTrackingNotStarted(t *testing.T) {
	h := newHarness(t)
	course, _, _ := h.courseWithLessons(t, 2)

	track, err := h.tracking.GetCourseTracking(context.Background(), scope, course.ID, learner)
	require.NoError(t, err)
	assert.Equal(t, model.CourseNotStarted, track.Status)
	assert.Equal(t, 2, track.TotalLessons)
	assert.Empty(t, track.ID)

	_, err = h.tracking.GetCourseTracking(context.Background(), scope, 404, learner)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)
}

func TestGetCourseTrackingOtherTenant(t *testing.T) {
	h := newHarness(t)
	course, _, _ := h.courseWithLessons(t, 1)

	other := model.TenantScope{TenantID: "tenant-2", OrganizationID: "org-1"}
	_, err := h.tracking.GetCourseTracking(context.Background(), other, course.ID, learner)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestGetCourseHierarchy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	course := testutil.CreateCourse(t, h.db, "Course")
	intro := testutil.CreateModule(t, h.db, course.ID, "Intro")
	deep := testutil.CreateModule(t, h.db, course.ID, "Deep dive")
	first := testutil.CreateLesson(t, h.db, intro, "First")
	testutil.CreateLesson(t, h.db, intro, "Handout", testutil.WithParent(first.ID), testutil.WithFormat(model.FormatDocument, "pdf"))
	second := testutil.CreateLesson(t, h.db, deep, "Second", testutil.WithPrerequisites(first.ID))
	h.enroll(t, learner, course.ID)

	hierarchy, err := h.tracking.GetCourseHierarchy(ctx, scope, course.ID, learner)
	require.NoError(t, err)
	require.Len(t, hierarchy.Modules, 2)
	assert.Equal(t, intro.ID, hierarchy.Modules[0].Module.ID)
	assert.Equal(t, model.CourseStarted, hierarchy.Track.Status)
	assert.True(t, hierarchy.Eligibility.IsEligible)

	introLessons := hierarchy.Modules[0].Lessons
	require.Len(t, introLessons, 1)
	assert.Equal(t, first.ID, introLessons[0].Lesson.ID)
	require.Len(t, introLessons[0].Children, 1)
	assert.Equal(t, "Handout", introLessons[0].Children[0].Lesson.Title)
	assert.Nil(t, introLessons[0].LastAttempt)

	deepLessons := hierarchy.Modules[1].Lessons
	require.Len(t, deepLessons, 1)
	assert.Equal(t, second.ID, deepLessons[0].Lesson.ID)
	assert.False(t, deepLessons[0].IsEligible)
	assert.Equal(t, []uint{first.ID}, deepLessons[0].UnmetPrerequisites)

	h.complete(t, learner, first)

	hierarchy, err = h.tracking.GetCourseHierarchy(ctx, scope, course.ID, learner)
	require.NoError(t, err)
	firstNode := hierarchy.Modules[0].Lessons[0]
	assert.True(t, firstNode.Outcome.Completed)
	require.NotNil(t, firstNode.LastAttempt)
	assert.Equal(t, 1, firstNode.LastAttempt.Attempt)
	assert.True(t, hierarchy.Modules[1].Lessons[0].IsEligible)
	assert.Empty(t, hierarchy.Modules[1].Lessons[0].UnmetPrerequisites)

	require.NotNil(t, hierarchy.Modules[0].Track)
	assert.Equal(t, model.ModuleCompleted, hierarchy.Modules[0].Track.Status)
	assert.Equal(t, 1, hierarchy.Track.CompletedLessons)
	assert.Equal(t, 2, hierarchy.Track.TotalLessons)
}
