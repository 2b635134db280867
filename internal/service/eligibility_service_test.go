package service

import (
	"context"
	"testing"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLessonEligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, module, lessons := h.courseWithLessons(t, 2)
	done, pending := lessons[0], lessons[1]
	testutil.CreateAttempt(t, h.db, done, learner, 1, model.TrackCompleted, 0)
	testutil.CreateAttempt(t, h.db, pending, learner, 1, model.TrackSubmitted, 0)

	tests := []struct {
		name      string
		prereqs   []uint
		wantOK    bool
		wantUnmet []uint
	}{
		{name: "no prerequisites", wantOK: true, wantUnmet: []uint{}},
		{name: "completed prerequisite", prereqs: []uint{done.ID}, wantOK: true, wantUnmet: []uint{}},
		{name: "submitted is not completed", prereqs: []uint{done.ID, pending.ID}, wantOK: false, wantUnmet: []uint{pending.ID}},
		{name: "missing lesson counts as unmet", prereqs: []uint{9999}, wantOK: false, wantUnmet: []uint{9999}},
		{name: "duplicates resolved once", prereqs: []uint{pending.ID, pending.ID}, wantOK: false, wantUnmet: []uint{pending.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lesson := testutil.CreateLesson(t, h.db, module, tt.name, testutil.WithPrerequisites(tt.prereqs...))
			got, err := h.eligibility.CheckLessonEligibility(ctx, scope, lesson, learner)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, got.IsEligible)
			assert.Equal(t, tt.wantUnmet, got.UnmetPrerequisites)
		})
	}
}

func TestCheckLessonEligibilitySelfReference(t *testing.T) {
	h := newHarness(t)
	_, module, _ := h.courseWithLessons(t, 0)
	lesson := testutil.CreateLesson(t, h.db, module, "Loop")
	lesson.Prerequisites = append(lesson.Prerequisites, lesson.ID)
	require.NoError(t, h.db.Save(lesson).Error)

	got, err := h.eligibility.CheckLessonEligibility(context.Background(), scope, lesson, learner)
	require.NoError(t, err)
	assert.True(t, got.IsEligible)
}

func TestCheckCourseEligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	basics := testutil.CreateCourse(t, h.db, "Basics")
	advanced := testutil.CreateCourse(t, h.db, "Advanced", basics.ID)

	got, err := h.eligibility.CheckCourseEligibility(ctx, scope, advanced, learner)
	require.NoError(t, err)
	assert.False(t, got.IsEligible)
	assert.Equal(t, []uint{basics.ID}, got.RequiredCourses)

	require.NoError(t, h.db.Create(&model.CourseTrack{
		Tenant: scope.Columns(), UserID: learner, CourseID: basics.ID, Status: model.CourseCompleted,
	}).Error)

	got, err = h.eligibility.CheckCourseEligibility(ctx, scope, advanced, learner)
	require.NoError(t, err)
	assert.True(t, got.IsEligible)
	assert.Empty(t, got.RequiredCourses)
}

func TestCheckCourseEligibilityShortCircuitsCompletedCourse(t *testing.T) {
	h := newHarness(t)
	basics := testutil.CreateCourse(t, h.db, "Basics")
	advanced := testutil.CreateCourse(t, h.db, "Advanced", basics.ID)
	require.NoError(t, h.db.Create(&model.CourseTrack{
		Tenant: scope.Columns(), UserID: learner, CourseID: advanced.ID, Status: model.CourseCompleted,
	}).Error)

	got, err := h.eligibility.CheckCourseEligibility(context.Background(), scope, advanced, learner)
	require.NoError(t, err)
	assert.True(t, got.IsEligible)
}
