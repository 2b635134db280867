package service

import (
	"context"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
)

type LessonEligibility struct {
	IsEligible         bool   `json:"isEligible"`
	UnmetPrerequisites []uint `json:"unmetPrerequisites"`
}

type CourseEligibility struct {
	IsEligible      bool   `json:"isEligible"`
	RequiredCourses []uint `json:"requiredCourses"`
}

// EligibilityService 只解析直接前置条件，不递归，因此不存在环
type EligibilityService struct {
	Content    *repository.ContentRepository
	Tracks     *repository.LessonTrackRepository
	Aggregates *repository.AggregateRepository
}

func NewEligibilityService(
	content *repository.ContentRepository,
	tracks *repository.LessonTrackRepository,
	aggregates *repository.AggregateRepository,
) *EligibilityService {
	return &EligibilityService{
		Content:    content,
		Tracks:     tracks,
		Aggregates: aggregates,
	}
}

// CheckLessonEligibility 每个前置课时都需要学员有一次 COMPLETED 尝试；前置课时不存在同样视为未满足
func (s *EligibilityService) CheckLessonEligibility(ctx context.Context, scope model.TenantScope, lesson *model.Lesson, userID uint) (*LessonEligibility, error) {
	prereqs := dedupe(lesson.Prerequisites, lesson.ID)
	if len(prereqs) == 0 {
		return &LessonEligibility{IsEligible: true, UnmetPrerequisites: []uint{}}, nil
	}

	existing, err := s.Content.FindLessonsByIDs(ctx, scope, prereqs)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}
	completed, err := s.Tracks.ListCompletedLessonIDs(ctx, scope, userID, prereqs)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}

	existingSet := make(map[uint]bool, len(existing))
	for _, l := range existing {
		existingSet[l.ID] = true
	}
	return evaluateLessonPrerequisites(prereqs, existingSet, toSet(completed)), nil
}

func evaluateLessonPrerequisites(prereqs []uint, existing, completed map[uint]bool) *LessonEligibility {
	unmet := []uint{}
	for _, id := range prereqs {
		if !existing[id] || !completed[id] {
			unmet = append(unmet, id)
		}
	}
	return &LessonEligibility{IsEligible: len(unmet) == 0, UnmetPrerequisites: unmet}
}

// RequireLesson 不满足时返回携带未满足列表的 *util.EligibilityError
func (s *EligibilityService) RequireLesson(ctx context.Context, scope model.TenantScope, lesson *model.Lesson, userID uint) error {
	result, err := s.CheckLessonEligibility(ctx, scope, lesson, userID)
	if err != nil {
		return err
	}
	if !result.IsEligible {
		return &util.EligibilityError{UnmetPrerequisites: result.UnmetPrerequisites}
	}
	return nil
}

// CheckCourseEligibility 已完成本课程的学员直接视为满足
func (s *EligibilityService) CheckCourseEligibility(ctx context.Context, scope model.TenantScope, course *model.Course, userID uint) (*CourseEligibility, error) {
	prereqs := dedupe(course.Prerequisites, course.ID)
	if len(prereqs) == 0 {
		return &CourseEligibility{IsEligible: true, RequiredCourses: []uint{}}, nil
	}

	tracks, err := s.Aggregates.ListCourseTracks(ctx, scope, userID, append([]uint{course.ID}, prereqs...))
	if err != nil {
		return nil, util.StoreError(err, util.ErrCourseTrackMissing)
	}

	completed := make(map[uint]bool, len(tracks))
	for _, t := range tracks {
		if t.Status == model.CourseCompleted {
			completed[t.CourseID] = true
		}
	}
	if completed[course.ID] {
		return &CourseEligibility{IsEligible: true, RequiredCourses: []uint{}}, nil
	}

	required := []uint{}
	for _, id := range prereqs {
		if !completed[id] {
			required = append(required, id)
		}
	}
	return &CourseEligibility{IsEligible: len(required) == 0, RequiredCourses: required}, nil
}
