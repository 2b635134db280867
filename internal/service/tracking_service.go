package service

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/tracing"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type LessonNode struct {
	Lesson             model.Lesson       `json:"lesson"`
	Outcome            Outcome            `json:"outcome"`
	LastAttempt        *model.LessonTrack `json:"lastAttempt,omitempty"`
	IsEligible         bool               `json:"isEligible"`
	UnmetPrerequisites []uint             `json:"unmetPrerequisites"`
	Children           []LessonNode       `json:"children,omitempty"`
}

type ModuleNode struct {
	Module  model.CourseModule `json:"module"`
	Track   *model.ModuleTrack `json:"track,omitempty"`
	Lessons []LessonNode       `json:"lessons"`
}

type CourseHierarchy struct {
	Course      *model.Course      `json:"course"`
	Track       *model.CourseTrack `json:"track"`
	Eligibility *CourseEligibility `json:"eligibility"`
	Modules     []ModuleNode       `json:"modules"`
}

// TrackingService 只读：组装 课程 -> 模块 -> 课时 的追踪视图
type TrackingService struct {
	Content      *repository.ContentRepository
	Tracks       *repository.LessonTrackRepository
	Aggregates   *repository.AggregateRepository
	Eligibility  *EligibilityService
	StoreTimeout time.Duration
}

func NewTrackingService(
	content *repository.ContentRepository,
	tracks *repository.LessonTrackRepository,
	aggregates *repository.AggregateRepository,
	eligibility *EligibilityService,
	storeTimeout time.Duration,
) *TrackingService {
	return &TrackingService{
		Content:      content,
		Tracks:       tracks,
		Aggregates:   aggregates,
		Eligibility:  eligibility,
		StoreTimeout: storeTimeout,
	}
}

// GetCourseTracking 未选课/未开始时返回 NOT_STARTED 的占位汇总
func (s *TrackingService) GetCourseTracking(ctx context.Context, scope model.TenantScope, courseID, userID uint) (*model.CourseTrack, error) {
	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if _, err := s.Content.FindCourse(ctx, scope, courseID); err != nil {
		return nil, util.StoreError(err, util.ErrCourseNotFound)
	}
	return s.courseTrack(ctx, scope, courseID, userID)
}

func (s *TrackingService) courseTrack(ctx context.Context, scope model.TenantScope, courseID, userID uint) (*model.CourseTrack, error) {
	track, err := s.Aggregates.FindCourseTrack(ctx, scope, userID, courseID)
	if err == nil {
		return track, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.StoreError(err, util.ErrCourseTrackMissing)
	}

	totals, err := s.Content.CountCountableLessons(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}
	total := 0
	for _, n := range totals {
		total += n
	}
	return &model.CourseTrack{
		Tenant:       scope.Columns(),
		UserID:       userID,
		CourseID:     courseID,
		TotalLessons: total,
		Status:       model.CourseNotStarted,
	}, nil
}

func (s *TrackingService) GetCourseHierarchy(ctx context.Context, scope model.TenantScope, courseID, userID uint) (*CourseHierarchy, error) {
	ctx, span := tracing.Tracer.Start(ctx, "tracking.GetCourseHierarchy", trace.WithAttributes(spanAttrs(scope, userID, courseID, "course.id")...))
	defer span.End()

	ctx, cancel := withStoreTimeout(ctx, s.StoreTimeout)
	defer cancel()

	course, err := s.Content.FindCourse(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCourseNotFound)
	}
	modules, err := s.Content.ListModules(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrModuleNotFound)
	}
	lessons, err := s.Content.ListLessons(ctx, scope, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrLessonNotFound)
	}

	track, err := s.courseTrack(ctx, scope, courseID, userID)
	if err != nil {
		return nil, err
	}
	moduleTracks, err := s.Aggregates.ListModuleTracks(ctx, scope, userID, courseID)
	if err != nil {
		return nil, util.StoreError(err, util.ErrCourseTrackMissing)
	}
	courseEligibility, err := s.Eligibility.CheckCourseEligibility(ctx, scope, course, userID)
	if err != nil {
		return nil, err
	}

	lessonIDs := make([]uint, 0, len(lessons))
	existing := make(map[uint]bool, len(lessons))
	var prereqs []uint
	for _, l := range lessons {
		lessonIDs = append(lessonIDs, l.ID)
		existing[l.ID] = true
		prereqs = append(prereqs, l.Prerequisites...)
	}

	attempts, err := s.Tracks.ListByUserLessons(ctx, scope, userID, lessonIDs)
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}
	grouped := groupByLesson(attempts)

	// 前置课时可能在其他课程中
	var outside []uint
	for _, id := range dedupe(prereqs, 0) {
		if !existing[id] {
			outside = append(outside, id)
		}
	}
	if len(outside) > 0 {
		found, err := s.Content.FindLessonsByIDs(ctx, scope, outside)
		if err != nil {
			return nil, util.StoreError(err, util.ErrLessonNotFound)
		}
		for _, l := range found {
			existing[l.ID] = true
		}
	}
	completedIDs, err := s.Tracks.ListCompletedLessonIDs(ctx, scope, userID, dedupe(prereqs, 0))
	if err != nil {
		return nil, util.StoreError(err, util.ErrAttemptNotFound)
	}
	completed := toSet(completedIDs)

	node := func(l model.Lesson) LessonNode {
		n := LessonNode{
			Lesson:  l,
			Outcome: ResolveOutcome(grouped[l.ID], &l),
		}
		if history := grouped[l.ID]; len(history) > 0 {
			last := history[len(history)-1]
			n.LastAttempt = &last
		}
		eligibility := evaluateLessonPrerequisites(dedupe(l.Prerequisites, l.ID), existing, completed)
		n.IsEligible = eligibility.IsEligible
		n.UnmetPrerequisites = eligibility.UnmetPrerequisites
		return n
	}

	children := make(map[uint][]LessonNode)
	for _, l := range lessons {
		if l.ParentID != nil {
			children[*l.ParentID] = append(children[*l.ParentID], node(l))
		}
	}

	moduleTrackByID := make(map[uint]*model.ModuleTrack, len(moduleTracks))
	for i := range moduleTracks {
		moduleTrackByID[moduleTracks[i].ModuleID] = &moduleTracks[i]
	}

	result := &CourseHierarchy{
		Course:      course,
		Track:       track,
		Eligibility: courseEligibility,
		Modules:     make([]ModuleNode, 0, len(modules)),
	}
	for _, m := range modules {
		mn := ModuleNode{Module: m, Track: moduleTrackByID[m.ID], Lessons: []LessonNode{}}
		for _, l := range lessons {
			if l.ModuleID != m.ID || l.ParentID != nil {
				continue
			}
			n := node(l)
			n.Children = children[l.ID]
			mn.Lessons = append(mn.Lessons, n)
		}
		result.Modules = append(result.Modules, mn)
	}
	return result, nil
}
