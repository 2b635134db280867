// Package testutil 测试用的 SQLite 内存库与数据构造
package testutil

import (
	"fmt"
	"testing"
	"time"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/model"
	"learning_progress_backend/pkg/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Scope 测试默认租户
var Scope = model.TenantScope{TenantID: "tenant-1", OrganizationID: "org-1"}

// OpenDB 每个测试一个独立的共享缓存内存库，单连接避免 SQLite 写锁冲突
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
		MaxOpenConns: 1,
	}, "test")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// TrackingConfig 测试用的引擎参数：同步汇总，锁等待放宽
func TrackingConfig() config.TrackingConfig {
	cfg := config.DefaultTracking()
	cfg.RollupMode = config.RollupModeInline
	cfg.LockWaitMS = 5000
	cfg.StoreTimeoutMS = 5000
	return cfg
}

func CreateCourse(t *testing.T, db *gorm.DB, title string, prerequisites ...uint) *model.Course {
	t.Helper()
	course := &model.Course{
		Tenant:        Scope.Columns(),
		Title:         title,
		Status:        model.ContentPublished,
		Prerequisites: datatypes.JSONSlice[uint](prerequisites),
	}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("create course: %v", err)
	}
	return course
}

func CreateModule(t *testing.T, db *gorm.DB, courseID uint, title string) *model.CourseModule {
	t.Helper()
	module := &model.CourseModule{
		Tenant:   Scope.Columns(),
		CourseID: courseID,
		Title:    title,
		Status:   model.ContentPublished,
	}
	if err := db.Create(module).Error; err != nil {
		t.Fatalf("create module: %v", err)
	}
	return module
}

// LessonOption 调整课时策略
type LessonOption func(*model.Lesson)

func WithGradeMethod(m model.GradeMethod) LessonOption {
	return func(l *model.Lesson) { l.AttemptsGradeMethod = m }
}

func WithMaxAttempts(n int) LessonOption {
	return func(l *model.Lesson) { l.MaxAttempts = n }
}

func WithResubmission() LessonOption {
	return func(l *model.Lesson) { l.AllowResubmission = true }
}

func WithResume(resume bool) LessonOption {
	return func(l *model.Lesson) { l.Resume = &resume }
}

func WithFormat(format model.LessonFormat, subFormat string) LessonOption {
	return func(l *model.Lesson) {
		l.Format = format
		l.SubFormat = subFormat
	}
}

func WithMarks(passing, total int) LessonOption {
	return func(l *model.Lesson) {
		l.PassingMarks = &passing
		l.TotalMarks = &total
	}
}

func WithPrerequisites(ids ...uint) LessonOption {
	return func(l *model.Lesson) { l.Prerequisites = datatypes.JSONSlice[uint](ids) }
}

func WithParent(id uint) LessonOption {
	return func(l *model.Lesson) { l.ParentID = &id }
}

func WithSourceKey(key string) LessonOption {
	return func(l *model.Lesson) { l.SourceKey = key }
}

func NotCounted() LessonOption {
	return func(l *model.Lesson) { l.ConsiderForPassing = false }
}

func WithStatus(status model.ContentStatus) LessonOption {
	return func(l *model.Lesson) { l.Status = status }
}

// CreateLesson 默认：视频、LAST_ATTEMPT、不限次数、计入及格
func CreateLesson(t *testing.T, db *gorm.DB, module *model.CourseModule, title string, opts ...LessonOption) *model.Lesson {
	t.Helper()
	lesson := &model.Lesson{
		Tenant:              Scope.Columns(),
		CourseID:            module.CourseID,
		ModuleID:            module.ID,
		Title:               title,
		Format:              model.FormatVideo,
		Status:              model.ContentPublished,
		AttemptsGradeMethod: model.GradeLastAttempt,
		ConsiderForPassing:  true,
	}
	for _, opt := range opts {
		opt(lesson)
	}
	if err := db.Create(lesson).Error; err != nil {
		t.Fatalf("create lesson: %v", err)
	}
	return lesson
}

func CreateEnrollment(t *testing.T, db *gorm.DB, userID, courseID uint, cohortID *uint) *model.Enrollment {
	t.Helper()
	enrollment := &model.Enrollment{
		Tenant:   Scope.Columns(),
		UserID:   userID,
		CourseID: courseID,
		CohortID: cohortID,
		Status:   model.EnrollmentActive,
	}
	if err := db.Create(enrollment).Error; err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return enrollment
}

func CreateCohort(t *testing.T, db *gorm.DB, name string, courseIDs ...uint) *model.Cohort {
	t.Helper()
	cohort := &model.Cohort{Tenant: Scope.Columns(), Name: name}
	if err := db.Create(cohort).Error; err != nil {
		t.Fatalf("create cohort: %v", err)
	}
	for _, id := range courseIDs {
		link := &model.CohortCourse{Tenant: Scope.Columns(), CohortID: cohort.ID, CourseID: id}
		if err := db.Create(link).Error; err != nil {
			t.Fatalf("link cohort course: %v", err)
		}
	}
	return cohort
}

// CreateAttempt 直接写入一次尝试，绕过状态机
func CreateAttempt(t *testing.T, db *gorm.DB, lesson *model.Lesson, userID uint, attempt int, status model.TrackStatus, score int) *model.LessonTrack {
	t.Helper()
	track := &model.LessonTrack{
		Tenant:        Scope.Columns(),
		UserID:        userID,
		LessonID:      lesson.ID,
		CourseID:      lesson.CourseID,
		Attempt:       attempt,
		Status:        status,
		Score:         score,
		StartDatetime: time.Now(),
	}
	if err := db.Create(track).Error; err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return track
}

func CountAttempts(t *testing.T, db *gorm.DB, userID, lessonID uint) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.LessonTrack{}).Where("user_id = ? AND lesson_id = ?", userID, lessonID).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	return count
}
