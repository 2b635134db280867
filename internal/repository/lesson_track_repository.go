package repository

import (
	"context"
	"time"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
)

type LessonTrackRepository struct {
	DB *gorm.DB
}

func NewLessonTrackRepository(db *gorm.DB) *LessonTrackRepository {
	return &LessonTrackRepository{DB: db}
}

func (r *LessonTrackRepository) WithTx(tx *gorm.DB) *LessonTrackRepository {
	return &LessonTrackRepository{DB: tx}
}

func (r *LessonTrackRepository) Create(ctx context.Context, track *model.LessonTrack) error {
	return r.DB.WithContext(ctx).Create(track).Error
}

func (r *LessonTrackRepository) Save(ctx context.Context, track *model.LessonTrack) error {
	return r.DB.WithContext(ctx).Save(track).Error
}

// HardDelete 物理删除，释放 (user, lesson, attempt) 唯一索引
func (r *LessonTrackRepository) HardDelete(ctx context.Context, track *model.LessonTrack) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(track).Error
}

func (r *LessonTrackRepository) FindByID(ctx context.Context, scope model.TenantScope, id string) (*model.LessonTrack, error) {
	var track model.LessonTrack
	if err := scoped(ctx, r.DB, scope).Where("id = ?", id).First(&track).Error; err != nil {
		return nil, err
	}
	return &track, nil
}

// FindLatest 最大尝试序号的记录，没有任何尝试时返回 nil, nil
func (r *LessonTrackRepository) FindLatest(ctx context.Context, scope model.TenantScope, userID, lessonID uint) (*model.LessonTrack, error) {
	var tracks []model.LessonTrack
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("attempt DESC").
		Limit(1).
		Find(&tracks).Error
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	return &tracks[0], nil
}

func (r *LessonTrackRepository) ListByUserLesson(ctx context.Context, scope model.TenantScope, userID, lessonID uint) ([]model.LessonTrack, error) {
	var tracks []model.LessonTrack
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("attempt DESC").
		Find(&tracks).Error
	return tracks, err
}

// ListByUserLessons 一次查询取出多个课时的全部尝试，避免逐课时查询
func (r *LessonTrackRepository) ListByUserLessons(ctx context.Context, scope model.TenantScope, userID uint, lessonIDs []uint) ([]model.LessonTrack, error) {
	var tracks []model.LessonTrack
	if len(lessonIDs) == 0 {
		return tracks, nil
	}
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND lesson_id IN ?", userID, lessonIDs).
		Order("lesson_id ASC, attempt ASC").
		Find(&tracks).Error
	return tracks, err
}

func (r *LessonTrackRepository) CountByUserLesson(ctx context.Context, scope model.TenantScope, userID, lessonID uint) (int64, error) {
	var count int64
	err := scoped(ctx, r.DB, scope).
		Model(&model.LessonTrack{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&count).Error
	return count, err
}

func (r *LessonTrackRepository) CountByUserCourse(ctx context.Context, scope model.TenantScope, userID, courseID uint) (int64, error) {
	var count int64
	err := scoped(ctx, r.DB, scope).
		Model(&model.LessonTrack{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count, err
}

// ListCompletedLessonIDs 在给定课时中，学员存在 COMPLETED 尝试的课时
func (r *LessonTrackRepository) ListCompletedLessonIDs(ctx context.Context, scope model.TenantScope, userID uint, lessonIDs []uint) ([]uint, error) {
	var ids []uint
	if len(lessonIDs) == 0 {
		return ids, nil
	}
	err := scoped(ctx, r.DB, scope).
		Model(&model.LessonTrack{}).
		Distinct("lesson_id").
		Where("user_id = ? AND lesson_id IN ? AND status = ?", userID, lessonIDs, model.TrackCompleted).
		Pluck("lesson_id", &ids).Error
	return ids, err
}

// ActiveUserCourse 自某时间以来有尝试变更的学员-课程组合
type ActiveUserCourse struct {
	TenantID       string
	OrganizationID string
	UserID         uint
	CourseID       uint
}

func (r *LessonTrackRepository) ListActiveUserCourses(ctx context.Context, since time.Time) ([]ActiveUserCourse, error) {
	var rows []ActiveUserCourse
	err := r.DB.WithContext(ctx).
		Model(&model.LessonTrack{}).
		Select("DISTINCT tenant_id, organization_id, user_id, course_id").
		Where("updated_at >= ?", since).
		Scan(&rows).Error
	return rows, err
}
