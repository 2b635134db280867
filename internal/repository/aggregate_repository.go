package repository

import (
	"context"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregateRepository 模块/课程汇总行的读写，写入只来自汇总器与选课
type AggregateRepository struct {
	DB *gorm.DB
}

func NewAggregateRepository(db *gorm.DB) *AggregateRepository {
	return &AggregateRepository{DB: db}
}

func (r *AggregateRepository) WithTx(tx *gorm.DB) *AggregateRepository {
	return &AggregateRepository{DB: tx}
}

func (r *AggregateRepository) FindCourseTrack(ctx context.Context, scope model.TenantScope, userID, courseID uint) (*model.CourseTrack, error) {
	var track model.CourseTrack
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&track).Error
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// LockCourseTrack 事务内 SELECT ... FOR UPDATE，不存在时返回 nil, nil
func (r *AggregateRepository) LockCourseTrack(ctx context.Context, scope model.TenantScope, userID, courseID uint) (*model.CourseTrack, error) {
	var tracks []model.CourseTrack
	err := scoped(ctx, r.DB, scope).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Limit(1).
		Find(&tracks).Error
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	return &tracks[0], nil
}

func (r *AggregateRepository) ListCourseTracks(ctx context.Context, scope model.TenantScope, userID uint, courseIDs []uint) ([]model.CourseTrack, error) {
	var tracks []model.CourseTrack
	if len(courseIDs) == 0 {
		return tracks, nil
	}
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND course_id IN ?", userID, courseIDs).
		Find(&tracks).Error
	return tracks, err
}

// ListCourseTracksByUsers 报表：多个学员在多门课程的汇总
func (r *AggregateRepository) ListCourseTracksByUsers(ctx context.Context, scope model.TenantScope, userIDs, courseIDs []uint) ([]model.CourseTrack, error) {
	var tracks []model.CourseTrack
	if len(userIDs) == 0 || len(courseIDs) == 0 {
		return tracks, nil
	}
	err := scoped(ctx, r.DB, scope).
		Where("user_id IN ? AND course_id IN ?", userIDs, courseIDs).
		Order("user_id ASC, course_id ASC").
		Find(&tracks).Error
	return tracks, err
}

func (r *AggregateRepository) CreateCourseTrack(ctx context.Context, track *model.CourseTrack) error {
	return r.DB.WithContext(ctx).Create(track).Error
}

func (r *AggregateRepository) SaveCourseTrack(ctx context.Context, track *model.CourseTrack) error {
	return r.DB.WithContext(ctx).Save(track).Error
}

func (r *AggregateRepository) LockModuleTrack(ctx context.Context, scope model.TenantScope, userID, moduleID uint) (*model.ModuleTrack, error) {
	var tracks []model.ModuleTrack
	err := scoped(ctx, r.DB, scope).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Limit(1).
		Find(&tracks).Error
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	return &tracks[0], nil
}

func (r *AggregateRepository) ListModuleTracks(ctx context.Context, scope model.TenantScope, userID, courseID uint) ([]model.ModuleTrack, error) {
	var tracks []model.ModuleTrack
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&tracks).Error
	return tracks, err
}

func (r *AggregateRepository) CreateModuleTracks(ctx context.Context, tracks []model.ModuleTrack) error {
	if len(tracks) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&tracks).Error
}

func (r *AggregateRepository) SaveModuleTrack(ctx context.Context, track *model.ModuleTrack) error {
	return r.DB.WithContext(ctx).Save(track).Error
}

// DeleteForUserCourse 物理删除学员在课程下的全部汇总，仅在删除选课时调用
func (r *AggregateRepository) DeleteForUserCourse(ctx context.Context, scope model.TenantScope, userID, courseID uint) error {
	if err := scoped(ctx, r.DB, scope).
		Unscoped().
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.ModuleTrack{}).Error; err != nil {
		return err
	}
	return scoped(ctx, r.DB, scope).
		Unscoped().
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.CourseTrack{}).Error
}
