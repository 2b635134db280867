package repository

import (
	"context"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) WithTx(tx *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: tx}
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *model.Enrollment) error {
	return r.DB.WithContext(ctx).Create(enrollment).Error
}

func (r *EnrollmentRepository) Find(ctx context.Context, scope model.TenantScope, userID, courseID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := scoped(ctx, r.DB, scope).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// IsActive 选课存在且为 ACTIVE
func (r *EnrollmentRepository) IsActive(ctx context.Context, scope model.TenantScope, userID, courseID uint) (bool, error) {
	var count int64
	err := scoped(ctx, r.DB, scope).
		Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.EnrollmentActive).
		Count(&count).Error
	return count > 0, err
}

func (r *EnrollmentRepository) ListByCourse(ctx context.Context, scope model.TenantScope, courseID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := scoped(ctx, r.DB, scope).
		Where("course_id = ?", courseID).
		Order("user_id ASC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepository) ListByCohort(ctx context.Context, scope model.TenantScope, cohortID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := scoped(ctx, r.DB, scope).
		Where("cohort_id = ?", cohortID).
		Order("user_id ASC, course_id ASC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepository) HardDelete(ctx context.Context, enrollment *model.Enrollment) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(enrollment).Error
}
