package repository

import (
	"context"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
)

type CohortRepository struct {
	DB *gorm.DB
}

func NewCohortRepository(db *gorm.DB) *CohortRepository {
	return &CohortRepository{DB: db}
}

func (r *CohortRepository) FindByID(ctx context.Context, scope model.TenantScope, id uint) (*model.Cohort, error) {
	var cohort model.Cohort
	if err := scoped(ctx, r.DB, scope).First(&cohort, id).Error; err != nil {
		return nil, err
	}
	return &cohort, nil
}

func (r *CohortRepository) ListCourseIDs(ctx context.Context, scope model.TenantScope, cohortID uint) ([]uint, error) {
	var ids []uint
	err := scoped(ctx, r.DB, scope).
		Model(&model.CohortCourse{}).
		Where("cohort_id = ?", cohortID).
		Order("course_id ASC").
		Pluck("course_id", &ids).Error
	return ids, err
}
