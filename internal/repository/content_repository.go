package repository

import (
	"context"

	"learning_progress_backend/internal/model"

	"gorm.io/gorm"
)

// ContentRepository 课程/模块/课时的只读访问，ARCHIVED 的内容一律视为不存在
type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) WithTx(tx *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: tx}
}

func (r *ContentRepository) visible(ctx context.Context, scope model.TenantScope) *gorm.DB {
	return scoped(ctx, r.DB, scope).Where("status <> ?", model.ContentArchived)
}

// archivedParents 模块或课程已归档的课时同样不可见
func (r *ContentRepository) archivedParents(q *gorm.DB) *gorm.DB {
	db := r.DB.Session(&gorm.Session{NewDB: true})
	return q.
		Where("module_id NOT IN (?)", db.Model(&model.CourseModule{}).Select("id").Where("status = ?", model.ContentArchived)).
		Where("course_id NOT IN (?)", db.Model(&model.Course{}).Select("id").Where("status = ?", model.ContentArchived))
}

// visibleLessons 课时本身未归档，且所属模块和课程也未归档
func (r *ContentRepository) visibleLessons(ctx context.Context, scope model.TenantScope) *gorm.DB {
	return r.archivedParents(r.visible(ctx, scope))
}

// countableLessons 计入完成统计的课时：已发布、计入及格、非子内容，所属模块/课程未归档
func (r *ContentRepository) countableLessons(ctx context.Context, scope model.TenantScope, courseID uint) *gorm.DB {
	return r.archivedParents(scoped(ctx, r.DB, scope)).
		Where("course_id = ? AND status = ?", courseID, model.ContentPublished).
		Where("consider_for_passing = ? AND parent_id IS NULL", true)
}

func (r *ContentRepository) FindCourse(ctx context.Context, scope model.TenantScope, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.visible(ctx, scope).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *ContentRepository) FindModule(ctx context.Context, scope model.TenantScope, id uint) (*model.CourseModule, error) {
	var module model.CourseModule
	if err := r.visible(ctx, scope).First(&module, id).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *ContentRepository) FindLesson(ctx context.Context, scope model.TenantScope, id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := r.visibleLessons(ctx, scope).First(&lesson, id).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindLessonBySourceKey 外部测验/签到结果通过 source key 定位课时
func (r *ContentRepository) FindLessonBySourceKey(ctx context.Context, scope model.TenantScope, sourceKey string) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := r.visibleLessons(ctx, scope).Where("source_key = ?", sourceKey).First(&lesson).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *ContentRepository) FindLessonsByIDs(ctx context.Context, scope model.TenantScope, ids []uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	if len(ids) == 0 {
		return lessons, nil
	}
	err := r.visibleLessons(ctx, scope).Where("id IN ?", ids).Find(&lessons).Error
	return lessons, err
}

func (r *ContentRepository) ListModules(ctx context.Context, scope model.TenantScope, courseID uint) ([]model.CourseModule, error) {
	var modules []model.CourseModule
	err := r.visible(ctx, scope).
		Where("course_id = ?", courseID).
		Order("sort_order ASC, id ASC").
		Find(&modules).Error
	return modules, err
}

// ListLessons 课程下全部课时（含关联子内容），按模块与顺序排列
func (r *ContentRepository) ListLessons(ctx context.Context, scope model.TenantScope, courseID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.visibleLessons(ctx, scope).
		Where("course_id = ?", courseID).
		Order("module_id ASC, sort_order ASC, id ASC").
		Find(&lessons).Error
	return lessons, err
}

func (r *ContentRepository) ListCountableLessons(ctx context.Context, scope model.TenantScope, courseID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.countableLessons(ctx, scope, courseID).
		Order("module_id ASC, sort_order ASC, id ASC").
		Find(&lessons).Error
	return lessons, err
}

// CountCountableLessons 按模块统计计入完成的课时数，key 为 module_id
func (r *ContentRepository) CountCountableLessons(ctx context.Context, scope model.TenantScope, courseID uint) (map[uint]int, error) {
	var rows []struct {
		ModuleID uint
		Total    int
	}
	err := r.countableLessons(ctx, scope, courseID).
		Model(&model.Lesson{}).
		Select("module_id, COUNT(*) AS total").
		Group("module_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.ModuleID] = row.Total
	}
	return counts, nil
}

// ListLessonsByFormat 批量完成度检查：按格式/子格式筛选多门课程下的课时
func (r *ContentRepository) ListLessonsByFormat(ctx context.Context, scope model.TenantScope, courseIDs []uint, format model.LessonFormat, subFormat string) ([]model.Lesson, error) {
	var lessons []model.Lesson
	if len(courseIDs) == 0 {
		return lessons, nil
	}
	query := r.archivedParents(scoped(ctx, r.DB, scope)).
		Where("course_id IN ? AND status = ? AND parent_id IS NULL", courseIDs, model.ContentPublished).
		Where("format = ?", format)
	if subFormat != "" {
		query = query.Where("sub_format = ?", subFormat)
	}
	err := query.Order("course_id ASC, id ASC").Find(&lessons).Error
	return lessons, err
}
