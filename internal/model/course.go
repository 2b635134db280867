package model

import (
	"gorm.io/datatypes"
)

// Course 课程，内容维护在外部服务，引擎只读
// swagger:model Course
type Course struct {
	BaseModel
	Tenant

	Title         string                    `gorm:"size:255;not null" json:"title"`
	Status        ContentStatus             `gorm:"size:20;default:'PUBLISHED';index" json:"status"`
	Prerequisites datatypes.JSONSlice[uint] `json:"prerequisites"` // 前置课程ID
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model CourseModule
type CourseModule struct {
	BaseModel
	Tenant

	CourseID uint          `gorm:"index;not null" json:"courseId"`
	Title    string        `gorm:"size:255;not null" json:"title"`
	Order    int           `gorm:"column:sort_order;default:0" json:"order"`
	Status   ContentStatus `gorm:"size:20;default:'PUBLISHED';index" json:"status"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

// Lesson 课时及其追踪策略
// swagger:model Lesson
type Lesson struct {
	BaseModel
	Tenant

	CourseID  uint          `gorm:"index;not null" json:"courseId"`
	ModuleID  uint          `gorm:"index;not null" json:"moduleId"`
	ParentID  *uint         `gorm:"index" json:"parentId,omitempty"` // 关联子内容，不单独计入汇总
	Title     string        `gorm:"size:255;not null" json:"title"`
	Format    LessonFormat  `gorm:"size:20;not null" json:"format"`
	SubFormat string        `gorm:"size:50" json:"subFormat"`
	SourceKey string        `gorm:"size:100;index" json:"sourceKey,omitempty"` // 外部测验/活动ID
	Order     int           `gorm:"column:sort_order;default:0" json:"order"`
	Status    ContentStatus `gorm:"size:20;default:'PUBLISHED';index" json:"status"`

	AttemptsGradeMethod GradeMethod               `gorm:"size:20;default:'LAST_ATTEMPT'" json:"attemptsGradeMethod"`
	MaxAttempts         int                       `gorm:"default:0" json:"maxAttempts"` // 0 表示不限
	AllowResubmission   bool                      `gorm:"default:false" json:"allowResubmission"`
	Resume              *bool                     `gorm:"default:true" json:"resume"`
	ConsiderForPassing  bool                      `gorm:"default:false" json:"considerForPassing"`
	PassingMarks        *int                      `json:"passingMarks,omitempty"`
	TotalMarks          *int                      `json:"totalMarks,omitempty"`
	Prerequisites       datatypes.JSONSlice[uint] `json:"prerequisites"` // 前置课时ID，有序
}

func (Lesson) TableName() string {
	return "lessons"
}

// CanResume 未配置时默认允许继续
func (l *Lesson) CanResume() bool {
	return l.Resume == nil || *l.Resume
}

// HasPassingThreshold 百分比判分需要同时配置及格分与总分
func (l *Lesson) HasPassingThreshold() bool {
	return l.PassingMarks != nil && l.TotalMarks != nil && *l.TotalMarks > 0
}

// CountsTowardsCompletion 仅统计计入及格且非子内容的课时
func (l *Lesson) CountsTowardsCompletion() bool {
	return l.ConsiderForPassing && l.ParentID == nil
}
