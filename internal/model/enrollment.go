package model

// Enrollment 学员选课记录
// swagger:model Enrollment
type Enrollment struct {
	BaseModel
	Tenant

	UserID   uint             `gorm:"not null;uniqueIndex:idx_enrollment_user_course,priority:1" json:"userId"`
	CourseID uint             `gorm:"not null;uniqueIndex:idx_enrollment_user_course,priority:2" json:"courseId"`
	CohortID *uint            `gorm:"index" json:"cohortId,omitempty"`
	Status   EnrollmentStatus `gorm:"size:20;default:'ACTIVE'" json:"status"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// Cohort 班级/批次，报表按批次统计
// swagger:model Cohort
type Cohort struct {
	BaseModel
	Tenant

	Name string `gorm:"size:255;not null" json:"name"`
}

func (Cohort) TableName() string {
	return "cohorts"
}

type CohortCourse struct {
	BaseModel
	Tenant

	CohortID uint `gorm:"not null;uniqueIndex:idx_cohort_course,priority:1" json:"cohortId"`
	CourseID uint `gorm:"not null;uniqueIndex:idx_cohort_course,priority:2" json:"courseId"`
}

func (CohortCourse) TableName() string {
	return "cohort_courses"
}
