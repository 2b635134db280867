package model

import "time"

// ModuleTrack 学员在模块维度的汇总，只由汇总器写入
// swagger:model ModuleTrack
type ModuleTrack struct {
	UUIDBase
	Tenant

	UserID           uint              `gorm:"not null;uniqueIndex:idx_module_track_user_module,priority:1" json:"userId"`
	ModuleID         uint              `gorm:"not null;uniqueIndex:idx_module_track_user_module,priority:2" json:"moduleId"`
	CourseID         uint              `gorm:"not null;index" json:"courseId"`
	CompletedLessons int               `gorm:"default:0" json:"completedLessons"`
	TotalLessons     int               `gorm:"default:0" json:"totalLessons"`
	Progress         int               `gorm:"default:0" json:"progress"` // 0-100
	Status           ModuleTrackStatus `gorm:"size:20;default:'INCOMPLETE'" json:"status"`
}

func (ModuleTrack) TableName() string {
	return "module_tracks"
}

// CourseTrack 学员在课程维度的汇总，只由汇总器写入
// swagger:model CourseTrack
type CourseTrack struct {
	UUIDBase
	Tenant

	UserID            uint              `gorm:"not null;uniqueIndex:idx_course_track_user_course,priority:1" json:"userId"`
	CourseID          uint              `gorm:"not null;uniqueIndex:idx_course_track_user_course,priority:2" json:"courseId"`
	CompletedLessons  int               `gorm:"default:0" json:"completedLessons"`
	TotalLessons      int               `gorm:"default:0" json:"totalLessons"`
	Status            CourseTrackStatus `gorm:"size:20;default:'NOT_STARTED'" json:"status"`
	LastAccessedDate  *time.Time        `json:"lastAccessedDate,omitempty"`
	StartDatetime     *time.Time        `json:"startDatetime,omitempty"`
	EndDatetime       *time.Time        `json:"endDatetime,omitempty"`
	CertificateIssued bool              `gorm:"default:false" json:"certificateIssued"`
}

func (CourseTrack) TableName() string {
	return "course_tracks"
}

// ProgressPercent round(completed/total*100)，total 为 0 时返回 0
func ProgressPercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(completed)/float64(total)*100 + 0.5)
}
