package model

import "time"

// LessonTrack 学员对课时的一次尝试
// 同一 (user, lesson, attempt) 唯一；重交模式下每个 (user, lesson) 只有一行
// swagger:model LessonTrack
type LessonTrack struct {
	UUIDBase
	Tenant

	UserID   uint `gorm:"not null;uniqueIndex:idx_lesson_track_attempt,priority:1;index:idx_lesson_track_user_course,priority:1" json:"userId"`
	LessonID uint `gorm:"not null;uniqueIndex:idx_lesson_track_attempt,priority:2" json:"lessonId"`
	Attempt  int  `gorm:"not null;uniqueIndex:idx_lesson_track_attempt,priority:3" json:"attempt"`
	CourseID uint `gorm:"not null;index:idx_lesson_track_user_course,priority:2" json:"courseId"`

	Status               TrackStatus `gorm:"size:20;not null;default:'STARTED'" json:"status"`
	Score                int         `gorm:"default:0" json:"score"`
	CompletionPercentage int         `gorm:"default:0" json:"completionPercentage"`
	TimeSpent            int         `gorm:"default:0" json:"timeSpent"` // 秒，只增不减
	CurrentPosition      int         `gorm:"default:0" json:"currentPosition"`
	TotalContent         int         `gorm:"default:0" json:"totalContent"`
	StartDatetime        time.Time   `json:"startDatetime"`
	EndDatetime          *time.Time  `json:"endDatetime,omitempty"`
}

func (LessonTrack) TableName() string {
	return "lesson_tracks"
}

// Reset 清空可变字段，用于重交模式的原地重置
func (t *LessonTrack) Reset(now time.Time) {
	t.Status = TrackStarted
	t.Score = 0
	t.CompletionPercentage = 0
	t.TimeSpent = 0
	t.CurrentPosition = 0
	t.TotalContent = 0
	t.StartDatetime = now
	t.EndDatetime = nil
}
