package model

// ContentStatus 课程/模块/课时的发布状态，ARCHIVED 对引擎视为不存在
type ContentStatus string

const (
	ContentPublished   ContentStatus = "PUBLISHED"
	ContentUnpublished ContentStatus = "UNPUBLISHED"
	ContentArchived    ContentStatus = "ARCHIVED"
)

type LessonFormat string

const (
	FormatVideo    LessonFormat = "video"
	FormatDocument LessonFormat = "document"
	FormatTest     LessonFormat = "test"
	FormatEvent    LessonFormat = "event"
)

// GradeMethod 多次尝试如何折算成一个结果
type GradeMethod string

const (
	GradeFirstAttempt GradeMethod = "FIRST_ATTEMPT"
	GradeLastAttempt  GradeMethod = "LAST_ATTEMPT"
	GradeHighest      GradeMethod = "HIGHEST"
	GradeAverage      GradeMethod = "AVERAGE"
)

// TrackStatus 单次尝试的状态
type TrackStatus string

const (
	TrackNotStarted  TrackStatus = "NOT_STARTED"
	TrackStarted     TrackStatus = "STARTED"
	TrackIncomplete  TrackStatus = "INCOMPLETE"
	TrackSubmitted   TrackStatus = "SUBMITTED"
	TrackCompleted   TrackStatus = "COMPLETED"
	TrackNotEligible TrackStatus = "NOT_ELIGIBLE"
)

// IsTerminal SUBMITTED 用于测验未通过的判分结果，同样视为终态
func (s TrackStatus) IsTerminal() bool {
	return s == TrackCompleted || s == TrackSubmitted
}

// CanContinue 学员可以继续的尝试：除 COMPLETED 外都可以，包括判分未通过的 SUBMITTED
func (s TrackStatus) CanContinue() bool {
	return s != TrackCompleted
}

// IsResumable 仍在进行中、尚无判定的尝试
func (s TrackStatus) IsResumable() bool {
	switch s {
	case TrackNotStarted, TrackStarted, TrackIncomplete:
		return true
	}
	return false
}

func (s TrackStatus) Valid() bool {
	switch s {
	case TrackNotStarted, TrackStarted, TrackIncomplete, TrackSubmitted, TrackCompleted, TrackNotEligible:
		return true
	}
	return false
}

type ModuleTrackStatus string

const (
	ModuleIncomplete ModuleTrackStatus = "INCOMPLETE"
	ModuleCompleted  ModuleTrackStatus = "COMPLETED"
)

type CourseTrackStatus string

const (
	CourseNotStarted  CourseTrackStatus = "NOT_STARTED"
	CourseStarted     CourseTrackStatus = "STARTED"
	CourseIncomplete  CourseTrackStatus = "INCOMPLETE"
	CourseCompleted   CourseTrackStatus = "COMPLETED"
	CourseNotEligible CourseTrackStatus = "NOT_ELIGIBLE"
)

type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "ACTIVE"
	EnrollmentInactive EnrollmentStatus = "INACTIVE"
)

// SignalResult 外部判分/签到结果
type SignalResult string

const (
	SignalPass SignalResult = "PASS"
	SignalFail SignalResult = "FAIL"
)
