package util

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// 错误分类：业务结果（NotFound/NotEligible/InvalidTransition）原样返回、不重试
var (
	ErrNotFound            = errors.New("not found")
	ErrNotEligible         = errors.New("not eligible")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrStoreTimeout        = errors.New("store timeout")
	ErrInvalidArgument     = errors.New("invalid argument")
)

var (
	ErrCourseNotFound     = fmt.Errorf("course %w", ErrNotFound)
	ErrModuleNotFound     = fmt.Errorf("module %w", ErrNotFound)
	ErrLessonNotFound     = fmt.Errorf("lesson %w", ErrNotFound)
	ErrAttemptNotFound    = fmt.Errorf("attempt %w", ErrNotFound)
	ErrCohortNotFound     = fmt.Errorf("cohort %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", ErrNotFound)
	ErrCourseTrackMissing = fmt.Errorf("course track %w", ErrNotFound)
	ErrNoExistingAttempt  = fmt.Errorf("no existing attempt: %w", ErrNotFound)

	ErrMaxAttemptsReached    = fmt.Errorf("max attempts reached: %w", ErrInvalidTransition)
	ErrResumeDisabled        = fmt.Errorf("resume disabled for lesson: %w", ErrInvalidTransition)
	ErrAttemptCompleted      = fmt.Errorf("attempt already completed: %w", ErrInvalidTransition)
	ErrEnrollmentHasAttempts = fmt.Errorf("enrollment has recorded attempts: %w", ErrInvalidTransition)

	ErrNotEnrolled = fmt.Errorf("learner not enrolled: %w", ErrNotEligible)
)

// EligibilityError 携带未满足的前置条件，便于调用方给出可操作提示
type EligibilityError struct {
	UnmetPrerequisites []uint `json:"unmetPrerequisites,omitempty"`
	RequiredCourses    []uint `json:"requiredCourses,omitempty"`
}

func (e *EligibilityError) Error() string {
	if len(e.RequiredCourses) > 0 {
		return fmt.Sprintf("not eligible: required courses %v not completed", e.RequiredCourses)
	}
	return fmt.Sprintf("not eligible: prerequisites %v not completed", e.UnmetPrerequisites)
}

func (e *EligibilityError) Unwrap() error {
	return ErrNotEligible
}

// StoreError 统一转换存储层错误：记录不存在、超时、唯一键冲突
func StoreError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(ErrStoreTimeout, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Wrap(ErrConflict, err.Error())
	}
	return err
}

// StatusFromError 错误分类到 HTTP 状态码
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrStoreTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorKind 错误分类的低基数标签，用于指标
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	}
	return "error"
}
