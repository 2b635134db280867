package controller

import (
	"context"

	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/service"
	"learning_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TrackingController struct {
	AttemptService  *service.AttemptService
	TrackingService *service.TrackingService
}

func NewTrackingController(attemptService *service.AttemptService, trackingService *service.TrackingService) *TrackingController {
	return &TrackingController{
		AttemptService:  attemptService,
		TrackingService: trackingService,
	}
}

// @Summary 开始或继续课时
// @Description 有进行中的尝试且课时允许继续时返回该尝试，否则创建新的尝试
// @Tags 学习追踪
// @Produce json
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/lessons/{lessonId}/attempts [post]
func (c *TrackingController) StartOrResume(ctx *gin.Context) {
	c.lessonAttempt(ctx, c.AttemptService.StartOrResume)
}

// @Summary 重新开始课时
// @Tags 学习追踪
// @Produce json
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/lessons/{lessonId}/attempts/start-over [post]
func (c *TrackingController) StartOver(ctx *gin.Context) {
	c.lessonAttempt(ctx, c.AttemptService.StartOver)
}

// @Summary 继续上次的尝试
// @Tags 学习追踪
// @Produce json
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/lessons/{lessonId}/attempts/resume [post]
func (c *TrackingController) Resume(ctx *gin.Context) {
	c.lessonAttempt(ctx, c.AttemptService.Resume)
}

type lessonAttemptFunc func(ctx context.Context, scope model.TenantScope, lessonID, userID uint) (*model.LessonTrack, error)

func (c *TrackingController) lessonAttempt(ctx *gin.Context, fn lessonAttemptFunc) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	lessonID, err := util.ParseID(ctx.Param("lessonId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	track, err := fn(ctx.Request.Context(), scope, lessonID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// @Summary 课时状态
// @Description 是否可继续、可重新开始，以及前置条件是否满足
// @Tags 学习追踪
// @Produce json
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=service.LessonStatus}
// @Router /tracking/lessons/{lessonId}/status [get]
func (c *TrackingController) GetLessonStatus(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	lessonID, err := util.ParseID(ctx.Param("lessonId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	status, err := c.AttemptService.GetLessonStatus(ctx.Request.Context(), scope, lessonID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary 查询尝试
// @Tags 学习追踪
// @Produce json
// @Param attemptId path string true "尝试ID"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/attempts/{attemptId} [get]
func (c *TrackingController) GetAttempt(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}

	track, err := c.ownAttempt(ctx, scope, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// @Summary 上报学习进度
// @Description 时长累加；完成度达到 100 或显式给出终态时触发课程汇总
// @Tags 学习追踪
// @Accept json
// @Produce json
// @Param attemptId path string true "尝试ID"
// @Param delta body service.ProgressDelta true "进度增量"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/attempts/{attemptId}/progress [patch]
func (c *TrackingController) UpdateProgress(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}

	var delta service.ProgressDelta
	if err := ctx.ShouldBindJSON(&delta); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if _, err := c.ownAttempt(ctx, scope, userID); err != nil {
		util.HandleError(ctx, err)
		return
	}

	track, err := c.AttemptService.UpdateProgress(ctx.Request.Context(), scope, ctx.Param("attemptId"), delta)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// ownAttempt 其他学员的尝试按不存在处理
func (c *TrackingController) ownAttempt(ctx *gin.Context, scope model.TenantScope, userID uint) (*model.LessonTrack, error) {
	track, err := c.AttemptService.GetAttempt(ctx.Request.Context(), scope, ctx.Param("attemptId"))
	if err != nil {
		return nil, err
	}
	if track.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}
	return track, nil
}

// @Summary 外部完成信号
// @Description 外部测验或活动按 sourceKey 回写结果
// @Tags 学习追踪
// @Accept json
// @Produce json
// @Param signal body service.ExternalSignal true "完成信号"
// @Success 200 {object} util.Response{data=model.LessonTrack}
// @Router /tracking/signals [post]
func (c *TrackingController) CompleteByExternalSignal(ctx *gin.Context) {
	scope, ok := tenantScope(ctx)
	if !ok {
		return
	}

	var signal service.ExternalSignal
	if err := ctx.ShouldBindJSON(&signal); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	track, err := c.AttemptService.CompleteByExternalSignal(ctx.Request.Context(), scope, signal)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// @Summary 课程进度汇总
// @Tags 学习追踪
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=model.CourseTrack}
// @Router /tracking/courses/{courseId} [get]
func (c *TrackingController) GetCourseTracking(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	track, err := c.TrackingService.GetCourseTracking(ctx.Request.Context(), scope, courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// @Summary 课程结构与进度
// @Description 课程 -> 模块 -> 课时，附带每个课时的判分结果与前置条件
// @Tags 学习追踪
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseHierarchy}
// @Router /tracking/courses/{courseId}/hierarchy [get]
func (c *TrackingController) GetCourseHierarchy(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	hierarchy, err := c.TrackingService.GetCourseHierarchy(ctx.Request.Context(), scope, courseID, userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, hierarchy)
}

func tenantScope(ctx *gin.Context) (model.TenantScope, bool) {
	scope, ok := util.GetScopeFromContext(ctx)
	if !ok {
		util.BadRequest(ctx, "missing tenant headers")
		return model.TenantScope{}, false
	}
	return scope, true
}

func learnerScope(ctx *gin.Context) (model.TenantScope, uint, bool) {
	scope, ok := tenantScope(ctx)
	if !ok {
		return scope, 0, false
	}
	userID, ok := util.GetUserIDFromContext(ctx)
	if !ok {
		util.BadRequest(ctx, "missing "+util.HeaderUserID)
		return scope, 0, false
	}
	return scope, userID, true
}
