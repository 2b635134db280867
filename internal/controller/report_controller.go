package controller

import (
	"learning_progress_backend/internal/service"
	"learning_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReportController struct {
	ReportService *service.ReportService
	RepairService *service.RepairService
}

func NewReportController(reportService *service.ReportService, repairService *service.RepairService) *ReportController {
	return &ReportController{
		ReportService: reportService,
		RepairService: repairService,
	}
}

type BatchCompletionRequest struct {
	Criteria []service.BatchCriterion `json:"criteria" binding:"required,min=1"`
}

// @Summary 批次完成度检查
// @Description 按课时格式统计学员在批次全部课程中的完成数量
// @Tags 报表
// @Accept json
// @Produce json
// @Param cohortId path int true "批次ID"
// @Param request body BatchCompletionRequest true "判定条件"
// @Success 200 {object} util.Response{data=service.BatchCompletion}
// @Router /tracking/cohorts/{cohortId}/batch-completion [post]
func (c *ReportController) CheckBatchCompletion(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	cohortID, err := util.ParseID(ctx.Param("cohortId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	var req BatchCompletionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ReportService.CheckBatchCompletion(ctx.Request.Context(), scope, cohortID, userID, req.Criteria)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 批次进度报表
// @Tags 报表
// @Produce json
// @Param cohortId path int true "批次ID"
// @Success 200 {object} util.Response{data=service.CohortReport}
// @Failure 503 {object} util.Response
// @Router /tracking/cohorts/{cohortId}/report [get]
func (c *ReportController) GetCohortReport(ctx *gin.Context) {
	scope, ok := tenantScope(ctx)
	if !ok {
		return
	}
	cohortID, err := util.ParseID(ctx.Param("cohortId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	report, err := c.ReportService.GetCohortReport(ctx.Request.Context(), scope, cohortID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, report)
}

// @Summary 重算课程进度
// @Description 对课程的全部选课学员执行一次完整重算
// @Tags 报表
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /tracking/courses/{courseId}/recalculate [post]
func (c *ReportController) RecalculateProgress(ctx *gin.Context) {
	scope, ok := tenantScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	processed, err := c.RepairService.RecalculateProgress(ctx.Request.Context(), scope, courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"processed": processed})
}
