package controller

import (
	"learning_progress_backend/internal/service"
	"learning_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	EnrollmentService *service.EnrollmentService
}

func NewEnrollmentController(enrollmentService *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{EnrollmentService: enrollmentService}
}

type EnrollRequest struct {
	CohortID *uint `json:"cohortId"`
}

// @Summary 选课
// @Description 重复选课返回已有记录；前置课程未完成时课程状态为 NOT_ELIGIBLE
// @Tags 选课
// @Accept json
// @Produce json
// @Param courseId path int true "课程ID"
// @Param request body EnrollRequest false "所属批次"
// @Success 201 {object} util.Response{data=service.EnrollResult}
// @Router /tracking/courses/{courseId}/enrollment [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	var req EnrollRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	result, err := c.EnrollmentService.Enroll(ctx.Request.Context(), scope, userID, courseID, req.CohortID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// @Summary 是否已选课
// @Tags 选课
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /tracking/courses/{courseId}/enrollment [get]
func (c *EnrollmentController) IsEnrolled(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	enrolled, err := c.EnrollmentService.IsEnrolled(ctx.Request.Context(), scope, userID, courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"enrolled": enrolled})
}

// @Summary 检查选课能否删除
// @Description 已有任何尝试记录时返回 409
// @Tags 选课
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /tracking/courses/{courseId}/enrollment/deletable [get]
func (c *EnrollmentController) CheckDeletable(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	if err := c.EnrollmentService.CheckEnrollmentDeletable(ctx.Request.Context(), scope, userID, courseID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deletable": true})
}

// @Summary 删除选课
// @Tags 选课
// @Produce json
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /tracking/courses/{courseId}/enrollment [delete]
func (c *EnrollmentController) Delete(ctx *gin.Context) {
	scope, userID, ok := learnerScope(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParseID(ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	if err := c.EnrollmentService.DeleteEnrollment(ctx.Request.Context(), scope, userID, courseID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Enrollment deleted"})
}
