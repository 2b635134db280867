package util

import (
	"net/http"

	"learning_progress_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// HandleError 根据错误分类输出响应；资格不足时附带未满足的前置条件
func HandleError(c *gin.Context, err error) {
	code := StatusFromError(err)
	if code == http.StatusInternalServerError {
		logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
		InternalServerError(c)
		return
	}

	var eligibility *EligibilityError
	if errors.As(err, &eligibility) {
		c.JSON(code, Response{
			Code:    code,
			Message: err.Error(),
			Data:    eligibility,
		})
		return
	}

	Error(c, code, err.Error())
}
