package util

import (
	"errors"
	"net/http"

	"video_quiz_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
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

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// HandleError 将领域错误映射为 HTTP 状态码，未知错误按 500 处理
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrVideoNotFound), errors.Is(err, ErrSessionNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownQuestion):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoContext):
		Error(c, http.StatusNotFound, "No content at this point of the video")
	case errors.Is(err, ErrIngestion):
		Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrInvalidYouTubeURL), errors.Is(err, ErrNoTranscriptSource),
		errors.Is(err, ErrInvalidOptions):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrServiceUnavailable):
		Error(c, http.StatusServiceUnavailable, err.Error())
	default:
		LogInternalError(c, err)
	}
}
