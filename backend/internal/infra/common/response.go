package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode 表示统一的错误码，便于前端识别失败原因。
type ErrorCode string

const (
	ErrBadRequest      ErrorCode = "BAD_REQUEST"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
	ErrUnknownAction   ErrorCode = "UNKNOWN_ACTION"
	ErrMaintenanceBusy ErrorCode = "MAINTENANCE_IN_PROGRESS"
)

// Error 描述错误响应的统一结构。
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Response 是所有接口返回的公共结构。
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

// Success 以统一格式返回成功结果。
func Success(c *gin.Context, status int, data any, meta any) {
	if status == 0 {
		status = http.StatusOK
	}

	resp := Response{
		Success: true,
		Data:    data,
	}
	if meta != nil {
		resp.Meta = meta
	}

	c.JSON(status, resp)
}

// Fail 以统一格式返回错误结果。
func Fail(c *gin.Context, status int, code ErrorCode, message string, details any) {
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
	if details != nil {
		resp.Error.Details = details
	}

	c.JSON(status, resp)
}

// FailWithError 将系统错误映射到统一错误码。
func FailWithError(c *gin.Context, status int, err error, fallback ErrorCode) {
	if err == nil {
		Fail(c, status, fallback, http.StatusText(status), nil)
		return
	}

	code := fallback
	if code == "" {
		code = ErrInternal
	}

	Fail(c, status, code, err.Error(), nil)
}
