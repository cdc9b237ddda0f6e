package dto

import (
	"time"

	"github.com/turtacn/apishield/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO 错误信息 DTO
type ErrorDTO struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应. Causes are not exposed to clients.
func ErrorResponse(err error, traceID string) *APIResponse {
	errorDTO := &ErrorDTO{
		Code:    string(errors.CodeInternal),
		Message: "Internal server error",
	}
	if se, ok := errors.As(err); ok {
		errorDTO = &ErrorDTO{
			Code:        string(se.Code()),
			Message:     se.Message(),
			Description: se.Description(),
		}
	}

	return &APIResponse{
		Success:   false,
		Error:     errorDTO,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// RejectionBody is the 429 payload. It carries only the configured message;
// counters and timestamps are never exposed.
type RejectionBody struct {
	Error string `json:"error"`
}
