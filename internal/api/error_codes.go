// internal/api/error_codes.go
package api

import "github.com/Corphon/StoryboardStudio/internal/errors"

// API错误代码常量
const (
	// 通用错误
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeRequestCancelled = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"

	// 项目树
	ErrCodeProjectNotFound = "PROJECT_NOT_FOUND"
	ErrCodeTaskNotFound    = "TASK_NOT_FOUND"
	ErrCodeNoSelection     = "NO_TASK_SELECTED"

	// 生成与后台任务
	ErrCodeGenerationInProgress = errors.CodeGenerationInProgress
	ErrCodeConfirmRequired      = errors.CodeConfirmRequired
	ErrCodeJobNotFound          = "JOB_NOT_FOUND"

	// 生成服务配置
	ErrCodeProviderConfigInvalid = "PROVIDER_CONFIG_INVALID"
)
