package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeChecksSeeThroughWrapping(t *testing.T) {
	base := NewConflictError("镜头正在生成中", nil)
	wrapped := fmt.Errorf("generate: %w", base)

	assert.True(t, IsConflictError(wrapped))
	assert.False(t, IsNotFoundError(wrapped))
	assert.Equal(t, ErrorTypeConflict, TypeOf(wrapped))
	assert.Equal(t, "CONFLICT", base.Code)
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(nil))
	assert.True(t, IsTimeoutError(FromContext(context.Canceled)))
	assert.True(t, IsTimeoutError(FromContext(fmt.Errorf("x: %w", context.DeadlineExceeded))))

	other := errors.New("boom")
	assert.Same(t, other, FromContext(other))
	assert.Equal(t, ErrorTypeError, TypeOf(other))
}

func TestWrapErrorKeepsType(t *testing.T) {
	err := WrapError(NewNotFoundError("场次不存在", nil), "更新镜头", ErrorTypeError)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "更新镜头: 场次不存在")

	assert.Nil(t, WrapError(nil, "x", ErrorTypeError))
	assert.True(t, IsValidationError(WrapError(errors.New("bad"), "x", ErrorTypeValidation)))
}

func TestWithCodeOverridesDefault(t *testing.T) {
	err := NewConflictError("镜头正在生成中", nil).WithCode(CodeGenerationInProgress)
	assert.Equal(t, CodeGenerationInProgress, CodeOf(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, "NOT_FOUND", CodeOf(NewNotFoundError("x", nil)))
	assert.Equal(t, "PROCESSING_ERROR", CodeOf(errors.New("plain")))
}
