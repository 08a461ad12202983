package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewProcessingError("保存故事失败", cause)

	assert.Equal(t, "保存故事失败: disk full", err.Error())
	assert.Equal(t, "PROCESSING_ERROR", err.Code)
	assert.ErrorIs(t, err, cause)

	bare := NewValidationError("缺少标题", nil)
	assert.Equal(t, "缺少标题", bare.Error())
}

func TestTypePredicatesSeeThroughWrapping(t *testing.T) {
	notFound := NewNotFoundError("故事不存在", nil)
	wrapped := fmt.Errorf("load story: %w", notFound)

	assert.True(t, IsNotFoundError(wrapped))
	assert.False(t, IsValidationError(wrapped))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeProcessing, TypeOf(errors.New("plain")))
	assert.True(t, IsTimeoutError(NewTimeoutError("生成超时", nil)))
}

func TestWrapError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "ignored", ErrorTypeProcessing))
	})

	t.Run("keeps type of existing AppError", func(t *testing.T) {
		inner := NewValidationError("页数非法", nil)
		err := WrapError(inner, "创建故事", ErrorTypeProcessing)

		var appErr *AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, ErrorTypeValidation, appErr.Type)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
		assert.Equal(t, "创建故事: 页数非法", appErr.Message)
	})

	t.Run("plain error gets requested type", func(t *testing.T) {
		err := WrapError(errors.New("boom"), "调用模型", ErrorTypeUnavailable)
		assert.Equal(t, ErrorTypeUnavailable, TypeOf(err))
	})
}
