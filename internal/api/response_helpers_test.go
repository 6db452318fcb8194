package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Corphon/StoryboardStudio/internal/errors"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := utils.GetLogger()
	logger.SetOutput(&buf)
	logger.SetLogLevel(utils.INFO)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func handleError(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/x", nil)
	NewResponseHelper().HandleError(c, err)
	return w
}

func TestHandleErrorLogLevels(t *testing.T) {
	buf := captureLog(t)

	w := handleError(errors.NewConflictError("镜头正在生成中", nil).WithCode(errors.CodeGenerationInProgress))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeGenerationInProgress)
	assert.Contains(t, buf.String(), "[INFO]")
	assert.Contains(t, buf.String(), "请求冲突")

	buf.Reset()
	w = handleError(errors.NewValidationError("提示词不能为空", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, buf.String())

	buf.Reset()
	w = handleError(errors.NewProcessingError("生成失败", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "[ERROR]")
	assert.Contains(t, buf.String(), "请求处理失败")
}
