package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
)

// Response 统一 JSON 响应
//
// 流式接口只在开始推送之前使用它报告错误, 推送开始后错误以事件形式下发。
type Response struct {
	Code    int         `json:"code"` // 0 表示成功
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

// Success 200, data 为 nil 时输出 {}
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{Code: apperrors.Success, Data: data})
}

// HandleError 按错误码输出错误响应, 非 AppError 视为内部错误
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	Fail(c, apperrors.CodeOf(err), apperrors.DetailsOf(err))
}

// Fail 直接按错误码输出错误响应
func Fail(c *gin.Context, code int, details string) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details),
		Data:    struct{}{},
	})
}
