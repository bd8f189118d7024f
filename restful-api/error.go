package restfulapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wisersense-io/mate-service/logger"
)

// HTTPError 自定义返回错误
type HTTPError struct {
	Code    int
	Key     string `json:"error"`
	Message string `json:"message"`
}

// NewHTTPError 创建自定义返回错误
func NewHTTPError(code int, key string, msg string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Key:     key,
		Message: msg,
	}
}

// Error makes it compatible with `error` interface.
func (e *HTTPError) Error() string {
	return e.Key + ": " + e.Message
}

// HTTPErrorHandler customize echo's HTTP error handler.
func HTTPErrorHandler(err error, c echo.Context) {
	var (
		code = http.StatusBadRequest
		key  = "_other"
		msg  interface{}
		he   *HTTPError
		ee   *echo.HTTPError
	)

	switch {
	case errors.As(err, &he):
		code = he.Code
		if he.Key != "" {
			key = he.Key
		}
		msg = he.Message
	case errors.As(err, &ee):
		code = ee.Code
		msg = ee.Message
	default:
		code = http.StatusInternalServerError
		msg = http.StatusText(code)
		logger.WithFields(logger.Fields{"path": c.Path()}).Errorf("请求处理失败: %s", err.Error())
	}

	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			if err := c.NoContent(code); err != nil {
				logger.Errorf("返回错误失败: %s", err.Error())
			}
		} else {
			if err := c.JSON(code, map[string]interface{}{key: msg}); err != nil {
				logger.Errorf("返回错误失败: %s", err.Error())
			}
		}
	}
}
