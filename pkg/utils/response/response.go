package response

import (
	"net/http"
	"regexp"

	"codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"
)

// CallbackParam is the query parameter naming a JSONP callback.
const CallbackParam = "vcallback"

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// ErrorBody is written for requests that could not produce a report.
type ErrorBody struct {
	Errors  string           `json:"errors"`
	Code    errors.ErrorCode `json:"code"`
	TraceID string           `json:"trace_id,omitempty"`
}

// JSON writes data as JSON, or as JSONP when the request names a valid callback.
func JSON(c *gin.Context, status int, data interface{}) {
	if callback := Callback(c); callback != "" {
		c.Render(status, render.JsonpJSON{Callback: callback, Data: data})
		return
	}
	c.JSON(status, data)
}

// Success sends data with status 200.
func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Error sends an error response.
// It automatically extracts error code and message from the error
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)
	status := customErr.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
	}
	if len(customErr.Details) > 0 {
		fields = append(fields, zap.Any("details", customErr.Details))
	}
	if status >= http.StatusInternalServerError {
		fields = append(fields, zap.String("stack", customErr.Stack))
		logger.Error(c.Request.Context(), "request error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	JSON(c, status, ErrorBody{
		Errors:  customErr.Error(),
		Code:    customErr.Code,
		TraceID: getTraceID(c),
	})
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

// NotFound sends a 404 not found error
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, errors.NotFound, message)
}

// AbortWithError aborts the request and sends error response
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// Callback returns the JSONP callback named by the request, or "" when
// absent or not a plain identifier path.
func Callback(c *gin.Context) string {
	callback := c.Query(CallbackParam)
	if callback == "" || !callbackPattern.MatchString(callback) {
		return ""
	}
	return callback
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
