package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnsupportedType    = 40001
	CodeNoFile             = 40002
	CodeUnauthorized       = 40100
	CodeSessionNotFound    = 40401
	CodeDetectionNotFound  = 40402
	CodeDetectionBusy      = 40901
	CodeDetectionFailed    = 42201
	CodeInternalServer     = 50000
	CodeModelUnavailable   = 50301
	CodeHistoryUnavailable = 50302
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is Error plus a payload, used when the client should repaint
// from the returned view.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
