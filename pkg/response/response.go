package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	appValidator "github.com/charlesng35/authcore/pkg/validator"
)

// ValidationFailedMessage is the message attached to field validation failures.
const ValidationFailedMessage = "Validation failed"

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// Response is the envelope used for every API payload, failures included.
type Response struct {
	Data      interface{} `json:"data"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// ValidationResponse lists failure messages per request field.
type ValidationResponse struct {
	Message   string              `json:"message"`
	Errors    map[string][]string `json:"errors"`
	Timestamp time.Time           `json:"timestamp"`
}

// Success writes data with a human readable message.
func Success(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, Response{
		Data:      data,
		Message:   message,
		Timestamp: now(),
	})
}

// Message writes an envelope without data.
func Message(c *gin.Context, statusCode int, message string) {
	Success(c, statusCode, nil, message)
}

// Validation writes the field error map produced by request validation.
func Validation(c *gin.Context, fields map[string][]string) {
	c.JSON(http.StatusBadRequest, ValidationResponse{
		Message:   ValidationFailedMessage,
		Errors:    fields,
		Timestamp: now(),
	})
}

// Error writes a failure envelope derived from an AppError. Errors that are not
// AppErrors are logged and rendered as a generic internal error.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	var vErrs appValidator.ValidationErrors
	if errors.As(err, &vErrs) {
		Validation(c, vErrs.Fields())
		return
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithModule("response").Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		appErr = appErrors.ErrInternalServer
	}

	c.JSON(status, Response{
		Data:      nil,
		Message:   appErr.Message,
		Timestamp: now(),
	})
}
