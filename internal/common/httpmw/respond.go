package httpmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
)

const genericErrorMessage = "internal server error"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondError writes err as JSON. Application errors keep their status and
// message; everything else is logged and hidden behind a generic 500.
func RespondError(c *gin.Context, log *logger.Logger, err error) {
	status := apperrors.GetHTTPStatus(err)
	code := apperrors.ErrCodeInternalError
	if appErr, ok := apperrors.As(err); ok {
		code = appErr.Code
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorBody{
		Error: apperrors.PublicMessage(err, genericErrorMessage),
		Code:  code,
	})
}
