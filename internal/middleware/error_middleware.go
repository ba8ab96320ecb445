package middleware

import (
	"net/http"

	"upforit/internal/transport/httpdto"
	"upforit/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error. Handlers that
// already wrote a response are left alone.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := httpdto.StatusFor(err)
		if l != nil {
			if status >= http.StatusInternalServerError {
				l.ErrorCtx(c.Request.Context(), "request failed", zap.Error(err))
			} else {
				l.WarnCtx(c.Request.Context(), "request rejected", zap.Int("status", status), zap.Error(err))
			}
		}

		msg := err.Error()
		if status >= http.StatusInternalServerError {
			msg = "internal error"
		}
		c.JSON(status, httpdto.NewErrorResponse(msg, code))
	}
}
