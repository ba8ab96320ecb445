package handler

import (
	"strconv"
	"time"

	"upforit/internal/services"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
)

// fail hands err to the ErrorHandler middleware, which picks the status.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		fail(c, upforit_errors.ErrUnauthorized)
	}
	return userID, ok
}

func parseLimit(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, upforit_errors.ErrInvalidInput
	}
	return n, nil
}

func parseBefore(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, upforit_errors.ErrInvalidInput
	}
	return t, nil
}
