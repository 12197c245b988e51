package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/service"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTransient),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrCorruptRecord):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	abortWithError(c, code, err.Error())
}
