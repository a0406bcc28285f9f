package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/services"
	"github.com/cppla/scoula/utils"
)

// respondServiceError maps a service error onto the HTTP status and machine code of the envelope.
// subject names the entity in not-found messages; internalCode is used for unexpected failures.
func respondServiceError(ctx *gin.Context, err error, subject string, internalCode int) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, subject+" not found")
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40001, strings.TrimPrefix(err.Error(), services.ErrValidation.Error()+": "))
	case errors.Is(err, services.ErrDuplicateUsername):
		utils.Error(ctx, http.StatusBadRequest, 40002, "username already exists")
	case errors.Is(err, services.ErrPasswordMismatch):
		utils.Error(ctx, http.StatusUnauthorized, 40120, "password mismatch")
	case errors.Is(err, services.ErrBadCredentials):
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
	case errors.Is(err, services.ErrStorage):
		utils.Sugar.Errorw("file storage failed", "path", ctx.Request.URL.Path, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to store file")
	default:
		utils.Sugar.Errorw("request failed", "method", ctx.Request.Method, "path", ctx.Request.URL.Path, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, internalCode, "internal server error")
	}
}

// parseNo reads a positive numeric path parameter.
func parseNo(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
