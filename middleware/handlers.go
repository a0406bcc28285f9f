package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/utils"
)

// EntryPoint answers requests that lack a valid identity with 401 and stops the chain.
func EntryPoint(ctx *gin.Context, code int, message string) {
	ctx.Header("WWW-Authenticate", `Bearer realm="api"`)
	utils.Error(ctx, http.StatusUnauthorized, code, message)
	ctx.Abort()
}

// AccessDenied answers authenticated requests lacking the required role with 403 and stops the chain.
func AccessDenied(ctx *gin.Context) {
	utils.Error(ctx, http.StatusForbidden, 40301, "access denied")
	ctx.Abort()
}
