package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/utils"
)

const (
	// ContextUsernameKey stores the authenticated username inside Gin context.
	ContextUsernameKey = "username"
	// ContextRolesKey stores the authenticated member's roles.
	ContextRolesKey = "roles"
	// ContextTokenKey stores the raw bearer token, used by logout.
	ContextTokenKey = "token"
	// ContextClaimsKey stores the parsed *utils.Claims.
	ContextClaimsKey = "claims"
)

// Authenticate is the bearer-token stage. A request without an Authorization header continues
// anonymously; a header that does not carry a valid, unrevoked token is rejected with 401.
func Authenticate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			EntryPoint(ctx, 40102, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			EntryPoint(ctx, 40103, "empty bearer token")
			return
		}

		if utils.IsTokenBlacklisted(tokenString) {
			EntryPoint(ctx, 40104, "token revoked")
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Sugar.Debugw("token rejected", "err", err, "path", ctx.Request.URL.Path)
			EntryPoint(ctx, 40105, "invalid token")
			return
		}

		ctx.Set(ContextUsernameKey, claims.Username())
		ctx.Set(ContextRolesKey, claims.Roles)
		ctx.Set(ContextTokenKey, tokenString)
		ctx.Set(ContextClaimsKey, claims)
		ctx.Next()
	}
}

// CurrentUsername returns the authenticated username, if any.
func CurrentUsername(ctx *gin.Context) (string, bool) {
	name := ctx.GetString(ContextUsernameKey)
	return name, name != ""
}

// CurrentRoles returns the authenticated member's roles.
func CurrentRoles(ctx *gin.Context) []string {
	return ctx.GetStringSlice(ContextRolesKey)
}

// CurrentClaims returns the parsed token claims of an authenticated request.
func CurrentClaims(ctx *gin.Context) (*utils.Claims, bool) {
	v, ok := ctx.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok
}
