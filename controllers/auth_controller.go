package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/middleware"
	"github.com/cppla/scoula/services"
	"github.com/cppla/scoula/utils"
)

// AuthController issues and revokes bearer tokens.
type AuthController struct {
	members  *services.MemberService
	tokenTTL time.Duration
}

// NewAuthController creates an AuthController issuing tokens valid for tokenTTL.
func NewAuthController(members *services.MemberService, tokenTTL time.Duration) *AuthController {
	return &AuthController{members: members, tokenTTL: tokenTTL}
}

// Login verifies credentials and issues a JWT. Unknown usernames and wrong passwords get the same answer.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	member, err := a.members.Authenticate(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, services.ErrBadCredentials) {
			respondServiceError(ctx, err, "member", 50004)
			return
		}
		utils.Sugar.Infow("login failed", "ip", ctx.ClientIP())
		middleware.EntryPoint(ctx, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(member.Username, member.Roles(), a.tokenTTL)
	if err != nil {
		utils.Sugar.Errorw("token generation failed", "username", member.Username, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user": gin.H{
			"username": member.Username,
			"email":    member.Email,
			"roles":    member.Roles(),
		},
	})
}

// Logout revokes the presented token until it would have expired anyway.
func (a *AuthController) Logout(ctx *gin.Context) {
	claims, ok := middleware.CurrentClaims(ctx)
	if !ok {
		middleware.EntryPoint(ctx, 40101, "authentication required")
		return
	}

	expiresAt := time.Now().Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(ctx.GetString(middleware.ContextTokenKey), expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}
