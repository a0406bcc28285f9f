package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/middleware"
	"github.com/cppla/scoula/models"
	"github.com/cppla/scoula/services"
	"github.com/cppla/scoula/utils"
)

// MemberController handles registration and profile endpoints.
type MemberController struct {
	members       *services.MemberService
	defaultAvatar string
}

// NewMemberController creates a MemberController. defaultAvatar is served for members without one.
func NewMemberController(members *services.MemberService, defaultAvatar string) *MemberController {
	return &MemberController{members: members, defaultAvatar: defaultAvatar}
}

// CheckUsername reports whether the username is already taken.
func (m *MemberController) CheckUsername(ctx *gin.Context) {
	exists, err := m.members.CheckDuplicate(ctx.Request.Context(), strings.TrimSpace(ctx.Param("username")))
	if err != nil {
		respondServiceError(ctx, err, "member", 50020)
		return
	}
	utils.Success(ctx, exists)
}

// Get returns a member profile.
func (m *MemberController) Get(ctx *gin.Context) {
	member, err := m.members.Get(ctx.Request.Context(), ctx.Param("username"))
	if err != nil {
		respondServiceError(ctx, err, "member", 50021)
		return
	}
	utils.Success(ctx, memberResponse(*member))
}

// Join registers a member from a multipart form with an optional "avatar" file.
func (m *MemberController) Join(ctx *gin.Context) {
	avatar, ok := formFile(ctx, "avatar")
	if !ok {
		return
	}
	member, err := m.members.Join(ctx.Request.Context(), services.JoinInput{
		Username: ctx.PostForm("username"),
		Password: ctx.PostForm("password"),
		Email:    ctx.PostForm("email"),
		Avatar:   avatar,
	})
	if err != nil {
		respondServiceError(ctx, err, "member", 50022)
		return
	}
	utils.Success(ctx, memberResponse(*member))
}

// Update changes the caller's own profile after checking the current password.
func (m *MemberController) Update(ctx *gin.Context) {
	username, ok := m.requireSelf(ctx)
	if !ok {
		return
	}
	avatar, ok := formFile(ctx, "avatar")
	if !ok {
		return
	}
	member, err := m.members.Update(ctx.Request.Context(), services.UpdateInput{
		Username: username,
		Password: ctx.PostForm("password"),
		Email:    ctx.PostForm("email"),
		Avatar:   avatar,
	})
	if err != nil {
		respondServiceError(ctx, err, "member", 50023)
		return
	}
	utils.Success(ctx, memberResponse(*member))
}

// ChangePassword replaces the caller's password.
func (m *MemberController) ChangePassword(ctx *gin.Context) {
	username, ok := m.requireSelf(ctx)
	if !ok {
		return
	}
	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}
	err := m.members.ChangePassword(ctx.Request.Context(), services.ChangePasswordInput{
		Username:    username,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondServiceError(ctx, err, "member", 50024)
		return
	}
	utils.Success(ctx, gin.H{"message": "password changed"})
}

// Avatar streams the member's avatar image, or the default avatar when none was uploaded.
func (m *MemberController) Avatar(ctx *gin.Context) {
	path, err := m.members.AvatarPath(ctx.Request.Context(), ctx.Param("username"))
	if errors.Is(err, services.ErrNotFound) {
		if _, statErr := os.Stat(m.defaultAvatar); statErr != nil {
			utils.Error(ctx, http.StatusNotFound, 40403, "avatar not found")
			return
		}
		path = m.defaultAvatar
	} else if err != nil {
		respondServiceError(ctx, err, "member", 50025)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.File(path)
}

// requireSelf allows a member to modify only their own account.
func (m *MemberController) requireSelf(ctx *gin.Context) (string, bool) {
	target := ctx.Param("username")
	current, ok := middleware.CurrentUsername(ctx)
	if !ok {
		middleware.EntryPoint(ctx, 40101, "authentication required")
		return "", false
	}
	if current != target {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only modify your own account")
		return "", false
	}
	return target, true
}

// formFile returns the named upload or nil when the form carries none.
func formFile(ctx *gin.Context, name string) (*multipart.FileHeader, bool) {
	fh, err := ctx.FormFile(name)
	switch {
	case err == nil:
		return fh, true
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, true
	default:
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid multipart form")
		return nil, false
	}
}

// memberResponse never includes the password hash or avatar path.
func memberResponse(member models.Member) gin.H {
	return gin.H{
		"username":   member.Username,
		"email":      member.Email,
		"roles":      member.Roles(),
		"hasAvatar":  member.Avatar != "",
		"regDate":    member.RegDate,
		"updateDate": member.UpdateDate,
	}
}
