package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/middleware"
	"github.com/cppla/scoula/services"
	"github.com/cppla/scoula/utils"
)

const (
	boardListCachePrefix   = "cache:board:list:"
	boardDetailCachePrefix = "cache:board:detail:"
)

// BoardController exposes posts and attachments.
type BoardController struct {
	board *services.BoardService
}

// NewBoardController creates a new BoardController instance.
func NewBoardController(board *services.BoardService) *BoardController {
	return &BoardController{board: board}
}

// List returns one page of posts.
func (b *BoardController) List(ctx *gin.Context) {
	var req services.PageRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid paging parameters")
		return
	}

	cacheKey := fmt.Sprintf("%spage=%d:amount=%d", boardListCachePrefix, req.Page, req.Amount)
	if body, ok := utils.CacheGetBytes(ctx.Request.Context(), cacheKey); ok {
		utils.CachedSuccess(ctx, body)
		return
	}

	page, err := b.board.List(ctx.Request.Context(), req)
	if err != nil {
		respondServiceError(ctx, err, "post", 50010)
		return
	}
	utils.CacheSetEnvelope(ctx.Request.Context(), cacheKey, page, 10*time.Minute)
	utils.Success(ctx, page)
}

// Get returns one post with its attachments.
func (b *BoardController) Get(ctx *gin.Context) {
	no, ok := parseNo(ctx, "no")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid post number")
		return
	}

	cacheKey := boardDetailCachePrefix + strconv.FormatUint(uint64(no), 10)
	if body, ok := utils.CacheGetBytes(ctx.Request.Context(), cacheKey); ok {
		utils.CachedSuccess(ctx, body)
		return
	}

	post, err := b.board.Get(ctx.Request.Context(), no)
	if err != nil {
		respondServiceError(ctx, err, "post", 50011)
		return
	}
	utils.CacheSetEnvelope(ctx.Request.Context(), cacheKey, post, time.Hour)
	utils.Success(ctx, post)
}

// Create accepts a multipart form with title, content, writer and any number of "files".
func (b *BoardController) Create(ctx *gin.Context) {
	in, files, ok := bindPostForm(ctx)
	if !ok {
		return
	}

	post, err := b.board.Create(ctx.Request.Context(), in, files)
	if err != nil {
		respondServiceError(ctx, err, "post", 50012)
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), boardListCachePrefix)
	utils.Success(ctx, post)
}

// Update overwrites a post and appends newly uploaded files.
func (b *BoardController) Update(ctx *gin.Context) {
	no, ok := parseNo(ctx, "no")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid post number")
		return
	}
	in, files, ok := bindPostForm(ctx)
	if !ok {
		return
	}

	post, err := b.board.Update(ctx.Request.Context(), no, in, files)
	if err != nil {
		respondServiceError(ctx, err, "post", 50013)
		return
	}
	invalidatePost(ctx, no)
	utils.Success(ctx, post)
}

// Delete removes a post and returns what was deleted.
func (b *BoardController) Delete(ctx *gin.Context) {
	no, ok := parseNo(ctx, "no")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid post number")
		return
	}

	post, err := b.board.Delete(ctx.Request.Context(), no)
	if err != nil {
		respondServiceError(ctx, err, "post", 50014)
		return
	}
	invalidatePost(ctx, no)
	utils.Success(ctx, post)
}

// Download streams an attachment with its original filename.
func (b *BoardController) Download(ctx *gin.Context) {
	no, ok := parseNo(ctx, "no")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40012, "invalid attachment number")
		return
	}

	att, err := b.board.GetAttachment(ctx.Request.Context(), no)
	if err != nil {
		respondServiceError(ctx, err, "attachment", 50015)
		return
	}
	if _, err := os.Stat(att.Path); err != nil {
		utils.Sugar.Warnw("attachment file missing", "no", att.No, "path", att.Path, "err", err)
		utils.Error(ctx, http.StatusNotFound, 40402, "attachment file not found")
		return
	}
	if att.ContentType != "" {
		ctx.Header("Content-Type", att.ContentType)
	}
	ctx.FileAttachment(att.Path, att.Filename)
}

// DeleteAttachment removes one attachment file and row.
func (b *BoardController) DeleteAttachment(ctx *gin.Context) {
	no, ok := parseNo(ctx, "no")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40012, "invalid attachment number")
		return
	}

	deleted, err := b.board.DeleteAttachment(ctx.Request.Context(), no)
	if err != nil {
		respondServiceError(ctx, err, "attachment", 50016)
		return
	}
	if !deleted {
		utils.Error(ctx, http.StatusNotFound, 40401, "attachment not found")
		return
	}
	// the owning post is unknown here, so drop every cached detail
	utils.InvalidateByPrefix(ctx.Request.Context(), boardDetailCachePrefix)
	utils.Success(ctx, true)
}

// bindPostForm reads title/content/writer and the "files" parts. The writer defaults to the
// authenticated username.
func bindPostForm(ctx *gin.Context) (services.PostInput, []*multipart.FileHeader, bool) {
	in := services.PostInput{
		Title:   ctx.PostForm("title"),
		Content: ctx.PostForm("content"),
		Writer:  ctx.PostForm("writer"),
	}
	if in.Writer == "" {
		in.Writer, _ = middleware.CurrentUsername(ctx)
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return in, nil, true
		}
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid multipart form")
		return in, nil, false
	}
	return in, form.File["files"], true
}

func invalidatePost(ctx *gin.Context, no uint) {
	utils.CacheDelete(ctx.Request.Context(), boardDetailCachePrefix+strconv.FormatUint(uint64(no), 10))
	utils.InvalidateByPrefix(ctx.Request.Context(), boardListCachePrefix)
}
