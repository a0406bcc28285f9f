package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/scoula/models"
	"github.com/cppla/scoula/utils"
)

const (
	defaultPageAmount = 10
	maxPageAmount     = 100
)

// PageRequest selects one page of the board list. Zero values fall back to page 1 of 10.
type PageRequest struct {
	Page   int `form:"page" json:"page"`
	Amount int `form:"amount" json:"amount"`
}

func (r PageRequest) normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Amount < 1 || r.Amount > maxPageAmount {
		r.Amount = defaultPageAmount
	}
	return r
}

// Offset is the number of rows preceding the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Amount
}

// Page is one ordered slice of the board list.
type Page struct {
	List       []models.Post `json:"list"`
	TotalCount int64         `json:"totalCount"`
	TotalPages int           `json:"totalPages"`
	Page       int           `json:"page"`
	Amount     int           `json:"amount"`
}

// PostInput carries the mutable fields of a post.
type PostInput struct {
	Title   string
	Content string
	Writer  string
}

func (in *PostInput) validate() error {
	in.Title = utils.SanitizeText(in.Title)
	in.Writer = utils.SanitizeText(in.Writer)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// BoardService orchestrates posts and their attachments across the database and the upload directory.
type BoardService struct {
	db        *gorm.DB
	uploadDir string
}

// NewBoardService creates a BoardService storing attachment files under uploadDir.
func NewBoardService(db *gorm.DB, uploadDir string) *BoardService {
	return &BoardService{db: db, uploadDir: uploadDir}
}

// List returns one page of posts, newest first. An empty page is not an error.
func (s *BoardService) List(ctx context.Context, req PageRequest) (*Page, error) {
	req = req.normalize()

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	posts := []models.Post{}
	if err := s.db.WithContext(ctx).Order("no DESC").Offset(req.Offset()).Limit(req.Amount).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	return &Page{
		List:       posts,
		TotalCount: total,
		TotalPages: int((total + int64(req.Amount) - 1) / int64(req.Amount)),
		Page:       req.Page,
		Amount:     req.Amount,
	}, nil
}

// Get loads a post with its attachments.
func (s *BoardService) Get(ctx context.Context, no uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Attaches", func(db *gorm.DB) *gorm.DB { return db.Order("no ASC") }).
		First(&post, no).Error
	if err != nil {
		return nil, notFound(err, "load post")
	}
	if post.Attaches == nil {
		post.Attaches = []models.Attachment{}
	}
	return &post, nil
}

// Create inserts a post and stores every supplied file as an attachment. On failure nothing
// is committed and files written by this call are removed.
func (s *BoardService) Create(ctx context.Context, in PostInput, files []*multipart.FileHeader) (*models.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := models.Post{Title: in.Title, Content: in.Content, Writer: in.Writer}
	var written []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return s.attach(tx, post.No, files, &written)
	})
	if err != nil {
		s.discard(written)
		return nil, err
	}

	utils.Sugar.Infow("post created", "no", post.No, "writer", post.Writer, "attachments", len(written))
	return s.Get(ctx, post.No)
}

// Update overwrites title, content and writer, appends new files as attachments and
// moves the update timestamp forward.
func (s *BoardService) Update(ctx context.Context, no uint, in PostInput, files []*multipart.FileHeader) (*models.Post, error) {
	var written []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, no).Error; err != nil {
			return notFound(err, "load post")
		}
		if err := in.validate(); err != nil {
			return err
		}

		post.Title = in.Title
		post.Content = in.Content
		post.Writer = in.Writer
		post.Touch(time.Now())
		if err := tx.Model(&post).Select("title", "content", "writer", "update_date").Updates(post).Error; err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		return s.attach(tx, post.No, files, &written)
	})
	if err != nil {
		s.discard(written)
		return nil, err
	}
	return s.Get(ctx, no)
}

// Delete removes a post and its attachment rows and returns the pre-delete snapshot.
// Attachment files stay on disk; DeleteAttachment is the only path that removes files.
func (s *BoardService) Delete(ctx context.Context, no uint) (*models.Post, error) {
	var snapshot models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Attaches", func(db *gorm.DB) *gorm.DB { return db.Order("no ASC") }).
			First(&snapshot, no).Error
		if err != nil {
			return notFound(err, "load post")
		}
		if err := tx.Where("bno = ?", no).Delete(&models.Attachment{}).Error; err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if err := tx.Delete(&models.Post{}, no).Error; err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snapshot.Attaches == nil {
		snapshot.Attaches = []models.Attachment{}
	}
	return &snapshot, nil
}

// GetAttachment loads one attachment row.
func (s *BoardService) GetAttachment(ctx context.Context, no uint) (*models.Attachment, error) {
	var att models.Attachment
	if err := s.db.WithContext(ctx).First(&att, no).Error; err != nil {
		return nil, notFound(err, "load attachment")
	}
	return &att, nil
}

// DeleteAttachment removes the stored file and then the row. It reports whether the row existed.
func (s *BoardService) DeleteAttachment(ctx context.Context, no uint) (bool, error) {
	att, err := s.GetAttachment(ctx, no)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := utils.RemoveFile(att.Path); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	res := s.db.WithContext(ctx).Delete(&models.Attachment{}, no)
	if res.Error != nil {
		return false, fmt.Errorf("delete attachment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *BoardService) attach(tx *gorm.DB, bno uint, files []*multipart.FileHeader, written *[]string) error {
	for _, fh := range files {
		if !hasUpload(fh) {
			continue
		}
		path, err := utils.UploadFile(s.uploadDir, fh)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		*written = append(*written, path)

		att := models.Attachment{
			Bno:         bno,
			Filename:    fh.Filename,
			Path:        path,
			ContentType: utils.DetectContentType(path),
			Size:        fh.Size,
		}
		if err := tx.Create(&att).Error; err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return nil
}

// discard is the compensating step for files written by a rolled back transaction.
func (s *BoardService) discard(paths []string) {
	for _, p := range paths {
		if err := utils.RemoveFile(p); err != nil {
			utils.Sugar.Warnw("failed to remove orphaned upload", "path", p, "err", err)
		}
	}
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
