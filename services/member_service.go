package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	"github.com/cppla/scoula/models"
	"github.com/cppla/scoula/utils"
)

// JoinInput is a registration request. Avatar is optional.
type JoinInput struct {
	Username string
	Password string
	Email    string
	Avatar   *multipart.FileHeader
}

func (in *JoinInput) validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validUsername(in.Username); err != nil {
		return err
	}
	return validPassword(in.Password)
}

// UpdateInput changes profile fields after the current password is verified.
type UpdateInput struct {
	Username string
	Password string
	Email    string
	Avatar   *multipart.FileHeader
}

// ChangePasswordInput replaces the stored hash once OldPassword verifies.
type ChangePasswordInput struct {
	Username    string
	OldPassword string
	NewPassword string
}

// MemberService handles registration, profile changes and credential checks.
type MemberService struct {
	db        *gorm.DB
	avatarDir string
}

// NewMemberService creates a MemberService storing avatars as <avatarDir>/<username>.png.
func NewMemberService(db *gorm.DB, avatarDir string) *MemberService {
	return &MemberService{db: db, avatarDir: avatarDir}
}

// CheckDuplicate reports whether a member with the username exists.
func (s *MemberService) CheckDuplicate(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Member{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return count > 0, nil
}

// Get loads a member with its roles.
func (s *MemberService) Get(ctx context.Context, username string) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).Preload("Auths").Where("username = ?", username).First(&member).Error; err != nil {
		return nil, notFound(err, "load member")
	}
	return &member, nil
}

// Join registers a member with the default role and optional avatar as one unit: if any step
// fails the rows are rolled back and a written avatar file is removed.
func (s *MemberService) Join(ctx context.Context, in JoinInput) (*models.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	exists, err := s.CheckDuplicate(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateUsername
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var avatarWritten string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member := models.Member{Username: in.Username, Password: hash, Email: in.Email}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if err := tx.Create(&models.Auth{Username: in.Username, Auth: models.RoleMember}).Error; err != nil {
			return fmt.Errorf("insert auth: %w", err)
		}
		if !hasUpload(in.Avatar) {
			return nil
		}
		dst, err := s.saveAvatar(in.Username, in.Avatar)
		if err != nil {
			return err
		}
		avatarWritten = dst
		return tx.Model(&models.Member{}).Where("username = ?", in.Username).Update("avatar", dst).Error
	})
	if err != nil {
		if avatarWritten != "" {
			_ = utils.RemoveFile(avatarWritten)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}

	utils.Sugar.Infow("member joined", "username", in.Username, "avatar", avatarWritten != "")
	return s.Get(ctx, in.Username)
}

// Update verifies the current password, then applies the email change and replaces the avatar
// when one is supplied. A mismatch leaves the member untouched.
func (s *MemberService) Update(ctx context.Context, in UpdateInput) (*models.Member, error) {
	member, err := s.Get(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(member.Password, in.Password) {
		return nil, ErrPasswordMismatch
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member.Email = strings.TrimSpace(in.Email)
		member.UpdateDate = time.Now()
		if err := tx.Model(member).Select("email", "update_date").Updates(member).Error; err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if !hasUpload(in.Avatar) {
			return nil
		}
		dst, err := s.saveAvatar(member.Username, in.Avatar)
		if err != nil {
			return err
		}
		return tx.Model(&models.Member{}).Where("username = ?", member.Username).Update("avatar", dst).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, in.Username)
}

// ChangePassword stores a new hash after verifying the old password.
func (s *MemberService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	member, err := s.Get(ctx, in.Username)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(member.Password, in.OldPassword) {
		return ErrPasswordMismatch
	}
	if err := validPassword(in.NewPassword); err != nil {
		return err
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.Member{}).Where("username = ?", in.Username).
		Updates(map[string]interface{}{"password": hash, "update_date": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Authenticate checks login credentials without revealing which of the two was wrong.
func (s *MemberService) Authenticate(ctx context.Context, username, password string) (*models.Member, error) {
	member, err := s.Get(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(member.Password, password) {
		return nil, ErrBadCredentials
	}
	return member, nil
}

// AvatarPath returns the stored avatar file of a member, or ErrNotFound when there is none.
func (s *MemberService) AvatarPath(ctx context.Context, username string) (string, error) {
	member, err := s.Get(ctx, username)
	if err != nil {
		return "", err
	}
	if member.Avatar == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(member.Avatar); err != nil {
		return "", ErrNotFound
	}
	return member.Avatar, nil
}

// hasUpload reports whether the form carried a non-empty file part.
func hasUpload(fh *multipart.FileHeader) bool {
	return fh != nil && fh.Size > 0
}

func (s *MemberService) saveAvatar(username string, fh *multipart.FileHeader) (string, error) {
	dst := filepath.Join(s.avatarDir, username+".png")
	if err := utils.SaveAs(dst, fh); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return dst, nil
}

// validUsername allows letters, digits, '-' and '_' so the name is safe as an avatar filename.
func validUsername(s string) error {
	if n := len([]rune(s)); n < 2 || n > 50 {
		return fmt.Errorf("%w: username must be 2-50 characters", ErrValidation)
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("%w: username may only contain letters, digits, '-' and '_'", ErrValidation)
		}
	}
	return nil
}

// bcrypt ignores input past 72 bytes
func validPassword(s string) error {
	if len(s) < 4 || len(s) > 72 {
		return fmt.Errorf("%w: password must be 4-72 bytes", ErrValidation)
	}
	return nil
}
