package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/scoula/utils"
)

// Attachment is a file stored on disk under a generated name and bound to a post.
type Attachment struct {
	No          uint      `gorm:"column:no;primaryKey" json:"no"`
	Bno         uint      `gorm:"index;not null" json:"bno"`
	Filename    string    `gorm:"size:256;not null" json:"filename"`
	Path        string    `gorm:"size:1024;not null" json:"-"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	Size        int64     `gorm:"not null;default:0" json:"size"`
	FileSize    string    `gorm:"-" json:"fileSize"`
	RegDate     time.Time `gorm:"not null" json:"regDate"`
}

func (Attachment) TableName() string {
	return "tbl_board_attachment"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.RegDate.IsZero() {
		a.RegDate = time.Now()
	}
	return nil
}

func (a *Attachment) AfterCreate(tx *gorm.DB) error {
	a.FileSize = utils.FormatSize(a.Size)
	return nil
}

func (a *Attachment) AfterFind(tx *gorm.DB) error {
	a.FileSize = utils.FormatSize(a.Size)
	return nil
}
