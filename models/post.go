package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a board entry. Attachment rows are owned through Bno.
type Post struct {
	No         uint         `gorm:"column:no;primaryKey" json:"no"`
	Title      string       `gorm:"size:200;not null" json:"title"`
	Content    string       `gorm:"type:text;not null" json:"content"`
	Writer     string       `gorm:"size:50;index" json:"writer"`
	RegDate    time.Time    `gorm:"not null" json:"regDate"`
	UpdateDate time.Time    `gorm:"not null" json:"updateDate"`
	Attaches   []Attachment `gorm:"foreignKey:Bno;references:No" json:"attaches"`
}

func (Post) TableName() string {
	return "tbl_board"
}

// BeforeCreate stamps both dates so that UpdateDate never precedes RegDate.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.RegDate.IsZero() {
		p.RegDate = time.Now()
	}
	if p.UpdateDate.Before(p.RegDate) {
		p.UpdateDate = p.RegDate
	}
	return nil
}

// Touch moves UpdateDate forward, strictly past its previous value even on coarse clocks.
func (p *Post) Touch(now time.Time) {
	if !now.After(p.UpdateDate) {
		now = p.UpdateDate.Add(time.Millisecond)
	}
	p.UpdateDate = now
}
