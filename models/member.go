package models

import (
	"time"

	"gorm.io/gorm"
)

// RoleMember is granted to every member on join.
const RoleMember = "ROLE_MEMBER"

// Member is a user account keyed by username. Passwords are stored as bcrypt hashes only.
type Member struct {
	Username   string    `gorm:"primaryKey;size:50" json:"username"`
	Password   string    `gorm:"size:128;not null" json:"-"`
	Email      string    `gorm:"size:100" json:"email"`
	Avatar     string    `gorm:"size:512" json:"-"`
	RegDate    time.Time `gorm:"not null" json:"regDate"`
	UpdateDate time.Time `gorm:"not null" json:"updateDate"`
	Auths      []Auth    `gorm:"foreignKey:Username;references:Username" json:"-"`
}

func (Member) TableName() string {
	return "tbl_member"
}

// Auth grants one role to a member.
type Auth struct {
	Username string `gorm:"primaryKey;size:50" json:"username"`
	Auth     string `gorm:"primaryKey;size:50" json:"auth"`
}

func (Auth) TableName() string {
	return "tbl_member_auth"
}

// Roles lists the role strings granted to the member.
func (m Member) Roles() []string {
	roles := make([]string, 0, len(m.Auths))
	for _, a := range m.Auths {
		roles = append(roles, a.Auth)
	}
	return roles
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.RegDate.IsZero() {
		m.RegDate = now
	}
	m.UpdateDate = now
	return nil
}

// BeforeUpdate ensures the UpdateDate timestamp is refreshed.
func (m *Member) BeforeUpdate(tx *gorm.DB) error {
	m.UpdateDate = time.Now()
	return nil
}
