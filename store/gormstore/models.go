package gormstore

import "time"

type userModel struct {
	ID            string  `gorm:"primaryKey;size:36"`
	Email         string  `gorm:"uniqueIndex;not null;size:254"`
	PasswordHash  *string `gorm:"size:255"`
	EmailVerified bool    `gorm:"not null;default:false"`
	LoginAttempts int     `gorm:"not null;default:0"`
	LockedUntil   *time.Time
	GoogleID      *string `gorm:"uniqueIndex;size:255"`
	Name          string  `gorm:"size:255"`
	PictureURL    string  `gorm:"size:1024"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userModel) TableName() string { return "users" }

type refreshTokenModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;not null;size:36"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `gorm:"not null"`
	Revoked   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time

	User *userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (refreshTokenModel) TableName() string { return "refresh_tokens" }

// oneTimeTokenModel is the row shape shared by password resets and email
// verifications. It is written through Table, so it carries no association.
type oneTimeTokenModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;not null;size:36"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"index"`
}

type passwordResetModel struct {
	Row  oneTimeTokenModel `gorm:"embedded"`
	User *userModel        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (passwordResetModel) TableName() string { return "password_resets" }

type emailVerificationModel struct {
	Row  oneTimeTokenModel `gorm:"embedded"`
	User *userModel        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (emailVerificationModel) TableName() string { return "email_verifications" }
