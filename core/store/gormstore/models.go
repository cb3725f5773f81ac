package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PhoneNumber string    `gorm:"uniqueIndex;not null"`
	FullName    *string
	Email       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Session struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null"`
	// CallSID is the telephony provider's call identifier.
	CallSID      string       `gorm:"column:twilio_call_sid;uniqueIndex;not null"`
	Conversation []TurnRecord `gorm:"type:jsonb;serializer:json"`
	Summary      *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Session) TableName() string { return "sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TurnRecord is the persisted shape of a conversation turn
type TurnRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
