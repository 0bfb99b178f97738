package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Operator struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Password  string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Operator) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// OperatorInvite is an allow-list entry. Registration checks presence only;
// entries are never consumed.
type OperatorInvite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	InvitedBy *string   `gorm:"type:uuid" json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
