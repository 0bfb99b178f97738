package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
)

// Fiche is one child/guardian engagement. Nom, Prenom and Email are set by
// the operator at creation and never change; Data carries the form payload
// and is NULL once signed.
type Fiche struct {
	ID        string           `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string           `gorm:"size:6;uniqueIndex" json:"code"`
	Nom       string           `json:"nom"`
	Prenom    string           `json:"prenom"`
	Email     string           `json:"email"`
	Status    lifecycle.Status `gorm:"size:16;index" json:"status"`
	Data      datatypes.JSON   `gorm:"type:jsonb" json:"data"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (f *Fiche) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Payload decodes Data. It returns nil when no payload is stored.
func (f *Fiche) Payload() (*lifecycle.Payload, error) {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil, nil
	}
	var p lifecycle.Payload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodePayload(p lifecycle.Payload) (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Clone copies the fiche including its payload bytes.
func (f Fiche) Clone() Fiche {
	if f.Data != nil {
		f.Data = append(datatypes.JSON(nil), f.Data...)
	}
	return f
}
