package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clinic is the tenant that owns subscriptions. Rows are provisioned by the
// clinic management service; billing only reads them.
type Clinic struct {
	ID                    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                  string    `gorm:"column:name;not null"`
	RegistrationCompleted bool      `gorm:"column:registration_completed;not null;default:false"`
	IsActive              bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Clinic) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
