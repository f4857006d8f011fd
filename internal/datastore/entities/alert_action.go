package entities

import "time"

// AlertAction is a named notification target referenced by alert definitions.
type AlertAction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Type      string    `gorm:"size:50;not null" json:"type"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertAction) TableName() string {
	return "alert_actions"
}
