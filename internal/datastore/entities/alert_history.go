package entities

import "time"

// AlertHistory records each time an alert episode fires.
type AlertHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AlertID    uint      `gorm:"not null;index:idx_alert_history_alert_fired,priority:1" json:"alert_id"`
	OwnerID    uint      `gorm:"not null;index" json:"owner_id"`
	FiredAt    time.Time `gorm:"not null;index:idx_alert_history_alert_fired,priority:2" json:"fired_at"`
	Device     string    `gorm:"size:255;not null" json:"device"`
	Group      string    `gorm:"column:metric_group;size:255;not null" json:"group"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Value      float64   `json:"value"`
	SampleTime int64     `json:"sample_time"`
	ActionName string    `gorm:"size:100;default:''" json:"action_name"`
	Definition string    `gorm:"type:text" json:"definition"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertHistory) TableName() string {
	return "alert_history"
}
