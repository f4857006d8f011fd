package entities

// AlertDefinition is the stored source row of an alert. ModifiedAt is epoch
// milliseconds and drives incremental synchronization.
type AlertDefinition struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	OwnerID    uint   `gorm:"not null;index" json:"owner_id"`
	Definition string `gorm:"type:text;not null" json:"definition"`
	Enabled    bool   `gorm:"not null;default:true" json:"enabled"`
	CreatedAt  int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	ModifiedAt int64  `gorm:"autoUpdateTime:milli;not null;index" json:"modified_at"`
}

// TableName returns the table name for GORM.
func (AlertDefinition) TableName() string {
	return "alert_definitions"
}
