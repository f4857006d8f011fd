package entities

// Sample is one aggregated minute of a metric series.
type Sample struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Device    string  `gorm:"size:255;not null;index:idx_samples_series,priority:1" json:"device"`
	Group     string  `gorm:"column:metric_group;size:255;not null;index:idx_samples_series,priority:2" json:"group"`
	Name      string  `gorm:"size:255;not null;index:idx_samples_series,priority:3" json:"name"`
	Timestamp int64   `gorm:"not null;index:idx_samples_series,priority:4;index:idx_samples_timestamp" json:"timestamp"`
	Value     float64 `gorm:"not null" json:"value"`
	Unit      string  `gorm:"size:32;default:''" json:"unit"`
	Count     int     `gorm:"not null;default:1" json:"count"`
}

// TableName returns the table name for GORM.
func (Sample) TableName() string {
	return "samples"
}

// MetricIdentity is a catalog entry for a known metric series.
type MetricIdentity struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Device    string `gorm:"size:255;not null;uniqueIndex:idx_identity,priority:1" json:"device"`
	Group     string `gorm:"column:metric_group;size:255;not null;uniqueIndex:idx_identity,priority:2" json:"group"`
	Name      string `gorm:"size:255;not null;uniqueIndex:idx_identity,priority:3" json:"name"`
	Unit      string `gorm:"size:32;default:''" json:"unit"`
	LastSeen  int64  `gorm:"not null;index" json:"last_seen"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
}

// TableName returns the table name for GORM.
func (MetricIdentity) TableName() string {
	return "metric_identities"
}
