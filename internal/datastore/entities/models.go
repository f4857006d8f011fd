// Package entities defines the GORM models persisted by metrink.
package entities

// All returns every model for migration.
func All() []any {
	return []any{
		&Sample{},
		&MetricIdentity{},
		&AlertDefinition{},
		&AlertAction{},
		&AlertHistory{},
	}
}
