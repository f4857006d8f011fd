package alerting

import "github.com/metrink/metrink-go/internal/metric"

// Definition is a compiled alert. It is immutable once built; an update
// replaces the whole value.
type Definition struct {
	AlertID    int64     `json:"alert_id"`
	OwnerID    int64     `json:"owner_id"`
	Text       string    `json:"definition"`
	Condition  Condition `json:"-"`
	ActionName string    `json:"action"`
	// Generation is stamped by the registry on every upsert.
	Generation uint64 `json:"-"`
}

// Matches reports whether the definition applies to id.
func (d *Definition) Matches(id metric.Identity) bool {
	return d.Condition != nil && d.Condition.Pattern().Matches(id)
}
