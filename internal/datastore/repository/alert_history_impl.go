package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/datastore/entities"
)

// alertHistoryRepository implements AlertHistoryRepository.
type alertHistoryRepository struct {
	db *gorm.DB
}

// NewAlertHistoryRepository creates a new AlertHistoryRepository.
func NewAlertHistoryRepository(db *gorm.DB) AlertHistoryRepository {
	return &alertHistoryRepository{db: db}
}

// Save saves an alert history entry.
func (r *alertHistoryRepository) Save(ctx context.Context, history *entities.AlertHistory) error {
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("failed to save alert history: %w", err)
	}
	return nil
}

// List returns history entries matching the filter, newest first, with the
// total count before pagination.
func (r *alertHistoryRepository) List(ctx context.Context, filter AlertHistoryFilter) ([]entities.AlertHistory, int64, error) {
	var items []entities.AlertHistory
	var total int64

	scoped := func(q *gorm.DB) *gorm.DB {
		if filter.AlertID > 0 {
			q = q.Where("alert_id = ?", filter.AlertID)
		}
		if filter.OwnerID > 0 {
			q = q.Where("owner_id = ?", filter.OwnerID)
		}
		return q
	}

	if err := scoped(r.db.WithContext(ctx).Model(&entities.AlertHistory{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert history: %w", err)
	}

	query := scoped(r.db.WithContext(ctx)).Order("fired_at DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert history: %w", err)
	}
	return items, total, nil
}

// DeleteBefore deletes alert history entries older than the given time.
func (r *alertHistoryRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("fired_at < ?", before).Delete(&entities.AlertHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert history before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
