package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/datastore/entities"
)

// catalogRepository implements CatalogRepository.
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// ListIdentities returns catalog entries ordered by device, group and name.
func (r *catalogRepository) ListIdentities(ctx context.Context, filter CatalogFilter) ([]entities.MetricIdentity, error) {
	var items []entities.MetricIdentity
	query := r.db.WithContext(ctx)
	if filter.Device != "" {
		query = query.Where("device = ?", filter.Device)
	}
	if filter.Group != "" {
		query = query.Where("metric_group = ?", filter.Group)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Order("device ASC, metric_group ASC, name ASC").Find(&items).Error; err != nil {
		return nil, storageError(fmt.Errorf("failed to list identities: %w", err), "list")
	}
	return items, nil
}

// Upsert inserts new identities and refreshes unit and last-seen on existing ones.
func (r *catalogRepository) Upsert(ctx context.Context, items []entities.MetricIdentity) error {
	if err := upsertCatalog(r.db.WithContext(ctx), items); err != nil {
		return storageError(err, "upsert")
	}
	return nil
}
