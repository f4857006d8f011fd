package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/metrink/metrink-go/internal/datastore"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

const writeBatchSize = 500

// sampleRepository implements SampleRepository.
type sampleRepository struct {
	db      *gorm.DB
	catalog CatalogRepository
}

// NewSampleRepository creates a new SampleRepository. Writes also refresh
// the identity catalog.
func NewSampleRepository(db *gorm.DB) SampleRepository {
	return &sampleRepository{db: db, catalog: NewCatalogRepository(db)}
}

// Init applies the schema.
func (r *sampleRepository) Init(ctx context.Context) error {
	if err := datastore.Migrate(r.db.WithContext(ctx)); err != nil {
		return storageError(err, "init")
	}
	return nil
}

// Shutdown closes the connection pool.
func (r *sampleRepository) Shutdown() error {
	if err := datastore.Close(r.db); err != nil {
		return storageError(err, "shutdown")
	}
	return nil
}

// Write inserts an aggregated batch and updates the catalog in one transaction.
func (r *sampleRepository) Write(ctx context.Context, batch []metric.AggregatedSample) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]entities.Sample, 0, len(batch))
	seen := make(map[metric.Identity]int, len(batch))
	catalog := make([]entities.MetricIdentity, 0, len(batch))
	for i := range batch {
		s := &batch[i]
		rows = append(rows, entities.Sample{
			Device:    s.Identity.Device,
			Group:     s.Identity.Group,
			Name:      s.Identity.Name,
			Timestamp: s.Timestamp,
			Value:     s.Value,
			Unit:      s.Unit,
			Count:     s.Count,
		})
		if idx, ok := seen[s.Identity]; ok {
			if s.Timestamp > catalog[idx].LastSeen {
				catalog[idx].LastSeen = s.Timestamp
			}
			continue
		}
		seen[s.Identity] = len(catalog)
		catalog = append(catalog, entities.MetricIdentity{
			Device:   s.Identity.Device,
			Group:    s.Identity.Group,
			Name:     s.Identity.Name,
			Unit:     s.Unit,
			LastSeen: s.Timestamp,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, writeBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert samples: %w", err)
		}
		return upsertCatalog(tx, catalog)
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryStorage).
			Context("operation", "write").
			Context("batch_size", len(batch)).
			Build()
	}
	return nil
}

// ReadRange returns samples of id with start <= timestamp < end, oldest first.
func (r *sampleRepository) ReadRange(ctx context.Context, id metric.Identity, start, end int64) ([]metric.Sample, error) {
	var rows []entities.Sample
	err := r.db.WithContext(ctx).
		Where("device = ? AND metric_group = ? AND name = ?", id.Device, id.Group, id.Name).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(fmt.Errorf("failed to read range for %s: %w", id, err), "read")
	}

	out := make([]metric.Sample, len(rows))
	for i := range rows {
		out[i] = metric.Sample{
			Identity:  metric.Identity{Device: rows[i].Device, Group: rows[i].Group, Name: rows[i].Name},
			Timestamp: rows[i].Timestamp,
			Value:     rows[i].Value,
			Unit:      rows[i].Unit,
		}
	}
	return out, nil
}

// DeleteBefore removes samples older than ts and returns how many were deleted.
func (r *sampleRepository) DeleteBefore(ctx context.Context, ts int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", ts).Delete(&entities.Sample{})
	if result.Error != nil {
		return 0, storageError(fmt.Errorf("failed to delete samples before %d: %w", ts, result.Error), "delete")
	}
	return result.RowsAffected, nil
}

// lastSeenUpdate keeps last_seen monotonic when late samples arrive.
func lastSeenUpdate(tx *gorm.DB) clause.Assignment {
	expr := gorm.Expr("MAX(last_seen, excluded.last_seen)")
	if tx.Dialector.Name() == "mysql" {
		expr = gorm.Expr("GREATEST(last_seen, VALUES(last_seen))")
	}
	return clause.Assignment{Column: clause.Column{Name: "last_seen"}, Value: expr}
}

func upsertCatalog(tx *gorm.DB, items []entities.MetricIdentity) error {
	if len(items) == 0 {
		return nil
	}
	updates := append(clause.AssignmentColumns([]string{"unit"}), lastSeenUpdate(tx))
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device"}, {Name: "metric_group"}, {Name: "name"}},
		DoUpdates: updates,
	}).Create(&items).Error
	if err != nil {
		return fmt.Errorf("failed to upsert identity catalog: %w", err)
	}
	return nil
}

func storageError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryStorage).
		Context("operation", op).
		Build()
}
