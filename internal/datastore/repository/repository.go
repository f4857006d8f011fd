// Package repository provides GORM-backed access to samples, the identity
// catalog, alert definitions, actions and alert history.
package repository

import (
	"context"
	"time"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

// Sentinel errors returned by the repositories.
var (
	ErrAlertDefinitionNotFound = errors.NewStd("alert definition not found")
	ErrActionNotFound          = errors.NewStd("alert action not found")
	ErrActionNameTaken         = errors.NewStd("alert action name already exists")
)

// SampleRepository stores aggregated samples.
type SampleRepository interface {
	// Lifecycle
	Init(ctx context.Context) error
	Shutdown() error

	Write(ctx context.Context, batch []metric.AggregatedSample) error
	ReadRange(ctx context.Context, id metric.Identity, start, end int64) ([]metric.Sample, error)
	DeleteBefore(ctx context.Context, ts int64) (int64, error)
}

// CatalogRepository is the metadata store of known identities.
type CatalogRepository interface {
	ListIdentities(ctx context.Context, filter CatalogFilter) ([]entities.MetricIdentity, error)
	Upsert(ctx context.Context, items []entities.MetricIdentity) error
}

// AlertDefinitionRepository is the source of truth for alert definitions.
type AlertDefinitionRepository interface {
	ModifiedSince(ctx context.Context, watermark int64) ([]entities.AlertDefinition, error)

	// CRUD
	Get(ctx context.Context, id uint) (*entities.AlertDefinition, error)
	Create(ctx context.Context, def *entities.AlertDefinition) error
	Update(ctx context.Context, def *entities.AlertDefinition) error
	SetEnabled(ctx context.Context, id uint, enabled bool) error
	Delete(ctx context.Context, id uint) error
}

// ActionRepository stores named notification targets.
type ActionRepository interface {
	GetByName(ctx context.Context, name string) (*entities.AlertAction, error)
	List(ctx context.Context, ownerID uint) ([]entities.AlertAction, error)
	Create(ctx context.Context, action *entities.AlertAction) error
	Update(ctx context.Context, action *entities.AlertAction) error
	Delete(ctx context.Context, id uint) error
}

// AlertHistoryRepository records fired alerts.
type AlertHistoryRepository interface {
	Save(ctx context.Context, history *entities.AlertHistory) error
	List(ctx context.Context, filter AlertHistoryFilter) ([]entities.AlertHistory, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CatalogFilter controls identity listing queries. Empty fields match all.
type CatalogFilter struct {
	Device string
	Group  string
	Limit  int
}

// AlertHistoryFilter controls history listing queries.
type AlertHistoryFilter struct {
	AlertID uint
	OwnerID uint
	Limit   int
	Offset  int
}
