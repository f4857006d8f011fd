package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
)

// alertDefinitionRepository implements AlertDefinitionRepository.
type alertDefinitionRepository struct {
	db *gorm.DB
}

// NewAlertDefinitionRepository creates a new AlertDefinitionRepository.
func NewAlertDefinitionRepository(db *gorm.DB) AlertDefinitionRepository {
	return &alertDefinitionRepository{db: db}
}

// ModifiedSince returns definitions with modified_at > watermark, oldest change first.
func (r *alertDefinitionRepository) ModifiedSince(ctx context.Context, watermark int64) ([]entities.AlertDefinition, error) {
	var defs []entities.AlertDefinition
	err := r.db.WithContext(ctx).
		Where("modified_at > ?", watermark).
		Order("modified_at ASC, id ASC").
		Find(&defs).Error
	if err != nil {
		return nil, storageError(fmt.Errorf("failed to read definitions modified since %d: %w", watermark, err), "read")
	}
	return defs, nil
}

// Get returns a definition by ID.
// Returns ErrAlertDefinitionNotFound if the definition does not exist.
func (r *alertDefinitionRepository) Get(ctx context.Context, id uint) (*entities.AlertDefinition, error) {
	var def entities.AlertDefinition
	if err := r.db.WithContext(ctx).First(&def, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get alert definition %d: %w", id, err)
	}
	return &def, nil
}

// Create stores a new definition.
func (r *alertDefinitionRepository) Create(ctx context.Context, def *entities.AlertDefinition) error {
	if err := r.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("failed to create alert definition: %w", err)
	}
	return nil
}

// Update replaces a definition's text and enabled flag, bumping modified_at.
func (r *alertDefinitionRepository) Update(ctx context.Context, def *entities.AlertDefinition) error {
	if def.ID == 0 {
		return fmt.Errorf("failed to update alert definition: missing definition ID")
	}
	result := r.db.WithContext(ctx).Model(def).
		Select("owner_id", "definition", "enabled", "modified_at").
		Updates(def)
	if result.Error != nil {
		return fmt.Errorf("failed to update alert definition %d: %w", def.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertDefinitionNotFound
	}
	return nil
}

// SetEnabled enables or disables a definition. Disabling is how a definition
// is withdrawn from running evaluators.
func (r *alertDefinitionRepository) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&entities.AlertDefinition{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to toggle alert definition %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertDefinitionNotFound
	}
	return nil
}

// Delete removes a definition row. The sync poller never sees deleted rows,
// so callers also drop the definition from the live registry.
func (r *alertDefinitionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AlertDefinition{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert definition %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertDefinitionNotFound
	}
	return nil
}
