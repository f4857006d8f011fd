package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/datastore"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
)

// actionRepository implements ActionRepository.
type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new ActionRepository.
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

// GetByName returns the action with the given name.
// Returns ErrActionNotFound if no action has that name.
func (r *actionRepository) GetByName(ctx context.Context, name string) (*entities.AlertAction, error) {
	var action entities.AlertAction
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get alert action %q: %w", name, err)
	}
	return &action, nil
}

// List returns the actions of an owner, or every action when ownerID is 0.
func (r *actionRepository) List(ctx context.Context, ownerID uint) ([]entities.AlertAction, error) {
	var actions []entities.AlertAction
	query := r.db.WithContext(ctx)
	if ownerID > 0 {
		query = query.Where("owner_id = ?", ownerID)
	}
	if err := query.Order("name ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert actions: %w", err)
	}
	return actions, nil
}

// Create stores a new action.
func (r *actionRepository) Create(ctx context.Context, action *entities.AlertAction) error {
	if err := r.db.WithContext(ctx).Create(action).Error; err != nil {
		if datastore.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %q", ErrActionNameTaken, action.Name)
		}
		return fmt.Errorf("failed to create alert action: %w", err)
	}
	return nil
}

// Update saves every field of an existing action.
func (r *actionRepository) Update(ctx context.Context, action *entities.AlertAction) error {
	if action.ID == 0 {
		return fmt.Errorf("failed to update alert action: missing action ID")
	}
	if err := r.db.WithContext(ctx).Save(action).Error; err != nil {
		if datastore.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %q", ErrActionNameTaken, action.Name)
		}
		return fmt.Errorf("failed to update alert action %d: %w", action.ID, err)
	}
	return nil
}

// Delete removes an action by ID.
func (r *actionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AlertAction{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert action %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrActionNotFound
	}
	return nil
}
