package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/errs"
)

// partialActiveIndex keeps at most one active version per (client_id,
// schema_name) on dialects that support partial indexes.
const partialActiveIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_schema_one_active ` +
	`ON schema_definitions (client_id, schema_name) WHERE is_active`

// Store provides persistence for schema definitions.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema_definitions table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&SchemaDefinition{}); err != nil {
		return fmt.Errorf("migrate schema definitions: %w", err)
	}
	switch s.db.Dialector.Name() {
	case "postgres", "sqlite":
		if err := s.db.Exec(partialActiveIndex).Error; err != nil {
			return fmt.Errorf("create active schema index: %w", err)
		}
	}
	return nil
}

// Transaction runs fn with a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Insert creates a new schema definition row.
func (s *Store) Insert(ctx context.Context, def *SchemaDefinition) error {
	if err := s.db.WithContext(ctx).Create(def).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("insert schema definition: %w", errs.ErrDuplicate)
		}
		return fmt.Errorf("insert schema definition: %w", err)
	}
	return nil
}

// Save writes every column of def.
func (s *Store) Save(ctx context.Context, def *SchemaDefinition) error {
	if err := s.db.WithContext(ctx).Save(def).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("save schema definition: %w", errs.ErrDuplicate)
		}
		return fmt.Errorf("save schema definition: %w", err)
	}
	return nil
}

// Get returns the schema definition with the given ID or errs.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*SchemaDefinition, error) {
	var def SchemaDefinition
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get schema definition: %w", err)
	}
	return &def, nil
}

// List returns a page of all schema definitions in creation order.
func (s *Store) List(ctx context.Context, skip, limit int) ([]SchemaDefinition, error) {
	var defs []SchemaDefinition
	q := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Offset(skip)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("list schema definitions: %w", err)
	}
	return defs, nil
}

// ListByClient returns every version of every schema owned by clientID.
func (s *Store) ListByClient(ctx context.Context, clientID string) ([]SchemaDefinition, error) {
	var defs []SchemaDefinition
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("schema_name ASC").Order("version DESC").
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("list schema definitions by client: %w", err)
	}
	return defs, nil
}

// ListVersions returns all versions of one schema, newest first.
func (s *Store) ListVersions(ctx context.Context, key Key) ([]SchemaDefinition, error) {
	var defs []SchemaDefinition
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND schema_name = ?", key.ClientID, key.SchemaName).
		Order("version DESC").
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	return defs, nil
}

// GetActive returns the active version of a schema or errs.ErrNotFound.
func (s *Store) GetActive(ctx context.Context, key Key) (*SchemaDefinition, error) {
	var def SchemaDefinition
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND schema_name = ? AND is_active = ?", key.ClientID, key.SchemaName, true).
		Order("version DESC").
		First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get active schema: %w", err)
	}
	return &def, nil
}

// MaxVersion returns the highest version stored for key, or 0 when none.
func (s *Store) MaxVersion(ctx context.Context, key Key) (int, error) {
	var latest int64
	err := s.db.WithContext(ctx).Model(&SchemaDefinition{}).
		Where("client_id = ? AND schema_name = ?", key.ClientID, key.SchemaName).
		Select("COALESCE(MAX(version), 0)").
		Row().Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("max schema version: %w", err)
	}
	return int(latest), nil
}

// VersionExists reports whether key already has the given version.
func (s *Store) VersionExists(ctx context.Context, key Key, version int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&SchemaDefinition{}).
		Where("client_id = ? AND schema_name = ? AND version = ?", key.ClientID, key.SchemaName, version).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check schema version: %w", err)
	}
	return count > 0, nil
}

// DeactivateOthers clears is_active on every version of key except exceptID.
// An empty exceptID deactivates all versions.
func (s *Store) DeactivateOthers(ctx context.Context, key Key, exceptID string, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&SchemaDefinition{}).
		Where("client_id = ? AND schema_name = ? AND is_active = ?", key.ClientID, key.SchemaName, true)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	result := q.Updates(map[string]any{"is_active": false, "updated_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate schema versions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SetActive sets is_active on a single version.
func (s *Store) SetActive(ctx context.Context, id string, active bool, now time.Time, updatedBy *string) error {
	updates := map[string]any{"is_active": active, "updated_at": now}
	if updatedBy != nil {
		updates["updated_by"] = *updatedBy
	}
	result := s.db.WithContext(ctx).Model(&SchemaDefinition{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("set schema active: %w", errs.ErrDuplicate)
		}
		return fmt.Errorf("set schema active: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a schema definition. Returns errs.ErrNotFound when absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&SchemaDefinition{})
	if result.Error != nil {
		return fmt.Errorf("delete schema definition: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
