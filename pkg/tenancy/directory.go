package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ginthi/docregistry/pkg/errs"
)

// Directory looks up clients and vendors. It is the only component that reads
// the clients and vendors tables.
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a new Directory.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// AutoMigrate creates or updates the clients and vendors tables.
func (d *Directory) AutoMigrate() error {
	if err := d.db.AutoMigrate(&Client{}, &Vendor{}); err != nil {
		return fmt.Errorf("migrate tenancy tables: %w", err)
	}
	return nil
}

// ClientExists reports whether a client with the given ID exists.
func (d *Directory) ClientExists(ctx context.Context, clientID string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&Client{}).Where("id = ?", clientID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check client: %w", err)
	}
	return count > 0, nil
}

// VendorExists reports whether a vendor with the given ID exists.
func (d *Directory) VendorExists(ctx context.Context, vendorID string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&Vendor{}).Where("id = ?", vendorID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check vendor: %w", err)
	}
	return count > 0, nil
}

// GetClient returns the client with the given ID or errs.ErrNotFound.
func (d *Directory) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	if err := d.db.WithContext(ctx).Where("id = ?", clientID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// ListClients returns all clients ordered by name.
func (d *Directory) ListClients(ctx context.Context) ([]Client, error) {
	var out []Client
	if err := d.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return out, nil
}

// UpsertClient inserts c, or updates its name when the ID exists. An empty ID
// is assigned a new UUID.
func (d *Directory) UpsertClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	} else if err := ValidateClientID(c.ID); err != nil {
		return errs.New(errs.CodeBadRequest, err.Error())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// UpsertVendor inserts v, or updates its name and client when the ID exists.
// An empty ID is assigned a new UUID.
func (d *Directory) UpsertVendor(ctx context.Context, v *Vendor) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	} else if err := ValidateVendorID(v.ID); err != nil {
		return errs.New(errs.CodeBadRequest, err.Error())
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "client_id"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("upsert vendor: %w", err)
	}
	return nil
}
