package tenancy

import "time"

// Client is a tenant. Schemas and documents are scoped to one client.
type Client struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id" yaml:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name" yaml:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at" yaml:"created_at,omitempty"`
}

// TableName returns the GORM table name.
func (Client) TableName() string { return "clients" }

// Vendor is a counterparty documents may be associated with.
type Vendor struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id" yaml:"id"`
	ClientID  *string   `gorm:"column:client_id;type:varchar(36);index:idx_vendors_client" json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name" yaml:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at" yaml:"created_at,omitempty"`
}

// TableName returns the GORM table name.
func (Vendor) TableName() string { return "vendors" }
