package document

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ginthi/docregistry/pkg/dynamic"
	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/schema"
)

const scanBatchSize = 500

// CollectionStore persists documents, one table per collection.
type CollectionStore struct {
	db *gorm.DB
}

// NewCollectionStore creates a new CollectionStore.
func NewCollectionStore(db *gorm.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

// RegisterCollection creates the collection's table and client index when
// they do not exist yet. Registering an existing collection is harmless; a
// failure while the table exists wraps dynamic.ErrCollectionExists.
func (s *CollectionStore) RegisterCollection(ctx context.Context, collection string) error {
	if v := schema.CheckSchemaName(collection); v != "" {
		return fmt.Errorf("register collection: %s", v)
	}
	if err := s.migrateCollection(ctx, collection); err != nil {
		if s.db.WithContext(ctx).Migrator().HasTable(collection) {
			return fmt.Errorf("%w: %w", dynamic.ErrCollectionExists, err)
		}
		return err
	}
	return nil
}

func (s *CollectionStore) migrateCollection(ctx context.Context, collection string) error {
	db := s.db.WithContext(ctx)
	if err := db.Table(collection).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("register collection %s: %w", collection, err)
	}

	index := clientIndexName(collection)
	if db.Migrator().HasIndex(collection, index) {
		return nil
	}
	err := db.Exec("CREATE INDEX ? ON ? (?)",
		clause.Column{Name: index}, clause.Table{Name: collection}, clause.Column{Name: "client_id"}).Error
	if err != nil {
		return fmt.Errorf("index collection %s: %w", collection, err)
	}
	return nil
}

// clientIndexName fits within the 63 byte identifier limit for every
// collection name schema.CheckSchemaName accepts.
func clientIndexName(collection string) string {
	return "idx_" + collection + "_client_id"
}

// Insert stores a new record.
func (s *CollectionStore) Insert(ctx context.Context, collection string, rec *Record) error {
	if err := s.db.WithContext(ctx).Table(collection).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("insert document: %w", errs.ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns the record with the given ID regardless of owner, or
// errs.ErrNotFound.
func (s *CollectionStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &rec, nil
}

// List returns a page of clientID's records in insertion order. When match
// is non-nil only matching records count towards skip and limit.
func (s *CollectionStore) List(ctx context.Context, collection, clientID string, skip, limit int, match func(*Record) bool) ([]Record, error) {
	if match == nil {
		var recs []Record
		if err := s.clientRows(ctx, collection, clientID).Offset(skip).Limit(limit).Find(&recs).Error; err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		return recs, nil
	}

	out := make([]Record, 0)
	err := s.Scan(ctx, collection, clientID, func(rec *Record) bool {
		if !match(rec) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, *rec)
		return len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// Scan calls fn for each of clientID's records in insertion order, reading
// scanBatchSize rows at a time. Scanning stops when fn returns false.
func (s *CollectionStore) Scan(ctx context.Context, collection, clientID string, fn func(*Record) bool) error {
	q := s.clientRows(ctx, collection, clientID)
	for offset := 0; ; offset += scanBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		var batch []Record
		if err := q.Offset(offset).Limit(scanBatchSize).Find(&batch).Error; err != nil {
			return fmt.Errorf("scan %s: %w", collection, err)
		}
		for i := range batch {
			if !fn(&batch[i]) {
				return nil
			}
		}
		if len(batch) < scanBatchSize {
			return nil
		}
	}
}

func (s *CollectionStore) clientRows(ctx context.Context, collection, clientID string) *gorm.DB {
	return s.db.WithContext(ctx).Table(collection).
		Where("client_id = ?", clientID).
		Order("created_at ASC").Order("id ASC").
		Session(&gorm.Session{})
}

// Save writes every column of rec.
func (s *CollectionStore) Save(ctx context.Context, collection string, rec *Record) error {
	if err := s.db.WithContext(ctx).Table(collection).Save(rec).Error; err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// Delete removes a record. Returns errs.ErrNotFound when absent.
func (s *CollectionStore) Delete(ctx context.Context, collection, id string) error {
	result := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).Delete(&Record{})
	if result.Error != nil {
		return fmt.Errorf("delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
