package schema

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ginthi/docregistry/pkg/errs"
)

type fakeClients map[string]bool

func (f fakeClients) ClientExists(_ context.Context, id string) (bool, error) {
	return f[id], nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	return db
}

func setupRegistry(t *testing.T, opts ...Option) (*Registry, *Store, string) {
	t.Helper()
	store := NewStore(setupTestDB(t))
	require.NoError(t, store.AutoMigrate())
	clientID := uuid.New().String()
	return NewRegistry(store, fakeClients{clientID: true}, opts...), store, clientID
}

func poFields() []FieldDefinition {
	return []FieldDefinition{
		{Name: "po_number", Type: FieldString, Required: true},
		{Name: "amount", Type: FieldNumber, Required: true},
		{Name: "currency", Type: FieldString, Default: "USD", AllowedValues: []any{"USD", "EUR"}},
	}
}

func createPO(t *testing.T, r *Registry, clientID string, mutate ...func(*CreateRequest)) *SchemaDefinition {
	t.Helper()
	req := CreateRequest{ClientID: clientID, SchemaName: "purchase_order", Fields: poFields()}
	for _, m := range mutate {
		m(&req)
	}
	def, err := r.Create(context.Background(), req)
	require.NoError(t, err)
	return def
}

func activeVersions(t *testing.T, store *Store, clientID, name string) []int {
	t.Helper()
	defs, err := store.ListVersions(context.Background(), Key{ClientID: clientID, SchemaName: name})
	require.NoError(t, err)
	var active []int
	for _, d := range defs {
		if d.IsActive {
			active = append(active, d.Version)
		}
	}
	return active
}

func TestRegistry_CreateAssignsSequentialVersions(t *testing.T) {
	r, store, clientID := setupRegistry(t)

	v1 := createPO(t, r, clientID)
	v2 := createPO(t, r, clientID)
	v3 := createPO(t, r, clientID)

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, []int{3}, activeVersions(t, store, clientID, "purchase_order"))
}

func TestRegistry_CreateInactiveKeepsCurrentActive(t *testing.T) {
	r, store, clientID := setupRegistry(t)

	createPO(t, r, clientID)
	inactive := false
	v2 := createPO(t, r, clientID, func(req *CreateRequest) { req.IsActive = &inactive })

	assert.False(t, v2.IsActive)
	assert.Equal(t, []int{1}, activeVersions(t, store, clientID, "purchase_order"))
}

func TestRegistry_CreateExplicitVersion(t *testing.T) {
	r, _, clientID := setupRegistry(t)

	five := 5
	def := createPO(t, r, clientID, func(req *CreateRequest) { req.Version = &five })
	assert.Equal(t, 5, def.Version)

	next := createPO(t, r, clientID)
	assert.Equal(t, 6, next.Version)

	_, err := r.Create(context.Background(), CreateRequest{
		ClientID: clientID, SchemaName: "purchase_order", Fields: poFields(), Version: &five,
	})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeConflict))
}

func TestRegistry_VersionsAreScopedPerClientAndName(t *testing.T) {
	r, _, clientID := setupRegistry(t)
	other := uuid.New().String()
	r.clients = fakeClients{clientID: true, other: true}

	createPO(t, r, clientID)
	createPO(t, r, clientID)
	def := createPO(t, r, other)
	inv, err := r.Create(context.Background(), CreateRequest{
		ClientID: clientID, SchemaName: "invoice", Fields: poFields(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, def.Version)
	assert.Equal(t, 1, inv.Version)
}

func TestRegistry_CreateRejectsBadInput(t *testing.T) {
	r, _, clientID := setupRegistry(t)

	tests := []struct {
		name string
		req  CreateRequest
		code errs.Code
	}{
		{
			name: "malformed client id",
			req:  CreateRequest{ClientID: "not-a-uuid", SchemaName: "invoice", Fields: poFields()},
			code: errs.CodeBadRequest,
		},
		{
			name: "unknown client",
			req:  CreateRequest{ClientID: uuid.New().String(), SchemaName: "invoice", Fields: poFields()},
			code: errs.CodeNotFound,
		},
		{
			name: "no fields",
			req:  CreateRequest{ClientID: clientID, SchemaName: "invoice"},
			code: errs.CodeValidation,
		},
		{
			name: "bad field type",
			req: CreateRequest{ClientID: clientID, SchemaName: "invoice", Fields: []FieldDefinition{
				{Name: "total", Type: "decimal"},
			}},
			code: errs.CodeValidation,
		},
		{
			name: "reserved name",
			req:  CreateRequest{ClientID: clientID, SchemaName: "clients", Fields: poFields()},
			code: errs.CodeValidation,
		},
		{
			name: "name is not an identifier",
			req:  CreateRequest{ClientID: clientID, SchemaName: "purchase-order", Fields: poFields()},
			code: errs.CodeValidation,
		},
		{
			name: "name longer than an index identifier allows",
			req:  CreateRequest{ClientID: clientID, SchemaName: "p" + strings.Repeat("o", 48), Fields: poFields()},
			code: errs.CodeValidation,
		},
		{
			name: "description too long",
			req:  CreateRequest{ClientID: clientID, SchemaName: "invoice", Description: strings.Repeat("d", 501), Fields: poFields()},
			code: errs.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}

func TestRegistry_ActivateVersion(t *testing.T) {
	r, store, clientID := setupRegistry(t)

	createPO(t, r, clientID)
	v2 := createPO(t, r, clientID)
	createPO(t, r, clientID)

	actor := "alice"
	def, err := r.ActivateVersion(context.Background(), v2.ID, &actor)
	require.NoError(t, err)
	assert.True(t, def.IsActive)
	require.NotNil(t, def.UpdatedBy)
	assert.Equal(t, "alice", *def.UpdatedBy)
	assert.Equal(t, []int{2}, activeVersions(t, store, clientID, "purchase_order"))

	// Activating the active version again is allowed.
	_, err = r.ActivateVersion(context.Background(), v2.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, activeVersions(t, store, clientID, "purchase_order"))

	_, err = r.ActivateVersion(context.Background(), uuid.New().String(), nil)
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestRegistry_ConcurrentActivationLeavesOneActive(t *testing.T) {
	r, store, clientID := setupRegistry(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, createPO(t, r, clientID).ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := r.ActivateVersion(context.Background(), id, nil)
			assert.NoError(t, err)
		}(ids[i%len(ids)])
	}
	wg.Wait()

	assert.Len(t, activeVersions(t, store, clientID, "purchase_order"), 1)
}

func TestRegistry_Update(t *testing.T) {
	r, store, clientID := setupRegistry(t)

	v1 := createPO(t, r, clientID)
	createPO(t, r, clientID)

	desc := "orders placed with suppliers"
	active := true
	def, err := r.Update(context.Background(), v1.ID, UpdateRequest{
		Description: &desc,
		Fields:      []FieldDefinition{{Name: "po_number", Type: FieldString, Required: true}},
		IsActive:    &active,
	})
	require.NoError(t, err)
	assert.Equal(t, desc, def.Description)
	assert.Equal(t, []string{"po_number"}, def.Fields.Names())
	assert.Equal(t, []int{1}, activeVersions(t, store, clientID, "purchase_order"))

	stored, err := r.Get(context.Background(), v1.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Fields, 1)

	inactive := false
	_, err = r.Update(context.Background(), v1.ID, UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.Empty(t, activeVersions(t, store, clientID, "purchase_order"))
}

func TestRegistry_UpdateRejectsInvalidFields(t *testing.T) {
	r, _, clientID := setupRegistry(t)
	v1 := createPO(t, r, clientID)

	_, err := r.Update(context.Background(), v1.ID, UpdateRequest{
		Fields: []FieldDefinition{{Name: "a", Type: FieldString}, {Name: "a", Type: FieldNumber}},
	})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeValidation))

	long := strings.Repeat("d", 501)
	_, err = r.Update(context.Background(), v1.ID, UpdateRequest{Description: &long})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeValidation))

	_, err = r.Update(context.Background(), uuid.New().String(), UpdateRequest{})
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestRegistry_Lookups(t *testing.T) {
	r, _, clientID := setupRegistry(t)
	ctx := context.Background()

	createPO(t, r, clientID)
	createPO(t, r, clientID)

	versions, err := r.ListByName(ctx, clientID, "purchase_order")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)

	active, err := r.GetActive(ctx, clientID, "purchase_order")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)

	_, err = r.ListByName(ctx, clientID, "invoice")
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))

	_, err = r.GetActive(ctx, clientID, "invoice")
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))

	byClient, err := r.ListByClient(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, byClient)

	all, err := r.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = r.List(ctx, -1, 10)
	assert.True(t, errs.HasCode(err, errs.CodeBadRequest))
}

func TestRegistry_Delete(t *testing.T) {
	var changed []Key
	r, _, clientID := setupRegistry(t, WithChangeHook(func(k Key) { changed = append(changed, k) }))
	ctx := context.Background()

	v1 := createPO(t, r, clientID)
	require.NoError(t, r.Delete(ctx, v1.ID))

	_, err := r.Get(ctx, v1.ID)
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))
	assert.True(t, errs.HasCode(r.Delete(ctx, v1.ID), errs.CodeNotFound))

	key := Key{ClientID: clientID, SchemaName: "purchase_order"}
	assert.Equal(t, []Key{key, key}, changed)
}

func TestStore_PartialIndexRejectsSecondActive(t *testing.T) {
	_, store, clientID := setupRegistry(t)
	ctx := context.Background()

	first := &SchemaDefinition{ID: uuid.New().String(), ClientID: clientID, SchemaName: "grn", Version: 1, IsActive: true, Fields: poFields()}
	second := &SchemaDefinition{ID: uuid.New().String(), ClientID: clientID, SchemaName: "grn", Version: 2, IsActive: true, Fields: poFields()}

	require.NoError(t, store.Insert(ctx, first))
	assert.Error(t, store.Insert(ctx, second))
}
