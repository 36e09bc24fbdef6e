package tenancy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ginthi/docregistry/pkg/errs"
)

func setupDirectory(t *testing.T) *Directory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	d := NewDirectory(db)
	require.NoError(t, d.AutoMigrate())
	return d
}

func TestDirectory_ClientsAndVendors(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	c := &Client{Name: "Acme"}
	require.NoError(t, d.UpsertClient(ctx, c))
	require.NotEmpty(t, c.ID)

	ok, err := d.ClientExists(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.ClientExists(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.False(t, ok)

	v := &Vendor{Name: "Paper Co", ClientID: &c.ID}
	require.NoError(t, d.UpsertVendor(ctx, v))
	ok, err = d.VendorExists(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	c.Name = "Acme Corp"
	require.NoError(t, d.UpsertClient(ctx, c))
	got, err := d.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)

	all, err := d.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = d.GetClient(ctx, uuid.New().String())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	err = d.UpsertClient(ctx, &Client{ID: "not-a-uuid", Name: "bad"})
	assert.True(t, errs.HasCode(err, errs.CodeBadRequest))
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	_, ok := TenantFromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, "", ClientIDFromContext(ctx))

	ctx = WithTenant(ctx, TenantContext{ClientID: "abc"})
	assert.Equal(t, "abc", ClientIDFromContext(ctx))
}

func TestResolvers(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name    string
		header  string
		path    string
		want    string
		wantErr bool
		noTen   bool
	}{
		{name: "path wins", path: id, header: uuid.New().String(), want: id},
		{name: "header fallback", header: id, want: id},
		{name: "none", noTen: true, wantErr: true},
		{name: "malformed path", path: "xyz", wantErr: true},
		{name: "malformed header", header: "xyz", wantErr: true},
	}

	resolver := ChainResolver{PathResolver{Param: "clientID"}, HeaderResolver{}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(ClientHeader, tt.header)
			}
			rctx := chi.NewRouteContext()
			if tt.path != "" {
				rctx.URLParams.Add("clientID", tt.path)
			}
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			tc, err := resolver.Resolve(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.noTen, err == ErrNoTenant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tc.ClientID)
		})
	}
}

func TestMiddleware(t *testing.T) {
	id := uuid.New().String()
	var seen string
	handler := func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	newRouter := func(required bool) http.Handler {
		r := chi.NewRouter()
		r.Route("/documents/{clientID}", func(r chi.Router) {
			r.Use(Middleware(PathResolver{Param: "clientID"}, required))
			r.Get("/", handler)
		})
		r.With(Middleware(HeaderResolver{}, required)).Get("/open", handler)
		return r
	}

	t.Run("path tenant stored", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+id+"/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, seen)
	})

	t.Run("malformed rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/nope/", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "invalid client_id format")
	})

	t.Run("optional tenant passes through", func(t *testing.T) {
		seen = "unset"
		rec := httptest.NewRecorder()
		newRouter(false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "", seen)
	})

	t.Run("required tenant missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
