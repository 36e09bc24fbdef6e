//go:build integration

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ginthi/docregistry/pkg/db"
)

// TestPostgresEndToEnd runs the schema and document flow against a real
// PostgreSQL migrated with the embedded SQL migrations.
func TestPostgresEndToEnd(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("docregistry"),
		tcpostgres.WithUsername("docregistry"),
		tcpostgres.WithPassword("docregistry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := db.DefaultConfig()
	cfg.DSN = dsn
	gdb, err := db.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, gdb, cfg, nil, nil, nil))
	// A second run finds nothing to apply.
	require.NoError(t, db.Migrate(ctx, gdb, cfg, nil, nil, nil))

	e := newTestEnvOn(t, gdb)
	def := e.createSchema(t, purchaseOrderBody(e.clientA))
	assert.Equal(t, 1, def.Version)

	doc := e.createDocument(t, e.clientA, map[string]any{"po_number": "PO-9", "amount": 42.5})
	assert.Equal(t, "open", doc["status"])

	rec, env := e.do(t, http.MethodGet, "/api/v1/documents/"+e.clientA+"/purchase_order?filter=amount+%3E+40", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	docs := decodeData[[]map[string]any](t, env)
	require.Len(t, docs, 1)
	assert.Equal(t, "PO-9", docs[0]["po_number"])

	// Duplicate versions hit the unique index and surface as conflicts.
	body := purchaseOrderBody(e.clientA)
	body["version"] = 1
	rec, _ = e.do(t, http.MethodPost, "/api/v1/client-schemas", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/client-schemas/"+def.ID+"/revalidate", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
