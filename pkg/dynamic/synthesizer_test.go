package dynamic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/schema"
)

type countingRegistrar struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (r *countingRegistrar) RegisterCollection(_ context.Context, _ string) error {
	r.calls.Add(1)
	time.Sleep(r.delay)
	return r.err
}

var poFields = []schema.FieldDefinition{
	{Name: "po_number", Type: schema.FieldString, Required: true},
	{Name: "currency", Type: schema.FieldString, Required: true, Default: "USD"},
	{Name: "notes", Type: schema.FieldString},
	{Name: "priority", Type: schema.FieldNumber, Default: 3.0},
}

func TestSynthesizer_BuildsHandle(t *testing.T) {
	s := NewSynthesizer(&countingRegistrar{}, nil)

	h, err := s.GetOrCreate(context.Background(), "client-a", "purchase_order", poFields)
	require.NoError(t, err)

	assert.Equal(t, "PurchaseOrder", h.Name)
	assert.Equal(t, "purchase_order", h.Collection)
	assert.Equal(t, "client-a", h.ClientID)
	require.Len(t, h.Attributes, 4)

	poNumber, _ := h.Attribute("po_number")
	assert.True(t, poNumber.Mandatory)
	assert.False(t, poNumber.Nullable)

	currency, _ := h.Attribute("currency")
	assert.False(t, currency.Mandatory)
	assert.False(t, currency.Nullable)
	assert.Equal(t, "USD", currency.Default)

	notes, _ := h.Attribute("notes")
	assert.True(t, notes.Nullable)
	assert.Nil(t, notes.Default)

	_, ok := h.Attribute("missing")
	assert.False(t, ok)
}

func TestSynthesizer_CachesPerClientAndName(t *testing.T) {
	reg := &countingRegistrar{}
	s := NewSynthesizer(reg, nil)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "client-a", "purchase_order", poFields)
	require.NoError(t, err)
	second, err := s.GetOrCreate(ctx, "client-a", "purchase_order", poFields)
	require.NoError(t, err)
	other, err := s.GetOrCreate(ctx, "client-b", "purchase_order", poFields)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, int32(2), reg.calls.Load())
	assert.Equal(t, 2, s.Size())
}

func TestSynthesizer_RebuildsWhenFieldsChange(t *testing.T) {
	reg := &countingRegistrar{}
	s := NewSynthesizer(reg, nil)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "client-a", "purchase_order", poFields)
	require.NoError(t, err)

	changed := append([]schema.FieldDefinition{}, poFields...)
	changed = append(changed, schema.FieldDefinition{Name: "approved", Type: schema.FieldBoolean})
	second, err := s.GetOrCreate(ctx, "client-a", "purchase_order", changed)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, second.Declares("approved"))
	assert.Equal(t, 1, s.Size())
}

func TestSynthesizer_ConcurrentFirstAccessBuildsOnce(t *testing.T) {
	reg := &countingRegistrar{delay: 20 * time.Millisecond}
	s := NewSynthesizer(reg, nil)

	var wg sync.WaitGroup
	handles := make([]*TypeHandle, 32)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.GetOrCreate(context.Background(), "client-a", "grn", poFields)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), reg.calls.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestSynthesizer_RegistrationFailureOnExistingCollectionIsTolerated(t *testing.T) {
	err := fmt.Errorf("index invoice: %w", ErrCollectionExists)
	s := NewSynthesizer(&countingRegistrar{err: err}, nil)

	h, err := s.GetOrCreate(context.Background(), "client-a", "invoice", poFields)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", h.Name)
	assert.Equal(t, 1, s.Size())
}

func TestSynthesizer_RegistrationFailureIsNotCached(t *testing.T) {
	reg := &countingRegistrar{err: errors.New("database is locked")}
	s := NewSynthesizer(reg, nil)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "client-a", "invoice", poFields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Zero(t, s.Size())

	reg.err = nil
	h, err := s.GetOrCreate(ctx, "client-a", "invoice", poFields)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", h.Name)
	assert.Equal(t, int32(2), reg.calls.Load())
}

type ctxRecordingRegistrar struct {
	ctxErr error
}

func (r *ctxRecordingRegistrar) RegisterCollection(ctx context.Context, _ string) error {
	r.ctxErr = ctx.Err()
	return ctx.Err()
}

func TestSynthesizer_RegistrationIgnoresCallerCancellation(t *testing.T) {
	reg := &ctxRecordingRegistrar{}
	s := NewSynthesizer(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetOrCreate(ctx, "client-a", "invoice", poFields)
	require.NoError(t, err)
	assert.NoError(t, reg.ctxErr)
}

func TestSynthesizer_ResetAndInvalidate(t *testing.T) {
	reg := &countingRegistrar{}
	s := NewSynthesizer(reg, nil)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "client-a", "invoice", poFields)
	require.NoError(t, err)
	s.Invalidate(schema.Key{ClientID: "client-a", SchemaName: "invoice"})
	assert.Equal(t, 0, s.Size())

	_, err = s.GetOrCreate(ctx, "client-a", "invoice", poFields)
	require.NoError(t, err)
	s.Reset()
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestTypeHandle_New(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	h, err := s.GetOrCreate(context.Background(), "client-a", "purchase_order", poFields)
	require.NoError(t, err)

	env := Envelope{ID: "doc-1", ClientID: "client-a"}
	doc, err := h.New(env, map[string]any{"po_number": "PO-1", "undeclared": "dropped"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"po_number": "PO-1",
		"currency":  "USD",
		"notes":     nil,
		"priority":  3.0,
	}, doc.Attributes)

	_, err = h.New(env, map[string]any{"currency": "EUR"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeValidation))

	assert.NoError(t, doc.Set("notes", "rush"))
	assert.Error(t, doc.Set("undeclared", 1))
}

func TestDocument_MarshalJSON(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	h, err := s.GetOrCreate(context.Background(), "client-a", "purchase_order", poFields)
	require.NoError(t, err)

	vendor := "vendor-1"
	doc, err := h.New(Envelope{ID: "doc-1", ClientID: "client-a", VendorID: &vendor}, map[string]any{"po_number": "PO-1"})
	require.NoError(t, err)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "doc-1", out["id"])
	assert.Equal(t, "vendor-1", out["vendor_id"])
	assert.Equal(t, "PO-1", out["po_number"])
	assert.Contains(t, out, "created_at")
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(poFields)
	require.NoError(t, err)
	b, err := Fingerprint(append([]schema.FieldDefinition{}, poFields...))
	require.NoError(t, err)
	c, err := Fingerprint(poFields[:1])
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTypeHandle_Load(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	h, err := s.GetOrCreate(context.Background(), "client-a", "purchase_order", poFields)
	require.NoError(t, err)

	doc := h.Load(Envelope{ID: "doc-1"}, map[string]any{"notes": "x", "retired_field": 1})
	assert.Equal(t, map[string]any{
		"po_number": nil,
		"currency":  "USD",
		"notes":     "x",
		"priority":  3.0,
	}, doc.Attributes)
}
