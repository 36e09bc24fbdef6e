// Package document stores dynamic documents in per-schema collections and
// validates every write against the active schema version of its client.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ginthi/docregistry/pkg/dynamic"
	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/metrics"
	"github.com/ginthi/docregistry/pkg/schema"
	"github.com/ginthi/docregistry/pkg/validation"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ClientDirectory answers whether a client exists.
type ClientDirectory interface {
	ClientExists(ctx context.Context, clientID string) (bool, error)
}

// VendorDirectory answers whether a vendor exists.
type VendorDirectory interface {
	VendorExists(ctx context.Context, vendorID string) (bool, error)
}

// SchemaSource resolves the active schema version for a collection.
type SchemaSource interface {
	GetActive(ctx context.Context, clientID, schemaName string) (*schema.SchemaDefinition, error)
}

// CreateRequest describes a new document.
type CreateRequest struct {
	ClientID   string
	VendorID   *string
	Collection string
	Data       map[string]any
	CreatedBy  *string
}

// UpdateRequest describes a partial update. Keys absent from Data keep their
// stored value.
type UpdateRequest struct {
	ClientID   string
	Collection string
	ID         string
	Data       map[string]any
	UpdatedBy  *string
}

// ListRequest selects a page of a client's documents.
type ListRequest struct {
	ClientID   string
	Collection string
	Skip       int
	Limit      int
	Filter     string
}

// Service is the document store. Each operation checks the client, resolves
// the active schema and materializes documents through the synthesized type.
type Service struct {
	store   *CollectionStore
	clients ClientDirectory
	vendors VendorDirectory
	schemas SchemaSource
	types   *dynamic.Synthesizer
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service.
func NewService(store *CollectionStore, clients ClientDirectory, vendors VendorDirectory,
	schemas SchemaSource, types *dynamic.Synthesizer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clients: clients,
		vendors: vendors,
		schemas: schemas,
		types:   types,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates data against the active schema and stores a new document.
func (s *Service) Create(ctx context.Context, req CreateRequest) (doc *dynamic.Document, err error) {
	defer func(start time.Time) { s.metrics.ObserveDocumentOp(req.Collection, "create", start, err) }(time.Now())

	if err := s.requireClient(ctx, req.ClientID); err != nil {
		return nil, err
	}
	if req.VendorID != nil {
		if err := s.requireVendor(ctx, *req.VendorID); err != nil {
			return nil, err
		}
	}
	def, err := s.schemas.GetActive(ctx, req.ClientID, req.Collection)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req.Collection, req.Data, def.Fields, validation.Full); err != nil {
		return nil, err
	}
	h, err := s.types.GetOrCreate(ctx, req.ClientID, req.Collection, def.Fields)
	if err != nil {
		return nil, s.internal(err, "Error creating document")
	}

	now := s.now()
	env := dynamic.Envelope{
		ID:        uuid.New().String(),
		ClientID:  req.ClientID,
		VendorID:  req.VendorID,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: req.CreatedBy,
		UpdatedBy: req.CreatedBy,
	}
	doc, err = h.New(env, req.Data)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        env.ID,
		ClientID:  env.ClientID,
		VendorID:  env.VendorID,
		Data:      Data(doc.Attributes),
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		CreatedBy: env.CreatedBy,
		UpdatedBy: env.UpdatedBy,
	}
	if err := s.store.Insert(ctx, req.Collection, rec); err != nil {
		return nil, s.internal(err, "Error creating document")
	}

	s.logger.Info("document created", "collection", req.Collection, "id", rec.ID, "clientID", rec.ClientID)
	return doc, nil
}

// Get returns a document. A document owned by another client is Forbidden.
func (s *Service) Get(ctx context.Context, clientID, collection, id string) (doc *dynamic.Document, err error) {
	defer func(start time.Time) { s.metrics.ObserveDocumentOp(collection, "get", start, err) }(time.Now())

	h, err := s.resolve(ctx, clientID, collection, "Error retrieving document")
	if err != nil {
		return nil, err
	}
	rec, err := s.owned(ctx, clientID, collection, id, "Error retrieving document")
	if err != nil {
		return nil, err
	}
	return h.Load(rec.Envelope(), rec.Data), nil
}

// List returns a page of the client's documents in insertion order.
func (s *Service) List(ctx context.Context, req ListRequest) (docs []*dynamic.Document, err error) {
	defer func(start time.Time) { s.metrics.ObserveDocumentOp(req.Collection, "list", start, err) }(time.Now())

	if req.Skip < 0 {
		return nil, errs.New(errs.CodeBadRequest, "skip must not be negative")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	h, err := s.resolve(ctx, req.ClientID, req.Collection, "Error retrieving documents")
	if err != nil {
		return nil, err
	}

	var match func(*Record) bool
	if req.Filter != "" {
		f, err := ParseFilter(req.Filter)
		if err != nil {
			return nil, errs.New(errs.CodeBadRequest, err.Error())
		}
		for _, name := range f.Fields() {
			if !h.Declares(name) && !slices.Contains(dynamic.EnvelopeKeys, name) {
				return nil, errs.Newf(errs.CodeBadRequest, "Unknown filter field '%s' for %s", name, req.Collection)
			}
		}
		match = func(r *Record) bool { return f.Match(r.row()) }
	}

	recs, err := s.store.List(ctx, req.Collection, req.ClientID, req.Skip, limit, match)
	if err != nil {
		return nil, s.internal(err, "Error retrieving documents")
	}
	docs = make([]*dynamic.Document, len(recs))
	for i := range recs {
		docs[i] = h.Load(recs[i].Envelope(), recs[i].Data)
	}
	return docs, nil
}

// Update validates the provided keys and merges them into the stored document.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (doc *dynamic.Document, err error) {
	defer func(start time.Time) { s.metrics.ObserveDocumentOp(req.Collection, "update", start, err) }(time.Now())

	if err := s.requireClient(ctx, req.ClientID); err != nil {
		return nil, err
	}
	def, err := s.schemas.GetActive(ctx, req.ClientID, req.Collection)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req.Collection, req.Data, def.Fields, validation.Patch); err != nil {
		return nil, err
	}
	h, err := s.types.GetOrCreate(ctx, req.ClientID, req.Collection, def.Fields)
	if err != nil {
		return nil, s.internal(err, "Error updating document")
	}
	rec, err := s.owned(ctx, req.ClientID, req.Collection, req.ID, "Error updating document")
	if err != nil {
		return nil, err
	}

	if rec.Data == nil {
		rec.Data = Data{}
	}
	for k, v := range h.Project(req.Data) {
		rec.Data[k] = v
	}
	rec.UpdatedAt = s.now()
	rec.UpdatedBy = req.UpdatedBy
	if err := s.store.Save(ctx, req.Collection, rec); err != nil {
		return nil, s.internal(err, "Error updating document")
	}

	s.logger.Info("document updated", "collection", req.Collection, "id", rec.ID, "clientID", rec.ClientID)
	return h.Load(rec.Envelope(), rec.Data), nil
}

// Delete removes a document owned by clientID.
func (s *Service) Delete(ctx context.Context, clientID, collection, id string) (err error) {
	defer func(start time.Time) { s.metrics.ObserveDocumentOp(collection, "delete", start, err) }(time.Now())

	if _, err := s.resolve(ctx, clientID, collection, "Error deleting document"); err != nil {
		return err
	}
	if _, err := s.owned(ctx, clientID, collection, id, "Error deleting document"); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.Newf(errs.CodeNotFound, "Document with ID %s not found in %s", id, collection)
		}
		return s.internal(err, "Error deleting document")
	}

	s.logger.Info("document deleted", "collection", collection, "id", id, "clientID", clientID)
	return nil
}

// Validate checks data against the active schema without storing anything.
// partial skips the required-field rule.
func (s *Service) Validate(ctx context.Context, clientID, collection string, data map[string]any, partial bool) ([]string, error) {
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	def, err := s.schemas.GetActive(ctx, clientID, collection)
	if err != nil {
		return nil, err
	}
	if partial {
		return validation.ValidatePatch(data, def.Fields), nil
	}
	return validation.Validate(data, def.Fields), nil
}

// RevalidationReport summarizes a pass over stored documents.
type RevalidationReport struct {
	Checked int
	Invalid int
	// Samples holds up to the requested number of "id: violation" lines.
	Samples []string
}

// Revalidate checks every document of def's client and collection against
// def's fields. Documents written under an earlier version may no longer
// conform after a new version is activated; nothing is modified.
func (s *Service) Revalidate(ctx context.Context, def *schema.SchemaDefinition, sampleSize int) (*RevalidationReport, error) {
	if err := s.store.RegisterCollection(ctx, def.SchemaName); err != nil {
		return nil, s.internal(err, "Error revalidating documents")
	}
	report := &RevalidationReport{Samples: []string{}}
	err := s.store.Scan(ctx, def.SchemaName, def.ClientID, func(rec *Record) bool {
		report.Checked++
		violations := validation.Validate(rec.Data, def.Fields)
		if len(violations) == 0 {
			return true
		}
		report.Invalid++
		if len(report.Samples) < sampleSize {
			report.Samples = append(report.Samples, rec.ID+": "+violations[0])
		}
		return true
	})
	if err != nil {
		return nil, s.internal(err, "Error revalidating documents")
	}

	s.logger.Info("documents revalidated", "collection", def.SchemaName, "clientID", def.ClientID,
		"version", def.Version, "checked", report.Checked, "invalid", report.Invalid)
	return report, nil
}

// resolve checks the client and returns the type for the active schema.
func (s *Service) resolve(ctx context.Context, clientID, collection, errPrefix string) (*dynamic.TypeHandle, error) {
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	def, err := s.schemas.GetActive(ctx, clientID, collection)
	if err != nil {
		return nil, err
	}
	h, err := s.types.GetOrCreate(ctx, clientID, collection, def.Fields)
	if err != nil {
		return nil, s.internal(err, errPrefix)
	}
	return h, nil
}

// owned fetches a record and verifies it belongs to clientID.
func (s *Service) owned(ctx context.Context, clientID, collection, id, errPrefix string) (*Record, error) {
	rec, err := s.store.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "Document with ID %s not found in %s", id, collection)
		}
		return nil, s.internal(err, errPrefix)
	}
	if rec.ClientID != clientID {
		s.logger.Warn("cross-client document access denied",
			"collection", collection, "id", id, "clientID", clientID)
		return nil, errs.New(errs.CodeForbidden, "Document does not belong to this client")
	}
	return rec, nil
}

func (s *Service) validate(collection string, data map[string]any, fields []schema.FieldDefinition, mode validation.Mode) error {
	if err := validation.Check(data, fields, mode); err != nil {
		s.metrics.IncValidationFailure(collection)
		return err
	}
	return nil
}

func (s *Service) requireClient(ctx context.Context, clientID string) error {
	if _, err := uuid.Parse(clientID); err != nil {
		return errs.Newf(errs.CodeBadRequest, "Invalid client_id format: %s", clientID)
	}
	ok, err := s.clients.ClientExists(ctx, clientID)
	if err != nil {
		return s.internal(err, "Error checking client")
	}
	if !ok {
		return errs.Newf(errs.CodeNotFound, "Client with ID %s not found", clientID)
	}
	return nil
}

func (s *Service) requireVendor(ctx context.Context, vendorID string) error {
	if _, err := uuid.Parse(vendorID); err != nil {
		return errs.Newf(errs.CodeBadRequest, "Invalid vendor_id format: %s", vendorID)
	}
	if s.vendors == nil {
		return nil
	}
	ok, err := s.vendors.VendorExists(ctx, vendorID)
	if err != nil {
		return s.internal(err, "Error checking vendor")
	}
	if !ok {
		return errs.Newf(errs.CodeNotFound, "Vendor with ID %s not found", vendorID)
	}
	return nil
}

func (s *Service) internal(err error, prefix string) error {
	s.logger.Error(prefix, "error", err)
	return errs.Wrap(err, errs.CodeInternal, fmt.Sprintf("%s: %v", prefix, err))
}
