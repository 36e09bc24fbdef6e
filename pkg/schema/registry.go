// Package schema implements the schema registry: versioned, per-client
// document type definitions with at most one active version per
// (client_id, schema_name).
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/metrics"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ClientChecker answers whether a client exists.
type ClientChecker interface {
	ClientExists(ctx context.Context, clientID string) (bool, error)
}

// ChangeFunc is called after a mutation of any version of key commits.
type ChangeFunc func(key Key)

// CreateRequest describes a new schema version.
type CreateRequest struct {
	ClientID    string            `json:"client_id" yaml:"client_id"`
	SchemaName  string            `json:"schema_name" yaml:"schema_name"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
	Version     *int              `json:"version,omitempty" yaml:"version,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedBy   *string           `json:"created_by,omitempty" yaml:"created_by,omitempty"`
}

// UpdateRequest changes an existing version. Nil members are left as they are;
// Fields, when set, replaces the whole field list.
type UpdateRequest struct {
	Description *string           `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty"`
	UpdatedBy   *string           `json:"updated_by,omitempty"`
}

// Registry manages schema definitions.
type Registry struct {
	store    *Store
	clients  ClientChecker
	locks    *keyedMutex
	onChange []ChangeFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithChangeHook registers fn to run after every committed mutation.
func WithChangeHook(fn ChangeFunc) Option {
	return func(r *Registry) { r.onChange = append(r.onChange, fn) }
}

// NewRegistry creates a Registry over store. clients may be nil, in which
// case client existence is not checked.
func NewRegistry(store *Store, clients ClientChecker, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		clients: clients,
		locks:   newKeyedMutex(),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new schema version. Without an explicit version the next
// one is max+1. Active versions (the default) deactivate their siblings.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (def *SchemaDefinition, err error) {
	defer func(start time.Time) { r.metrics.ObserveSchemaOp("create", start, err) }(time.Now())

	if err := ValidateClientID(req.ClientID); err != nil {
		return nil, errs.New(errs.CodeBadRequest, err.Error())
	}
	var violations []string
	if v := CheckSchemaName(req.SchemaName); v != "" {
		violations = append(violations, v)
	}
	if v := CheckDescription(req.Description); v != "" {
		violations = append(violations, v)
	}
	violations = append(violations, CheckFields(req.Fields)...)
	if req.Version != nil && *req.Version < 1 {
		violations = append(violations, "version must be at least 1")
	}
	if len(violations) > 0 {
		return nil, errs.Validation(violations)
	}
	if err := r.requireClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	key := Key{ClientID: req.ClientID, SchemaName: req.SchemaName}
	now := r.now()
	def = &SchemaDefinition{
		ID:          uuid.New().String(),
		ClientID:    req.ClientID,
		SchemaName:  req.SchemaName,
		IsActive:    active,
		Description: req.Description,
		Fields:      FieldList(req.Fields),
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.CreatedBy,
		UpdatedBy:   req.CreatedBy,
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	err = r.store.Transaction(ctx, func(tx *Store) error {
		if req.Version != nil {
			exists, err := tx.VersionExists(ctx, key, *req.Version)
			if err != nil {
				return err
			}
			if exists {
				return errs.Newf(errs.CodeConflict, "Schema '%s' version %d already exists for client %s",
					req.SchemaName, *req.Version, req.ClientID)
			}
			def.Version = *req.Version
		} else {
			latest, err := tx.MaxVersion(ctx, key)
			if err != nil {
				return err
			}
			def.Version = latest + 1
		}
		if active {
			if _, err := tx.DeactivateOthers(ctx, key, "", now); err != nil {
				return err
			}
		}
		return tx.Insert(ctx, def)
	})
	if err != nil {
		return nil, r.translate(err, "Error creating client schema")
	}

	if active {
		r.metrics.IncActivation()
	}
	r.changed(key)
	r.logger.Info("schema version created",
		"id", def.ID, "clientID", def.ClientID, "schema", def.SchemaName,
		"version", def.Version, "active", def.IsActive)
	return def, nil
}

// Get returns a schema version by ID.
func (r *Registry) Get(ctx context.Context, id string) (*SchemaDefinition, error) {
	def, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.translateNotFound(err, id)
	}
	return def, nil
}

// List pages through every stored version. limit <= 0 selects the default
// page size.
func (r *Registry) List(ctx context.Context, skip, limit int) ([]SchemaDefinition, error) {
	if skip < 0 {
		return nil, errs.New(errs.CodeBadRequest, "skip must not be negative")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	defs, err := r.store.List(ctx, skip, limit)
	if err != nil {
		return nil, r.translate(err, "Error retrieving client schemas")
	}
	return defs, nil
}

// ListByClient returns all versions owned by clientID. An empty result is
// not an error.
func (r *Registry) ListByClient(ctx context.Context, clientID string) ([]SchemaDefinition, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, errs.New(errs.CodeBadRequest, err.Error())
	}
	defs, err := r.store.ListByClient(ctx, clientID)
	if err != nil {
		return nil, r.translate(err, "Error retrieving client schemas")
	}
	return defs, nil
}

// ListByName returns every version of one schema, newest first.
func (r *Registry) ListByName(ctx context.Context, clientID, schemaName string) ([]SchemaDefinition, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, errs.New(errs.CodeBadRequest, err.Error())
	}
	defs, err := r.store.ListVersions(ctx, Key{ClientID: clientID, SchemaName: schemaName})
	if err != nil {
		return nil, r.translate(err, "Error retrieving client schemas")
	}
	if len(defs) == 0 {
		return nil, errs.Newf(errs.CodeNotFound, "No schemas found with name '%s' for client %s", schemaName, clientID)
	}
	return defs, nil
}

// GetActive returns the active version of a schema.
func (r *Registry) GetActive(ctx context.Context, clientID, schemaName string) (*SchemaDefinition, error) {
	def, err := r.store.GetActive(ctx, Key{ClientID: clientID, SchemaName: schemaName})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "No active schema found for '%s' and client %s", schemaName, clientID)
		}
		return nil, r.translate(err, "Error retrieving active schema")
	}
	return def, nil
}

// Update replaces description and/or fields of a version and optionally
// changes its active flag. Activating deactivates all siblings.
func (r *Registry) Update(ctx context.Context, id string, req UpdateRequest) (def *SchemaDefinition, err error) {
	defer func(start time.Time) { r.metrics.ObserveSchemaOp("update", start, err) }(time.Now())

	var violations []string
	if req.Description != nil {
		if v := CheckDescription(*req.Description); v != "" {
			violations = append(violations, v)
		}
	}
	if req.Fields != nil {
		violations = append(violations, CheckFields(req.Fields)...)
	}
	if len(violations) > 0 {
		return nil, errs.Validation(violations)
	}

	current, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.translateNotFound(err, id)
	}
	key := current.Key()

	unlock := r.locks.Lock(key)
	defer unlock()

	now := r.now()
	activated := false
	err = r.store.Transaction(ctx, func(tx *Store) error {
		def, err = tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Description != nil {
			def.Description = *req.Description
		}
		if req.Fields != nil {
			def.Fields = FieldList(req.Fields)
		}
		if req.IsActive != nil {
			if *req.IsActive {
				if _, err := tx.DeactivateOthers(ctx, key, id, now); err != nil {
					return err
				}
				activated = !def.IsActive
			}
			def.IsActive = *req.IsActive
		}
		if req.UpdatedBy != nil {
			def.UpdatedBy = req.UpdatedBy
		}
		def.UpdatedAt = now
		return tx.Save(ctx, def)
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, r.translateNotFound(err, id)
		}
		return nil, r.translate(err, "Error updating client schema")
	}

	if activated {
		r.metrics.IncActivation()
	}
	r.changed(key)
	r.logger.Info("schema version updated", "id", id, "schema", key.SchemaName, "active", def.IsActive)
	return def, nil
}

// ActivateVersion makes id the only active version of its schema. It is
// unconditional: activating an already active version is a no-op apart from
// updated_at.
func (r *Registry) ActivateVersion(ctx context.Context, id string, actor *string) (def *SchemaDefinition, err error) {
	defer func(start time.Time) { r.metrics.ObserveSchemaOp("activate", start, err) }(time.Now())

	current, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.translateNotFound(err, id)
	}
	key := current.Key()

	unlock := r.locks.Lock(key)
	defer unlock()

	now := r.now()
	err = r.store.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.DeactivateOthers(ctx, key, id, now); err != nil {
			return err
		}
		if err := tx.SetActive(ctx, id, true, now, actor); err != nil {
			return err
		}
		def, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, r.translateNotFound(err, id)
		}
		return nil, r.translate(err, "Error activating client schema")
	}

	r.metrics.IncActivation()
	r.changed(key)
	r.logger.Info("schema version activated", "id", id, "schema", key.SchemaName, "version", def.Version)
	return def, nil
}

// Delete removes a version. Documents stored under the schema are kept.
func (r *Registry) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.metrics.ObserveSchemaOp("delete", start, err) }(time.Now())

	current, err := r.store.Get(ctx, id)
	if err != nil {
		return r.translateNotFound(err, id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return r.translateNotFound(err, id)
		}
		return r.translate(err, "Error deleting client schema")
	}

	r.changed(current.Key())
	r.logger.Info("schema version deleted", "id", id, "schema", current.SchemaName, "version", current.Version)
	return nil
}

func (r *Registry) requireClient(ctx context.Context, clientID string) error {
	if r.clients == nil {
		return nil
	}
	ok, err := r.clients.ClientExists(ctx, clientID)
	if err != nil {
		return errs.Wrap(err, errs.CodeInternal, fmt.Sprintf("Error checking client: %v", err))
	}
	if !ok {
		return errs.Newf(errs.CodeNotFound, "Client with ID %s not found in database", clientID)
	}
	return nil
}

func (r *Registry) changed(key Key) {
	for _, fn := range r.onChange {
		fn(key)
	}
}

func (r *Registry) translateNotFound(err error, id string) error {
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Newf(errs.CodeNotFound, "Client schema with ID %s not found", id)
	}
	return r.translate(err, "Error retrieving client schema")
}

// translate passes coded errors through and turns everything else into an
// internal error whose message carries the cause.
func (r *Registry) translate(err error, prefix string) error {
	var coded *errs.Error
	if errors.As(err, &coded) {
		return coded
	}
	if errors.Is(err, errs.ErrDuplicate) {
		return errs.Wrap(err, errs.CodeConflict, "Schema version already exists or another version is already active")
	}
	r.logger.Error(prefix, "error", err)
	return errs.Wrap(err, errs.CodeInternal, fmt.Sprintf("%s: %v", prefix, err))
}
