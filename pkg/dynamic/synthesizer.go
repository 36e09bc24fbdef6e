package dynamic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/ginthi/docregistry/pkg/cache"
	"github.com/ginthi/docregistry/pkg/metrics"
	"github.com/ginthi/docregistry/pkg/schema"
)

// ErrCollectionExists is wrapped by registrars whose preparation step failed
// while the collection's storage is already in place.
var ErrCollectionExists = errors.New("collection already exists")

// CollectionRegistrar prepares backend storage for a collection. Registering
// an existing collection must be harmless.
type CollectionRegistrar interface {
	RegisterCollection(ctx context.Context, collection string) error
}

// Synthesizer builds TypeHandles and caches them by (client_id, schema_name).
// Construct one per process and share it.
type Synthesizer struct {
	types     *cache.LRU[schema.Key, *TypeHandle]
	group     singleflight.Group
	registrar CollectionRegistrar
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) SynthesizerOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// NewSynthesizer creates a Synthesizer. A nil cfg uses cache.DefaultConfig.
func NewSynthesizer(registrar CollectionRegistrar, cfg *cache.Config, opts ...SynthesizerOption) *Synthesizer {
	if cfg == nil {
		cfg = cache.DefaultConfig()
	}
	s := &Synthesizer{
		types:     cache.NewLRU[schema.Key, *TypeHandle](cfg.MaxSize, cfg.TTL),
		registrar: registrar,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the document type for (clientID, schemaName). A cached
// handle is reused while it was built from identical fields; otherwise the
// type is rebuilt and its collection registered. Concurrent callers for the
// same key share one build.
func (s *Synthesizer) GetOrCreate(ctx context.Context, clientID, schemaName string, fields []schema.FieldDefinition) (*TypeHandle, error) {
	key := schema.Key{ClientID: clientID, SchemaName: schemaName}
	fp, err := Fingerprint(fields)
	if err != nil {
		return nil, err
	}

	if h, ok := s.types.Get(key); ok {
		if h.Fingerprint == fp {
			s.metrics.IncTypeCache("hit")
			return h, nil
		}
		s.metrics.IncTypeCache("stale")
	} else {
		s.metrics.IncTypeCache("miss")
	}

	v, err, _ := s.group.Do(key.String()+"@"+fp, func() (any, error) {
		if h, ok := s.types.Get(key); ok && h.Fingerprint == fp {
			return h, nil
		}
		h := newTypeHandle(clientID, schemaName, fields, fp)
		// The build is shared; one caller giving up must not fail it for the rest.
		if err := s.register(context.WithoutCancel(ctx), h); err != nil {
			return nil, err
		}
		s.types.Set(key, h)
		s.metrics.IncTypeSynthesis()
		s.logger.Debug("document type synthesized",
			"type", h.Name, "collection", h.Collection, "clientID", clientID, "attributes", len(h.Attributes))
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TypeHandle), nil
}

// register binds the handle's collection in the backend. Failures against an
// existing collection are logged; anything else leaves the type uncached.
func (s *Synthesizer) register(ctx context.Context, h *TypeHandle) error {
	if s.registrar == nil {
		return nil
	}
	err := s.registrar.RegisterCollection(ctx, h.Collection)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCollectionExists):
		s.logger.Warn("collection registration failed on an existing collection",
			"collection", h.Collection, "type", h.Name, "error", err)
		return nil
	}
	return fmt.Errorf("register collection %s: %w", h.Collection, err)
}

// Invalidate drops the cached type for key.
func (s *Synthesizer) Invalidate(key schema.Key) {
	s.types.Invalidate(key)
}

// Reset clears every cached type.
func (s *Synthesizer) Reset() {
	s.types.InvalidateAll()
}

// Size returns the number of cached types.
func (s *Synthesizer) Size() int {
	return s.types.Size()
}

// Fingerprint hashes a field list; equal lists hash equally.
func Fingerprint(fields []schema.FieldDefinition) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("fingerprint fields: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8]), nil
}
