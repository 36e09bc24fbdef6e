package api

import (
	"context"
	"time"

	"github.com/ginthi/docregistry/pkg/document"
	"github.com/ginthi/docregistry/pkg/jobs"
	"github.com/ginthi/docregistry/pkg/schema"
)

type revalidator struct {
	registry  *schema.Registry
	documents *document.Service
}

// NewRevalidator returns the jobs.Revalidator that checks a collection's
// stored documents against the schema version a job names. A deleted
// version surfaces as NotFound, which the worker pool does not retry.
func NewRevalidator(registry *schema.Registry, documents *document.Service) jobs.Revalidator {
	return &revalidator{registry: registry, documents: documents}
}

func (v *revalidator) Revalidate(ctx context.Context, schemaID string, sampleSize int) (jobs.Result, error) {
	start := time.Now()
	def, err := v.registry.Get(ctx, schemaID)
	if err != nil {
		return jobs.Result{}, err
	}
	report, err := v.documents.Revalidate(ctx, def, sampleSize)
	if err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{
		Checked:  report.Checked,
		Invalid:  report.Invalid,
		Samples:  report.Samples,
		Duration: time.Since(start),
	}, nil
}
