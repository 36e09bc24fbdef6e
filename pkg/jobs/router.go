package jobs

import (
	"github.com/go-chi/chi/v5"

	"github.com/ginthi/docregistry/pkg/authz"
)

// Router creates a chi.Router for the job status API. When authorizer is
// non-nil each handler checks jobs:list, jobs:get or jobs:update against
// the job's client.
func Router(store *JobStore, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()

	r.Get("/revalidations", ListJobsHandler(store, authorizer))
	r.Get("/revalidations/{jobID}", GetJobHandler(store, authorizer))
	r.Post("/revalidations/{jobID}/cancel", CancelJobHandler(store, authorizer))

	return r
}
