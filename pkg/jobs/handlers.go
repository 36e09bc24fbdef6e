package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

// GetJobHandler handles GET /api/v1/jobs/revalidations/{jobID}
func GetJobHandler(store *JobStore, authorizer authz.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, store, authorizer, authz.VerbGet)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, "Job retrieved successfully", JobToResponse(job))
	}
}

// ListJobsHandler handles GET /api/v1/jobs/revalidations
// Query params: client_id, schema_id, collection, state, requested_by, page_size, page_token.
// A client resolved from the X-Client-ID header takes precedence over client_id.
func ListJobsHandler(store *JobStore, authorizer authz.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := JobListFilter{
			ClientID:    tenancy.ClientIDFromContext(r.Context()),
			SchemaID:    q.Get("schema_id"),
			Collection:  q.Get("collection"),
			State:       q.Get("state"),
			RequestedBy: q.Get("requested_by"),
		}
		if filter.ClientID == "" {
			filter.ClientID = q.Get("client_id")
		}
		if !authorize(w, r, authorizer, filter.ClientID, authz.VerbList) {
			return
		}

		pageSize := defaultPageSize
		if ps := q.Get("page_size"); ps != "" {
			v, err := strconv.Atoi(ps)
			if err != nil || v <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page_size: %s", ps))
				return
			}
			pageSize = v
		}

		records, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("page_token"))
		if err != nil {
			if errs.HasCode(err, errs.CodeBadRequest) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
			return
		}

		jobs := make([]JobResponse, len(records))
		for i := range records {
			jobs[i] = JobToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf("Retrieved %d jobs", len(jobs)), map[string]any{
			"jobs":            jobs,
			"next_page_token": nextToken,
			"total_size":      total,
		})
	}
}

// CancelJobHandler handles POST /api/v1/jobs/revalidations/{jobID}/cancel
func CancelJobHandler(store *JobStore, authorizer authz.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadJob(w, r, store, authorizer, authz.VerbUpdate)
		if !ok {
			return
		}

		if err := store.Cancel(r.Context(), job.ID); err != nil {
			if errs.HasCode(err, errs.CodeConflict) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to cancel job: %v", err))
			return
		}

		job, err := store.Get(r.Context(), job.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, "Job canceled", JobToResponse(job))
	}
}

// loadJob fetches the job named in the path and checks verb on its client.
func loadJob(w http.ResponseWriter, r *http.Request, store *JobStore, authorizer authz.Authorizer, verb string) (*RevalidationJob, bool) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return nil, false
	}

	job, err := store.Get(r.Context(), jobID)
	if errors.Is(err, errs.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		return nil, false
	}
	if !authorize(w, r, authorizer, job.ClientID, verb) {
		return nil, false
	}
	return job, true
}

func authorize(w http.ResponseWriter, r *http.Request, authorizer authz.Authorizer, clientID, verb string) bool {
	if authorizer == nil {
		return true
	}
	err := authz.Check(r.Context(), authorizer, clientID, authz.ResourceMapping{Resource: authz.ResourceJobs, Verb: verb})
	switch {
	case err == nil:
		return true
	case errs.HasCode(err, errs.CodeForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return false
}

// JobResponse is the API representation of a revalidation job.
type JobResponse struct {
	ID               string   `json:"id"`
	ClientID         string   `json:"client_id"`
	SchemaID         string   `json:"schema_id"`
	Collection       string   `json:"collection"`
	SchemaVersion    int      `json:"schema_version,omitempty"`
	RequestedBy      string   `json:"requested_by"`
	RequestedAt      string   `json:"requested_at"`
	State            string   `json:"state"`
	Message          string   `json:"message,omitempty"`
	StartedAt        string   `json:"started_at,omitempty"`
	FinishedAt       string   `json:"finished_at,omitempty"`
	AttemptCount     int      `json:"attempt_count"`
	LastError        string   `json:"last_error,omitempty"`
	DocumentsChecked int      `json:"documents_checked"`
	DocumentsInvalid int      `json:"documents_invalid"`
	Samples          []string `json:"samples,omitempty"`
	DurationMs       int64    `json:"duration_ms,omitempty"`
}

// JobToResponse converts a job for the API.
func JobToResponse(job *RevalidationJob) JobResponse {
	resp := JobResponse{
		ID:               job.ID,
		ClientID:         job.ClientID,
		SchemaID:         job.SchemaID,
		Collection:       job.Collection,
		SchemaVersion:    job.SchemaVersion,
		RequestedBy:      job.RequestedBy,
		RequestedAt:      job.RequestedAt.UTC().Format(time.RFC3339),
		State:            string(job.State),
		Message:          job.Message,
		AttemptCount:     job.AttemptCount,
		LastError:        job.LastError,
		DocumentsChecked: job.DocumentsChecked,
		DocumentsInvalid: job.DocumentsInvalid,
		Samples:          job.Samples,
		DurationMs:       job.DurationMs,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.UTC().Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes the {success, message, data} envelope used by the API.
func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < http.StatusBadRequest,
		"message": message,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, message, nil)
}
