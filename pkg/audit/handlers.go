package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ginthi/docregistry/pkg/errs"
)

// ListEventsHandler handles GET /api/v1/audit/events
// Query params: client_id, actor, resource_type, action, outcome, page_size, page_token
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			ClientID:     q.Get("client_id"),
			Actor:        q.Get("actor"),
			ResourceType: q.Get("resource_type"),
			Action:       q.Get("action"),
			Outcome:      q.Get("outcome"),
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
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		events := make([]eventResponse, len(records))
		for i, rec := range records {
			events[i] = toResponse(rec)
		}

		writeJSON(w, http.StatusOK, "Audit events retrieved successfully", map[string]any{
			"events":          events,
			"next_page_token": nextToken,
			"total_size":      total,
		})
	}
}

// GetEventHandler handles GET /api/v1/audit/events/{eventID}
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "missing event ID")
			return
		}

		record, err := store.Get(r.Context(), eventID)
		if errors.Is(err, errs.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Audit event %s not found", eventID))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, "Audit event retrieved successfully", toResponse(*record))
	}
}

type eventResponse struct {
	ID            string         `json:"id"`
	ClientID      string         `json:"client_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
	Actor         string         `json:"actor"`
	Method        string         `json:"method"`
	Path          string         `json:"path"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Collection    string         `json:"collection,omitempty"`
	Action        string         `json:"action,omitempty"`
	Outcome       string         `json:"outcome"`
	StatusCode    int            `json:"status_code,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

func toResponse(rec Event) eventResponse {
	return eventResponse{
		ID:            rec.ID,
		ClientID:      rec.ClientID,
		CorrelationID: rec.CorrelationID,
		RequestID:     rec.RequestID,
		Actor:         rec.Actor,
		Method:        rec.Method,
		Path:          rec.Path,
		ResourceType:  rec.ResourceType,
		ResourceID:    rec.ResourceID,
		Collection:    rec.Collection,
		Action:        rec.Action,
		Outcome:       rec.Outcome,
		StatusCode:    rec.StatusCode,
		Metadata:      map[string]any(rec.Metadata),
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
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
