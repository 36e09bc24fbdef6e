package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// annotation carries details that only the handler knows, such as the ID
// of a created resource or a client_id taken from a request body.
type annotation struct {
	clientID   string
	resourceID string
}

type annotationKey struct{}

// Annotate attaches the client and resource of the current request to its
// audit event. Empty values leave what the path already provides. It is a
// no-op outside the audit middleware.
func Annotate(ctx context.Context, clientID, resourceID string) {
	a, ok := ctx.Value(annotationKey{}).(*annotation)
	if !ok {
		return
	}
	if clientID != "" {
		a.clientID = clientID
	}
	if resourceID != "" {
		a.resourceID = resourceID
	}
}

// AuditMiddleware records an Event for every mutating API request. It wraps
// the ResponseWriter to capture the status code and appends the event after
// the handler completes.
func AuditMiddleware(store *Store, cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !isAuditedEndpoint(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			note := &annotation{}
			ctx := context.WithValue(r.Context(), annotationKey{}, note)

			next.ServeHTTP(capture, r.WithContext(ctx))

			statusCode := capture.statusCode
			outcome := outcomeFromStatus(statusCode)
			if outcome == "denied" && !cfg.LogDenied {
				return
			}

			ids := extractPathIDs(r.URL.Path)
			clientID := ids.clientID
			if clientID == "" {
				clientID = tenancy.ClientIDFromContext(ctx)
			}
			if note.clientID != "" {
				clientID = note.clientID
			}
			resourceID := ids.resourceID
			if note.resourceID != "" {
				resourceID = note.resourceID
			}

			actor := authz.Anonymous
			var groups []string
			if id, ok := authz.IdentityFromContext(ctx); ok {
				actor = id.User
				groups = id.Groups
			}

			requestID := middleware.GetReqID(ctx)
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = requestID
			}

			event := &Event{
				ID:            uuid.New().String(),
				ClientID:      clientID,
				CorrelationID: correlationID,
				RequestID:     requestID,
				Actor:         actor,
				Method:        r.Method,
				Path:          r.URL.Path,
				ResourceType:  extractResourceType(r.URL.Path),
				ResourceID:    resourceID,
				Collection:    ids.collection,
				Action:        extractAction(r.Method, r.URL.Path),
				Outcome:       outcome,
				StatusCode:    statusCode,
				CreatedAt:     startTime,
				Metadata: Metadata{
					"duration": time.Since(startTime).String(),
					"groups":   groups,
				},
			}

			// Best effort: the response has already been written.
			if err := store.Append(context.WithoutCancel(ctx), event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return "denied"
	default:
		return "failure"
	}
}
