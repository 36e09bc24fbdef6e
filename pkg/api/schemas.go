package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ginthi/docregistry/pkg/audit"
	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/jobs"
	"github.com/ginthi/docregistry/pkg/schema"
)

const defaultSchemaPageSize = 100

func (s *Server) createSchema(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.check(r.Context(), req.ClientID, authz.ResourceSchemas, authz.VerbCreate); err != nil {
		writeError(w, err)
		return
	}
	if req.CreatedBy == nil {
		req.CreatedBy = authz.ActorFromContext(r.Context())
	}
	audit.Annotate(r.Context(), req.ClientID, "")

	def, err := s.registry.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	audit.Annotate(r.Context(), "", def.ID)
	writeJSON(w, http.StatusCreated,
		fmt.Sprintf("Schema '%s' version %d created successfully", def.SchemaName, def.Version), def)
}

func (s *Server) listSchemas(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultSchemaPageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	defs, err := s.registry.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Retrieved "+pluralize(len(defs), "schema"), defs)
}

func (s *Server) listSchemasByClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	defs, err := s.registry.ListByClient(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(defs) == 0 {
		writeJSON(w, http.StatusOK, fmt.Sprintf("No schemas found for client %s", clientID), defs)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Retrieved %s for client %s", pluralize(len(defs), "schema"), clientID), defs)
}

func (s *Server) listSchemaVersions(w http.ResponseWriter, r *http.Request) {
	clientID, name := chi.URLParam(r, "clientID"), chi.URLParam(r, "schemaName")
	defs, err := s.registry.ListByName(r.Context(), clientID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Retrieved %s of schema '%s'", pluralize(len(defs), "version"), name), defs)
}

func (s *Server) getActiveSchema(w http.ResponseWriter, r *http.Request) {
	clientID, name := chi.URLParam(r, "clientID"), chi.URLParam(r, "schemaName")
	def, err := s.registry.GetActive(r.Context(), clientID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Active schema '%s' is version %d", def.SchemaName, def.Version), def)
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	def, ok := s.loadSchema(w, r, authz.VerbGet)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Schema '%s' retrieved", def.SchemaName), def)
}

func (s *Server) updateSchema(w http.ResponseWriter, r *http.Request) {
	var req schema.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	current, ok := s.loadSchema(w, r, authz.VerbUpdate)
	if !ok {
		return
	}
	if req.UpdatedBy == nil {
		req.UpdatedBy = authz.ActorFromContext(r.Context())
	}
	def, err := s.registry.Update(r.Context(), current.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Schema '%s' version %d updated successfully", def.SchemaName, def.Version), def)
}

func (s *Server) activateSchema(w http.ResponseWriter, r *http.Request) {
	current, ok := s.loadSchema(w, r, authz.VerbUpdate)
	if !ok {
		return
	}
	def, err := s.registry.ActivateVersion(r.Context(), current.ID, authz.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Schema '%s' version %d activated successfully", def.SchemaName, def.Version), def)
}

func (s *Server) deleteSchema(w http.ResponseWriter, r *http.Request) {
	current, ok := s.loadSchema(w, r, authz.VerbDelete)
	if !ok {
		return
	}
	if err := s.registry.Delete(r.Context(), current.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("Schema '%s' version %d deleted successfully", current.SchemaName, current.Version), nil)
}

func (s *Server) exportJSONSchema(w http.ResponseWriter, r *http.Request) {
	def, ok := s.loadSchema(w, r, authz.VerbGet)
	if !ok {
		return
	}
	if _, err := schema.CompileJSONSchema(def); err != nil {
		writeError(w, errs.Wrap(err, errs.CodeInternal, "Error exporting JSON Schema: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK,
		fmt.Sprintf("JSON Schema for '%s' version %d", def.SchemaName, def.Version), schema.JSONSchema(def))
}

// revalidateSchema queues a job that checks the collection's stored documents
// against this version. An existing queued or running job is returned as is.
func (s *Server) revalidateSchema(w http.ResponseWriter, r *http.Request) {
	def, ok := s.loadSchema(w, r, authz.VerbGet)
	if !ok {
		return
	}
	if err := s.check(r.Context(), def.ClientID, authz.ResourceDocuments, authz.VerbList); err != nil {
		writeError(w, err)
		return
	}

	requestedBy := authz.Anonymous
	if actor := authz.ActorFromContext(r.Context()); actor != nil {
		requestedBy = *actor
	}
	job, created, err := s.jobStore.Enqueue(r.Context(), &jobs.RevalidationJob{
		ClientID:      def.ClientID,
		SchemaID:      def.ID,
		Collection:    def.SchemaName,
		SchemaVersion: def.Version,
		RequestedBy:   requestedBy,
	})
	if err != nil {
		writeError(w, errs.Wrap(err, errs.CodeInternal, "Error queueing revalidation: "+err.Error()))
		return
	}
	if !created {
		writeJSON(w, http.StatusOK,
			fmt.Sprintf("Revalidation of '%s' version %d is already %s", def.SchemaName, def.Version, job.State),
			jobs.JobToResponse(job))
		return
	}
	s.logger.Info("revalidation queued", "jobID", job.ID, "schema", def.SchemaName, "version", def.Version)
	writeJSON(w, http.StatusAccepted,
		fmt.Sprintf("Revalidation of '%s' version %d queued", def.SchemaName, def.Version),
		jobs.JobToResponse(job))
}

// loadSchema fetches the schema named by the path and checks verb against
// its owning client.
func (s *Server) loadSchema(w http.ResponseWriter, r *http.Request, verb string) (*schema.SchemaDefinition, bool) {
	def, err := s.registry.Get(r.Context(), chi.URLParam(r, "schemaID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if err := s.check(r.Context(), def.ClientID, authz.ResourceSchemas, verb); err != nil {
		writeError(w, err)
		return nil, false
	}
	audit.Annotate(r.Context(), def.ClientID, def.ID)
	return def, true
}
