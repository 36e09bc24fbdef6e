package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ginthi/docregistry/pkg/audit"
	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/document"
	"github.com/ginthi/docregistry/pkg/errs"
)

// documentCreate is the body of POST /documents.
type documentCreate struct {
	ClientID   string         `json:"client_id"`
	Collection string         `json:"collection_name"`
	VendorID   *string        `json:"vendor_id,omitempty"`
	Data       map[string]any `json:"data"`
	CreatedBy  *string        `json:"created_by,omitempty"`
}

// documentUpdate is the body of PUT /documents/{clientID}/{collection}/{documentID}.
type documentUpdate struct {
	Data      map[string]any `json:"data"`
	UpdatedBy *string        `json:"updated_by,omitempty"`
}

type validateRequest struct {
	Data map[string]any `json:"data"`
}

type validateResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var body documentCreate
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ClientID == "" || body.Collection == "" {
		writeError(w, errs.New(errs.CodeBadRequest, "client_id and collection_name are required"))
		return
	}
	if err := s.check(r.Context(), body.ClientID, authz.ResourceDocuments, authz.VerbCreate); err != nil {
		writeError(w, err)
		return
	}
	if body.CreatedBy == nil {
		body.CreatedBy = authz.ActorFromContext(r.Context())
	}
	audit.Annotate(r.Context(), body.ClientID, "")

	doc, err := s.documents.Create(r.Context(), document.CreateRequest{
		ClientID:   body.ClientID,
		VendorID:   body.VendorID,
		Collection: body.Collection,
		Data:       body.Data,
		CreatedBy:  body.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	audit.Annotate(r.Context(), "", doc.Envelope.ID)
	writeJSON(w, http.StatusCreated, "Document created successfully in "+body.Collection, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	clientID, collection := chi.URLParam(r, "clientID"), chi.URLParam(r, "collection")
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := s.documents.List(r.Context(), document.ListRequest{
		ClientID:   clientID,
		Collection: collection,
		Skip:       skip,
		Limit:      limit,
		Filter:     r.URL.Query().Get("filter"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Retrieved %d documents from %s", len(docs), collection), docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	clientID, collection := chi.URLParam(r, "clientID"), chi.URLParam(r, "collection")
	doc, err := s.documents.Get(r.Context(), clientID, collection, chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Document retrieved from "+collection, doc)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	var body documentUpdate
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.UpdatedBy == nil {
		body.UpdatedBy = authz.ActorFromContext(r.Context())
	}
	collection := chi.URLParam(r, "collection")
	doc, err := s.documents.Update(r.Context(), document.UpdateRequest{
		ClientID:   chi.URLParam(r, "clientID"),
		Collection: collection,
		ID:         chi.URLParam(r, "documentID"),
		Data:       body.Data,
		UpdatedBy:  body.UpdatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Document updated successfully in "+collection, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	clientID, collection := chi.URLParam(r, "clientID"), chi.URLParam(r, "collection")
	if err := s.documents.Delete(r.Context(), clientID, collection, chi.URLParam(r, "documentID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Document deleted successfully from "+collection, nil)
}

// validateDocument runs the active schema's rules without storing anything.
// ?partial=true applies update semantics.
func (s *Server) validateDocument(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	partial := false
	if v := r.URL.Query().Get("partial"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, errs.Newf(errs.CodeBadRequest, "partial must be a boolean, got %q", v))
			return
		}
		partial = p
	}

	collection := chi.URLParam(r, "collection")
	violations, err := s.documents.Validate(r.Context(), chi.URLParam(r, "clientID"), collection, body.Data, partial)
	if err != nil {
		writeError(w, err)
		return
	}
	if violations == nil {
		violations = []string{}
	}
	msg := "Document is valid for " + collection
	if len(violations) > 0 {
		msg = fmt.Sprintf("Document has %s for %s", pluralize(len(violations), "violation"), collection)
	}
	writeJSON(w, http.StatusOK, msg, validateResult{Valid: len(violations) == 0, Errors: violations})
}
