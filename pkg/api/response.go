package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ginthi/docregistry/pkg/errs"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: status < http.StatusBadRequest,
		Message: message,
		Data:    data,
	})
}

// writeError maps err onto a status. Validation errors carry their
// violations in data; every other error has null data.
func writeError(w http.ResponseWriter, err error) {
	var data any
	if errs.HasCode(err, errs.CodeValidation) {
		data = errs.ViolationsOf(err)
	}
	writeJSON(w, statusFor(errs.CodeOf(err)), err.Error(), data)
}

func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeValidation:
		return http.StatusUnprocessableEntity
	case errs.CodeForbidden:
		return http.StatusForbidden
	case errs.CodeBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON object from the request into v. Untyped numbers
// arrive as json.Number so integers past 2^53 keep every digit.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errs.New(errs.CodeBadRequest, "Request body is required")
		case errors.As(err, &maxErr):
			return errs.Newf(errs.CodeBadRequest, "Request body exceeds %d bytes", maxErr.Limit)
		}
		return errs.Newf(errs.CodeBadRequest, "Invalid request body: %v", err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.Newf(errs.CodeBadRequest, "%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

// pluralize returns "1 schema" or "2 schemas".
func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
