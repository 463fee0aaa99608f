// Package httptransport exposes the pipeline's read and preference
// endpoints. Handlers delegate to domain services; transport concerns
// stay here.
package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/apperror"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates domain errors into a consistent JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.CodeInternal {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			code = apperror.CodeNotFound
		case errors.Is(err, sentinel.ErrConflict):
			code = apperror.CodeConflict
		}
	}
	writeJSON(w, apperror.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}
