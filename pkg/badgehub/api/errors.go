package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP statuses: validation faults
// become 400, conflicts 409, missing resources 404, everything else 500
// with the detail kept out of the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case badgehub.IsValidationError(err):
		status = http.StatusBadRequest
	case badgehub.IsConflictError(err):
		status = http.StatusConflict
	case badgehub.IsNotFoundError(err):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Internal error", "path", r.URL.Path, "error", err)
		message = "internal server error"
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
