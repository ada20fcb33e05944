package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/familiar-chat/mediagate/internal/api/dto"
	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/media"
	"github.com/familiar-chat/mediagate/internal/presence"
)

var errMissingFile = errors.New("missing file")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dto.ErrorResponse{Message: message})
}

// writeFailure maps a domain error onto its status code. Anything
// unrecognized is a 500.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, media.ErrUnsupportedMedia):
		writeError(w, http.StatusBadRequest, "Unsupported media type")
	case errors.Is(err, errMissingFile):
		writeError(w, http.StatusBadRequest, "File is required")
	case errors.Is(err, media.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, presence.ErrVisitorNotFound):
		writeError(w, http.StatusNotFound, "Visitor not found")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
