package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/identra/server/internal/auth"
)

// respondJSON sends a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondAuthError maps the auth error taxonomy onto HTTP statuses without
// leaking internal detail for anything unexpected.
func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidRequest.Error())
	case errors.Is(err, auth.ErrPasswordMismatch):
		respondWithError(w, http.StatusBadRequest, auth.ErrPasswordMismatch.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, auth.ErrNotFound.Error())
	case errors.Is(err, auth.ErrInvalidOrExpired):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidOrExpired.Error())
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, auth.ErrPermissionDenied):
		respondWithError(w, http.StatusForbidden, auth.ErrPermissionDenied.Error())
	default:
		log.Printf("internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}

// optional converts a trimmed string into a nullable column value.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
