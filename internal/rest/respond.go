package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondDetail writes an error body of the shape {"detail": "..."}.
func respondDetail(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}
