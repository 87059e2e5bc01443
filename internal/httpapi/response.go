package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeData wraps v in the {"data": ...} envelope spec §6 requires of
// every successful response.
func writeData(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
}

// writeError reports a user-visible failure. Spec §7: 404 for missing
// entities, 400 for malformed path parameters, 500 for store
// unavailability.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": message})
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
