package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError replies with {"error": msg} under the given status, the
// same envelope the handlers use for their failures.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
