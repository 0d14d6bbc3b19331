package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// setAttachment sets the headers of a file response. A negative size omits
// Content-Length.
func setAttachment(w http.ResponseWriter, filename, contentType string, size int64) {
	h := w.Header()
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	if size >= 0 {
		h.Set("Content-Length", fmt.Sprintf("%d", size))
	}
	h.Set("X-Content-Type-Options", "nosniff")
}
