package auth

import (
	"encoding/json"
	"net/http"
)

// respondErr writes the standard error envelope. Duplicated from
// internal/httpserver rather than imported, since httpserver's domain mounting
// needs to import auth — importing back would cycle.
func respondErr(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "error",
		"detail":     detail,
		"error_code": code,
	})
}
