package handler

import (
	"net/http"
	"time"
)

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{
			"status":    "OK",
			"message":   "Server is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// NotFound answers every unmatched route.
func NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{
			"success": false,
			"message": "Route " + r.URL.RequestURI() + " not found",
		})
	}
}
