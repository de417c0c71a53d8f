// Package handler provides the console gateway's HTTP handlers, bridging
// browser UI events to the client workflow components.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/servicechat/console/internal/api"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeAPIError maps the transport error taxonomy onto gateway responses:
// local validation is a 400, a backend rejection keeps its status and
// message, and a transport failure is a 502 from the gateway's view.
func writeAPIError(w http.ResponseWriter, err error) {
	var validation *api.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	}
	var rejection *api.BusinessRejection
	if errors.As(err, &rejection) {
		status := rejection.Status
		if status < 400 {
			status = http.StatusBadRequest
		}
		writeError(w, status, rejection.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
