/*
Package resp provides helpers for sending standardized HTTP JSON responses.

The HTTP surface of this server is small (health, history replay, upgrade
rejections), so responses carry a status code, a message, and an optional
data payload.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"connectmatch/internal/pkg/logx"
)

// JSONResponse is the envelope returned by every HTTP endpoint.
type JSONResponse struct {
	// Code mirrors the HTTP status code (0 is used for success).
	Code int `json:"code"`

	// Message is a client-friendly status description or error message.
	Message string `json:"message"`

	// Data is the optional response payload.
	Data any `json:"data,omitempty"`
}

// RespondJSON sets the Content-Type and writes the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends a successful HTTP 200 response with the given data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	res := JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	}
	RespondJSON(w, r, http.StatusOK, res)
}

// RespondError sends an error response with the given HTTP status and message.
func RespondError(w http.ResponseWriter, r *http.Request, httpStatus int, message string) {
	res := JSONResponse{
		Code:    httpStatus,
		Message: message,
	}
	RespondJSON(w, r, httpStatus, res)
}
