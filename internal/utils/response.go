package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-auction/internal/auctionerr"
)

type APIResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      interface{}       `json:"data,omitempty"`
	Error     *auctionerr.Error `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message string, err *auctionerr.Error) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     err,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError maps err through the error taxonomy. Unknown errors are reported
// as InternalError without their text.
func WriteError(w http.ResponseWriter, err error) {
	e := auctionerr.From(err)
	WriteJSON(w, auctionerr.HTTPStatus(err), ErrorResponse(e.Message, e))
}
