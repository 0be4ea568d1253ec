package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/hdnotes/server/internal/platform/errors"
)

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}

// writeError maps a domain error to its HTTP status and a short message.
//
// Only messages carried by a structured error reach the client; anything else
// is logged and reported as an internal error.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeMessage(w, appErr.Code.HTTPStatus(), appErr.Message)
		return
	}
	log.Printf("internal error: %v", err)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}
