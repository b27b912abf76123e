package utils

import (
	"encoding/json"
	"net/http"

	"github.com/zjoart/paystack-settlements/pkg/logger"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func BuildSuccessResponse(w http.ResponseWriter, code int, message string, data interface{}) {
	writeJSON(w, code, Response{Status: "success", Message: message, Data: data})
}

func BuildErrorResponse(w http.ResponseWriter, code int, message string, errs interface{}) {
	writeJSON(w, code, Response{Status: "error", Message: message, Errors: errs})
}

func writeJSON(w http.ResponseWriter, code int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", logger.WithError(err))
	}
}
