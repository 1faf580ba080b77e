// internal/utils/response.go
// Standardized API responses ensure consistency across all endpoints

package utils

import (
	"encoding/json"
	"net/http"
)

// Response is the standard API response structure
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	writeResponse(w, statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeResponse(w, statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// MessageResponse sends a simple message response
func MessageResponse(w http.ResponseWriter, message string, statusCode int) {
	writeResponse(w, statusCode, Response{
		Success: true,
		Message: message,
	})
}

// ErrorDataResponse sends an error response that still carries data
func ErrorDataResponse(w http.ResponseWriter, message string, data interface{}, statusCode int) {
	writeResponse(w, statusCode, Response{
		Success: false,
		Error:   message,
		Data:    data,
	})
}

// DataMessageResponse sends a success response carrying both a message and data
func DataMessageResponse(w http.ResponseWriter, message string, data interface{}, statusCode int) {
	writeResponse(w, statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ValidationErrorResponse sends a 400 with the list of field errors
func ValidationErrorResponse(w http.ResponseWriter, message string, errs interface{}) {
	writeResponse(w, http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Errors:  errs,
	})
}

func writeResponse(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
