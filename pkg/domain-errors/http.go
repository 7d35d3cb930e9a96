package derrors

import (
	"encoding/json"
	"net/http"
)

// httpStatus maps domain codes onto HTTP status codes.
func httpStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP renders err as the JSON error body used by every endpoint.
func WriteHTTP(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(CodeOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]string{"message": MessageOf(err)})
}
