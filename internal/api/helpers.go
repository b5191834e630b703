package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rendis/tally/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON error body. Structured errors keep their
// code and details and pick the status from the code.
func writeError(w http.ResponseWriter, err error) {
	var te *schema.TallyError
	if !errors.As(err, &te) {
		te = schema.NewError(schema.ErrCodeExecution, err.Error())
	}
	writeJSON(w, statusFor(te.Code), map[string]any{"error": te})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeUnknownStep, schema.ErrCodeNoStepForProduct, schema.ErrCodeCircularDependencies:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryDate extracts an optional YYYY-MM-DD query param.
func queryDate(r *http.Request, key string) (schema.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return schema.Date{}, nil
	}
	return schema.ParseDate(v)
}
