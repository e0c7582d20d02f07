package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxIngestBodyBytes int64 = 1 << 20 // 1 MiB

func decodeJSONBytes(body []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, errCode, message string, details interface{}, retryable bool) {
	writeJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":      errCode,
			"message":   message,
			"details":   details,
			"retryable": retryable,
		},
	})
}

func readBodyLimited(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return io.ReadAll(r.Body)
}

// readBody writes the error response itself and reports whether the caller
// may continue.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readBodyLimited(w, r, maxIngestBodyBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large", nil, false)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read body", nil, false)
		return nil, false
	}
	return body, true
}
