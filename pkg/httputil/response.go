package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope wraps every API response body
type Envelope struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"` // example "invalid_intent", "not_found"
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// JSON writes body as {"status":"ok","data":...}; an *APIError body becomes the error envelope
func JSON(w http.ResponseWriter, status int, body any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	if body == nil && status == http.StatusNoContent {
		w.WriteHeader(status)
		return nil
	}

	env := Envelope{Status: StatusOK, Data: body}
	switch e := body.(type) {
	case *APIError:
		env = Envelope{Status: StatusError, Error: e}
	case APIError:
		env = Envelope{Status: StatusError, Error: &e}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(env)
}

// Error writes the error envelope tagged with the chi request id
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) error {
	return JSON(w, status, &APIError{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: middleware.GetReqID(r.Context()),
	}, map[string]string{
		"Cache-Control": "no-store",
	})
}

// DecodeJSON reads exactly one JSON value of at most limit bytes into dst
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if dec.More() {
		return errors.New("body must hold a single JSON value")
	}
	return nil
}
