package nexara

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey  = errors.New("nexara: API key is not configured")
	ErrMissingBaseURL = errors.New("nexara: base URL is not configured")
	// ErrEmptyResult is returned when the service answered with no text.
	ErrEmptyResult = errors.New("nexara: transcription is empty")
)

// HTTPError is a non-2xx answer from the transcription endpoint.
type HTTPError struct {
	Status  int
	Body    string
	Message string
}

func (e *HTTPError) Error() string {
	return "nexara: " + e.Message
}

// IsAuth reports whether the service rejected the credentials.
func (e *HTTPError) IsAuth() bool {
	return e.Status == 401 || e.Status == 403
}

func newHTTPError(status int, body []byte) *HTTPError {
	return &HTTPError{
		Status:  status,
		Body:    string(body),
		Message: errorMessage(status, body),
	}
}

// errorMessage picks error.message, then detail, then a plain error string,
// falling back to "HTTP <status>".
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if msg := detailMessage(payload.Detail); msg != "" {
			return msg
		}
		var plain string
		if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

// detailMessage handles both a string detail and a list of validation items.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
