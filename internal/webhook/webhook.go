// Package webhook delivers finished transcripts to a user-selected HTTP
// endpoint, directly or through the relay server.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	UserAgent       = "NexaraBot-Transcriber/1.0"
	DefaultUserName = "Unknown user"

	// dateLayout is RFC 3339 in UTC with millisecond precision.
	dateLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	// ErrNotConfigured means no active target or an empty URL. Callers treat
	// it as a warning, not a failure of the recording.
	ErrNotConfigured = errors.New("webhook: no webhook configured")
	ErrNothingToSend = errors.New("webhook: no text to send")
)

// Target is a named delivery endpoint.
type Target struct {
	Name string
	URL  string
	// Relay, when set, is the base URL of the relay server that forwards
	// the envelope on our behalf.
	Relay string
}

// UserMeta identifies the sender in the envelope.
type UserMeta struct {
	Name       string
	TelegramID string
}

// Envelope is the JSON body posted to the webhook.
type Envelope struct {
	Name string `json:"name"`
	Date string `json:"date"`
	TgID string `json:"tg_id"`
	Text string `json:"text"`
	// TranscriptionData is the raw service response; null when absent.
	TranscriptionData json.RawMessage `json:"transcription_data"`
}

// NewEnvelope builds the payload for text sent at now.
func NewEnvelope(text string, raw json.RawMessage, meta UserMeta, now time.Time) Envelope {
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = DefaultUserName
	}
	return Envelope{
		Name:              name,
		Date:              now.UTC().Format(dateLayout),
		TgID:              meta.TelegramID,
		Text:              strings.TrimSpace(text),
		TranscriptionData: raw,
	}
}

// HTTPError is a non-2xx answer from the webhook or the relay.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

// DeliveryError wraps any failure to deliver to a target.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %q: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// Validate reports blocking problems as an error and cosmetic ones as
// warnings.
func Validate(target *Target, meta UserMeta) (warnings []string, err error) {
	var issues []string

	switch {
	case target == nil || strings.TrimSpace(target.URL) == "":
		issues = append(issues, "no webhook selected or URL is empty")
	case validate.Var(target.URL, "url") != nil:
		issues = append(issues, "webhook URL is not a valid URL")
	}
	if strings.TrimSpace(meta.Name) == "" {
		issues = append(issues, "user name is not set")
	}
	if strings.TrimSpace(meta.TelegramID) == "" {
		warnings = append(warnings, "Telegram ID is not set")
	}

	if len(issues) > 0 {
		return warnings, fmt.Errorf("webhook settings: %s", strings.Join(issues, ", "))
	}
	return warnings, nil
}
