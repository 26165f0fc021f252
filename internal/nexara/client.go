// Package nexara talks to the Nexara speech-to-text API, either directly or
// through the relay server.
package nexara

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/petems/nexara-tray/internal/capture"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.nexara.ru/api/v1"
	DefaultTimeout = 5 * time.Minute

	// APIKeyHeader carries the key when requests go through the relay.
	APIKeyHeader = "x-nexara-api-key"

	transcriptionsPath = "/audio/transcriptions"
	proxyTranscribe    = "/api/transcribe"
	diarizeTask        = "diarize"
)

// Options is snapshotted when a recording starts.
type Options struct {
	Diarization bool
	// DiarizationMode is one of general, meeting, telephonic.
	DiarizationMode string
	// NumSpeakers is sent only when in 1..10.
	NumSpeakers int
	// Language is an ISO code; empty or "auto" lets the service detect it.
	Language string
}

// Credentials select the endpoint. A non-empty ProxyURL routes the call
// through the relay instead of calling BaseURL directly.
type Credentials struct {
	APIKey   string
	BaseURL  string
	ProxyURL string
}

type Segment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type Result struct {
	FormattedText string
	// RawResponse is the service answer, untouched.
	RawResponse json.RawMessage
	IsDiarized  bool
	Warnings    []string
}

type response struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

type Config struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().SetTimeout(cfg.Timeout),
		log:  cfg.Logger.With().Str("component", "nexara").Logger(),
	}
}

// ValidateSettings checks that a request can be attempted at all.
func ValidateSettings(creds Credentials) error {
	if strings.TrimSpace(creds.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if creds.ProxyURL == "" && strings.TrimSpace(creds.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// Transcribe uploads a recording and normalizes the answer.
func (c *Client) Transcribe(ctx context.Context, art *capture.Artifact, opts Options, creds Credentials) (*Result, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if art == nil {
		return nil, fmt.Errorf("nexara: no recording to transcribe")
	}

	fields := formFields(opts)
	req := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", capture.FileNameFor(art.MimeType), art.MimeType, bytes.NewReader(art.Bytes)).
		SetMultipartFormData(fields)

	url := endpoint(creds)
	if creds.ProxyURL != "" {
		req.SetHeader(APIKeyHeader, creds.APIKey)
	} else {
		req.SetAuthToken(creds.APIKey)
	}

	c.log.Info().
		Int("bytes", len(art.Bytes)).
		Str("mime", art.MimeType).
		Bool("diarization", opts.Diarization).
		Msg("Sending audio for transcription")

	resp, err := req.Post(url)
	if err != nil {
		return nil, fmt.Errorf("nexara: transcription request: %w", err)
	}
	if !resp.IsSuccess() {
		herr := newHTTPError(resp.StatusCode(), resp.Body())
		c.log.Error().Int("status", herr.Status).Str("message", herr.Message).Msg("Transcription failed")
		return nil, herr
	}

	result, err := normalize(resp.Body(), opts)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		c.log.Warn().Msg(w)
	}
	c.log.Info().
		Int("chars", len(result.FormattedText)).
		Bool("diarized", result.IsDiarized).
		Msg("Transcription received")
	return result, nil
}

func endpoint(creds Credentials) string {
	if creds.ProxyURL != "" {
		return strings.TrimRight(creds.ProxyURL, "/") + proxyTranscribe
	}
	base := creds.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + transcriptionsPath
}

// formFields builds the non-file multipart fields. The service ignores
// response_format for diarization, so it is only sent for plain requests.
func formFields(opts Options) map[string]string {
	fields := make(map[string]string)
	if opts.Diarization {
		fields["task"] = diarizeTask
		if opts.NumSpeakers >= 1 && opts.NumSpeakers <= 10 {
			fields["num_speakers"] = strconv.Itoa(opts.NumSpeakers)
		}
		mode := opts.DiarizationMode
		if mode == "" {
			mode = "general"
		}
		fields["diarization_setting"] = mode
	} else {
		fields["response_format"] = "json"
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" && lang != "auto" {
		fields["language"] = lang
	}
	return fields
}

func normalize(body []byte, opts Options) (*Result, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("nexara: decode response: %w", err)
	}

	result := &Result{RawResponse: json.RawMessage(bytes.Clone(body))}

	var text string
	switch {
	case opts.Diarization && len(resp.Segments) > 0:
		lines := make([]string, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			lines = append(lines, s.Speaker+": "+s.Text)
		}
		text = strings.Join(lines, "\n")
		result.IsDiarized = true
	case opts.Diarization:
		text = resp.Text
		result.Warnings = append(result.Warnings, "diarization requested but no speaker segments returned, using plain text")
	default:
		text = resp.Text
	}

	result.FormattedText = strings.TrimSpace(text)
	if result.FormattedText == "" {
		return nil, ErrEmptyResult
	}
	return result, nil
}
