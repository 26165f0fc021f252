package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 30 * time.Second
	relayPath      = "/api/webhook"
	testMessage    = "Test message from NexaraBot Transcriber"
)

type Config struct {
	Timeout time.Duration
	Logger  zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// Dispatcher posts envelopes. It never retries.
type Dispatcher struct {
	http *resty.Client
	log  zerolog.Logger
	now  func() time.Time
}

func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		http: resty.New().SetTimeout(cfg.Timeout),
		log:  cfg.Logger.With().Str("component", "webhook").Logger(),
		now:  cfg.Now,
	}
}

// relayRequest is the body accepted by the relay's webhook endpoint.
type relayRequest struct {
	WebhookURL string   `json:"webhookUrl"`
	Payload    Envelope `json:"payload"`
}

type relayResponse struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
}

// Send delivers a transcription result to target.
func (d *Dispatcher) Send(ctx context.Context, target *Target, result *nexara.Result, meta UserMeta) error {
	if result == nil {
		return d.SendText(ctx, target, "", nil, meta)
	}
	return d.SendText(ctx, target, result.FormattedText, result.RawResponse, meta)
}

// SendText delivers text with an optional raw service response.
func (d *Dispatcher) SendText(ctx context.Context, target *Target, text string, raw json.RawMessage, meta UserMeta) error {
	if target == nil || strings.TrimSpace(target.URL) == "" {
		d.log.Warn().Msg("Webhook is not configured, skipping delivery")
		return ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		d.log.Warn().Str("webhook", target.Name).Msg("No text to send")
		return ErrNothingToSend
	}

	env := NewEnvelope(text, raw, meta, d.now())
	d.log.Info().Str("webhook", target.Name).Int("chars", len(env.Text)).Msg("Sending transcript")

	if err := d.post(ctx, target, env, true); err != nil {
		d.log.Error().Err(err).Str("webhook", target.Name).Msg("Webhook delivery failed")
		return err
	}

	d.log.Info().Str("webhook", target.Name).Int("chars", len(env.Text)).Msg("Transcript delivered")
	return nil
}

// Test validates the settings and posts a fixed message.
func (d *Dispatcher) Test(ctx context.Context, target *Target, meta UserMeta) error {
	warnings, err := Validate(target, meta)
	for _, w := range warnings {
		d.log.Warn().Msg(w)
	}
	if err != nil {
		return err
	}

	if meta.Name == "" {
		meta.Name = "Test User"
	}
	if meta.TelegramID == "" {
		meta.TelegramID = "test_id"
	}

	env := NewEnvelope(testMessage, nil, meta, d.now())
	if err := d.post(ctx, target, env, false); err != nil {
		return err
	}
	d.log.Info().Str("webhook", target.Name).Msg("Webhook test succeeded")
	return nil
}

func (d *Dispatcher) post(ctx context.Context, target *Target, env Envelope, withUserAgent bool) error {
	req := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")

	url := target.URL
	if target.Relay != "" {
		url = strings.TrimRight(target.Relay, "/") + relayPath
		req.SetBody(relayRequest{WebhookURL: target.URL, Payload: env})
	} else {
		req.SetBody(env)
		if withUserAgent {
			req.SetHeader("User-Agent", UserAgent)
		}
	}

	resp, err := req.Post(url)
	if err != nil {
		return &DeliveryError{Target: target.Name, Err: err}
	}
	if !resp.IsSuccess() {
		return &DeliveryError{
			Target: target.Name,
			Err:    &HTTPError{Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())},
		}
	}

	if target.Relay != "" {
		var rr relayResponse
		if err := json.Unmarshal(resp.Body(), &rr); err == nil && !rr.Success {
			d.log.Warn().Str("webhook", target.Name).Msg("Relay reported an unsuccessful delivery")
		}
	}
	return nil
}
