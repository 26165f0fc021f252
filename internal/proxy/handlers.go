package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/petems/nexara-tray/internal/nexara"
)

const internalError = "Internal Server Error"

// forwardedFields are the form fields passed on to the Nexara API.
var forwardedFields = []string{"response_format", "task", "language", "diarization_setting", "num_speakers"}

var validate = validator.New()

func (s *Server) transcribe(c *gin.Context) {
	log := s.log.With().Str(requestIDKey, c.GetString(requestIDKey)).Logger()

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Upload exceeds the size limit")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large."})
			return
		}
		log.Warn().Err(err).Msg("No file received")
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded."})
		return
	}

	contentType := fh.Header.Get("Content-Type")
	log.Info().
		Str("file", fh.Filename).
		Str("mime", contentType).
		Int64("size", fh.Size).
		Msg("Received file")

	if fh.Size == 0 {
		log.Warn().Msg("Received an empty file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Received an empty file."})
		return
	}

	apiKey := c.GetHeader(nexara.APIKeyHeader)
	if apiKey == "" {
		log.Warn().Msg("Nexara API key is missing from headers")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Nexara API key is missing."})
		return
	}

	f, err := fh.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalError})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalError})
		return
	}

	fields := make(map[string]string)
	for _, name := range forwardedFields {
		if v := c.PostForm(name); v != "" {
			fields[name] = v
		}
	}

	log.Info().Str("upstream", s.cfg.UpstreamURL).Msg("Forwarding to Nexara API")
	resp, err := s.http.R().
		SetContext(c.Request.Context()).
		SetAuthToken(apiKey).
		SetMultipartField("file", fh.Filename, contentType, bytes.NewReader(data)).
		SetMultipartFormData(fields).
		Post(s.cfg.UpstreamURL)
	if err != nil {
		log.Error().Err(err).Msg("Error proxying to Nexara")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalError})
		return
	}

	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("Nexara API returned an error")
	} else {
		log.Info().Msg("Success from Nexara API")
	}
	relay(c, resp)
}

type webhookRequest struct {
	WebhookURL string          `json:"webhookUrl"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) webhook(c *gin.Context) {
	log := s.log.With().Str(requestIDKey, c.GetString(requestIDKey)).Logger()

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WebhookURL == "" || isEmptyJSON(req.Payload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhookUrl and payload are required."})
		return
	}
	if err := validate.Var(req.WebhookURL, "url"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhookUrl must be a valid URL."})
		return
	}

	log.Info().Str("webhook", req.WebhookURL).Msg("Forwarding to webhook")
	resp, err := s.http.R().
		SetContext(c.Request.Context()).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(req.Payload)).
		Post(req.WebhookURL)
	if err != nil {
		log.Error().Err(err).Msg("Error forwarding to webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalError})
		return
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("Webhook returned an error")
		relay(c, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "response": jsonOrString(resp.Body())})
}

// relay copies an upstream answer: JSON bodies verbatim, anything else as
// a JSON string. The upstream status is kept.
func relay(c *gin.Context, resp *resty.Response) {
	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		if resp.IsError() {
			c.JSON(resp.StatusCode(), gin.H{"error": internalError})
		} else {
			c.Status(resp.StatusCode())
		}
		return
	}
	if json.Valid(body) {
		c.Data(resp.StatusCode(), "application/json; charset=utf-8", body)
		return
	}
	c.JSON(resp.StatusCode(), string(body))
}

func jsonOrString(body []byte) any {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
