package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/nexara"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type upstreamHit struct {
	calls  atomic.Int32
	auth   string
	fields map[string]string
	file   []byte
	name   string
	mime   string
	body   []byte
}

func newUpstream(t *testing.T, status int, reply string, hit *upstreamHit) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.calls.Add(1)
		hit.auth = r.Header.Get("Authorization")
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				hit.fields = map[string]string{}
				for k, v := range r.MultipartForm.Value {
					hit.fields[k] = v[0]
				}
				if f, hdr, err := r.FormFile("file"); err == nil {
					hit.file, _ = io.ReadAll(f)
					hit.name = hdr.Filename
					hit.mime = hdr.Header.Get("Content-Type")
					f.Close()
				}
			}
		} else {
			hit.body, _ = io.ReadAll(r.Body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstream string) config.ProxyConfig {
	return config.ProxyConfig{
		Host:           "127.0.0.1",
		Port:           config.DefaultProxyPort,
		UpstreamURL:    upstream,
		MaxUploadMB:    1,
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(upstream string) *Server {
	return New(testConfig(upstream), zerolog.Nop())
}

func uploadRequest(t *testing.T, file []byte, fields map[string]string, apiKey string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="recording.wav"`}
		h["Content-Type"] = []string{"audio/wav"}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if apiKey != "" {
		req.Header.Set(nexara.APIKeyHeader, apiKey)
	}
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTranscribeForwardsUpload(t *testing.T) {
	var hit upstreamHit
	up := newUpstream(t, http.StatusOK, `{"text":"hello"}`, &hit)

	fields := map[string]string{
		"task":                "diarize",
		"language":            "ru",
		"diarization_setting": "meeting",
		"num_speakers":        "2",
		"ignored":             "x",
	}
	rec := serve(newTestServer(up.URL), uploadRequest(t, []byte("RIFFdata"), fields, "secret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"hello"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	assert.Equal(t, "Bearer secret", hit.auth)
	assert.Equal(t, []byte("RIFFdata"), hit.file)
	assert.Equal(t, "recording.wav", hit.name)
	assert.Equal(t, "audio/wav", hit.mime)
	assert.Equal(t, map[string]string{
		"task":                "diarize",
		"language":            "ru",
		"diarization_setting": "meeting",
		"num_speakers":        "2",
	}, hit.fields)
}

func TestTranscribeRejectsBadUploads(t *testing.T) {
	tests := []struct {
		name    string
		file    []byte
		apiKey  string
		status  int
		message string
	}{
		{"no file", nil, "secret", http.StatusBadRequest, "No file uploaded."},
		{"empty file", []byte{}, "secret", http.StatusBadRequest, "Received an empty file."},
		{"missing key", []byte("RIFF"), "", http.StatusUnauthorized, "Nexara API key is missing."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hit upstreamHit
			up := newUpstream(t, http.StatusOK, `{"text":"x"}`, &hit)

			rec := serve(newTestServer(up.URL), uploadRequest(t, tt.file, map[string]string{"response_format": "json"}, tt.apiKey))

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.message+`"}`, rec.Body.String())
			assert.Zero(t, hit.calls.Load(), "upstream must not be called")
		})
	}
}

func TestTranscribePassesUpstreamErrors(t *testing.T) {
	var hit upstreamHit
	up := newUpstream(t, http.StatusUnauthorized, `{"detail":"Invalid API key"}`, &hit)

	rec := serve(newTestServer(up.URL), uploadRequest(t, []byte("RIFF"), nil, "bad"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid API key"}`, rec.Body.String())
}

func TestTranscribeUpstreamUnreachable(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	url := up.URL
	up.Close()

	rec := serve(newTestServer(url), uploadRequest(t, []byte("RIFF"), nil, "secret"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func webhookRequestBody(t *testing.T, v any) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookForwardsPayload(t *testing.T) {
	var hit upstreamHit
	hook := newUpstream(t, http.StatusOK, `{"received":true}`, &hit)

	payload := map[string]any{"name": "Alice", "text": "hello"}
	rec := serve(newTestServer("http://unused.example"), webhookRequestBody(t, map[string]any{
		"webhookUrl": hook.URL,
		"payload":    payload,
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"response":{"received":true}}`, rec.Body.String())
	assert.JSONEq(t, `{"name":"Alice","text":"hello"}`, string(hit.body))
}

func TestWebhookPlainTextResponse(t *testing.T) {
	var hit upstreamHit
	hook := newUpstream(t, http.StatusOK, `Workflow was started`, &hit)

	rec := serve(newTestServer("http://unused.example"), webhookRequestBody(t, map[string]any{
		"webhookUrl": hook.URL,
		"payload":    map[string]any{"text": "hi"},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"response":"Workflow was started"}`, rec.Body.String())
}

func TestWebhookRequiresFields(t *testing.T) {
	s := newTestServer("http://unused.example")

	for _, body := range []any{
		map[string]any{"payload": map[string]any{"text": "hi"}},
		map[string]any{"webhookUrl": "https://hooks.example/x"},
		map[string]any{"webhookUrl": "https://hooks.example/x", "payload": nil},
	} {
		rec := serve(s, webhookRequestBody(t, body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"webhookUrl and payload are required."}`, rec.Body.String())
	}
}

func TestWebhookPassesErrors(t *testing.T) {
	var hit upstreamHit
	hook := newUpstream(t, http.StatusNotFound, `{"message":"webhook not registered"}`, &hit)

	rec := serve(newTestServer("http://unused.example"), webhookRequestBody(t, map[string]any{
		"webhookUrl": hook.URL,
		"payload":    map[string]any{"text": "hi"},
	}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"webhook not registered"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer("http://unused.example"), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/transcribe", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(newTestServer("http://unused.example"), req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Nexara</h1>"), 0o600))

	cfg := testConfig("http://unused.example")
	cfg.StaticDir = dir
	rec := serve(New(cfg, zerolog.Nop()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nexara")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer("http://unused.example").Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
