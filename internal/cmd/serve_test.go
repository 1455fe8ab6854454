package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/macrocam/internal/analysis"
	"github.com/felixgeelhaar/macrocam/internal/config"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/meal"
)

// fakeOpenAI answers the Responses API with a fixed nutrition estimate.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = io.Copy(io.Discard, r.Body)

		text := `{"calories":520,"protein_g":32,"carbs_g":48,"fat_g":18,"foods":[{"name":"rice"}],"notes":"","confidence":"medium"}`
		body, _ := json.Marshal(map[string]any{
			"status": "completed",
			"output": []any{map[string]any{
				"type":    "message",
				"content": []any{map[string]any{"type": "output_text", "text": text}},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func serveConfig(t *testing.T, openaiURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = openaiURL + "/v1"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	return cfg
}

func TestAnalysisServerEndToEnd(t *testing.T) {
	openai := fakeOpenAI(t)
	srv, err := newAnalysisServer(serveConfig(t, openai.URL), log.Nop())
	require.NoError(t, err)

	api := newTestServer(t, srv.Handler())
	client := analysis.NewClient(api.URL, nil)

	require.NoError(t, client.Health(context.Background()))

	img, err := analysis.NewImage("lunch.jpg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	require.NoError(t, err)

	est, err := client.Analyze(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, meal.MacroEstimate{Calories: 520, ProteinG: 32, CarbsG: 48, FatG: 18}, est)
}

func TestAnalysisServerRoutes(t *testing.T) {
	srv, err := newAnalysisServer(serveConfig(t, fakeOpenAI(t).URL), log.Nop())
	require.NoError(t, err)
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"readiness", http.MethodGet, "/health/ready", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"analyze needs POST", http.MethodGet, "/analyze", http.StatusMethodNotAllowed},
		{"analyze needs an image", http.MethodPost, "/analyze", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			if tt.method == http.MethodPost {
				req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
				req.Body = io.NopCloser(strings.NewReader("--x--\r\n"))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAnalysisServerNeedsKey(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""

	_, err := newAnalysisServer(cfg, log.Nop())
	assert.Error(t, err)
}
