// Package analyzer is the analysis service behind POST /analyze: it asks a
// vision model for a macro estimate of a meal photo.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the vision model used for meal photos.
	DefaultModel = "gpt-4.1-mini"
)

// Prompt is sent with every image.
const Prompt = `
Analyze this meal photo and estimate:

calories
protein_g
carbs_g
fat_g

Return STRICT JSON format:

{
  "calories": number,
  "protein_g": number,
  "carbs_g": number,
  "fat_g": number,
  "foods": [],
  "notes": "",
  "confidence": "low|medium|high"
}
`

// Model estimates the macros of one image.
type Model interface {
	Analyze(ctx context.Context, image []byte, contentType string) (*Result, error)
}

// OpenAIConfig configures the OpenAI model client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI calls the Responses API with an inline image.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input []inputMessage  `json:"input"`
	Text  responsesFormat `json:"text"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type inputContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesFormat struct {
	Format struct {
		Type string `json:"type"`
	} `json:"format"`
}

type responsesResponse struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Status string         `json:"status"`
	Output []outputItem   `json:"output"`
	Error  *responseError `json:"error,omitempty"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content []outputContent `json:"content"`
}

type outputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAI creates an OpenAI model client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &OpenAI{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  client,
	}, nil
}

// ModelName returns the configured model.
func (o *OpenAI) ModelName() string {
	return o.model
}

// Analyze sends the image as a data URL and decodes the JSON answer.
func (o *OpenAI) Analyze(ctx context.Context, image []byte, contentType string) (*Result, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	reqBody := responsesRequest{
		Model: o.model,
		Input: []inputMessage{{
			Role: "user",
			Content: []inputContent{
				{Type: "input_text", Text: Prompt},
				{Type: "input_image", ImageURL: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)},
			},
		}},
	}
	reqBody.Text.Format.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ModelError{Type: ErrorTypeTransport, Err: fmt.Errorf("send request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ModelError{Type: ErrorTypeTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	var resp responsesResponse
	decodeErr := json.Unmarshal(respBody, &resp)

	if httpResp.StatusCode != http.StatusOK {
		if decodeErr == nil && resp.Error != nil {
			return nil, &ModelError{Type: ErrorTypeAPI, Err: fmt.Errorf("openai error: %s", resp.Error.Message)}
		}
		return nil, &ModelError{Type: ErrorTypeAPI, Err: fmt.Errorf("http error %d: %s", httpResp.StatusCode, string(respBody))}
	}
	if decodeErr != nil {
		return nil, &ModelError{Type: ErrorTypeDecode, Err: fmt.Errorf("unmarshal response: %w", decodeErr)}
	}

	text := resp.outputText()
	if text == "" {
		return nil, &ModelError{Type: ErrorTypeDecode, Err: fmt.Errorf("empty model output (status %q)", resp.Status)}
	}
	return ParseResult([]byte(text))
}

// outputText joins every output_text part of the assistant messages.
func (r *responsesResponse) outputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}
