package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the Supabase REST client.
type Client struct {
	config Config
	http   *http.Client

	baseURL string
	restURL string
	authURL string

	auth     *AuthClient
	database *DatabaseClient
}

// New creates a client for the project in cfg.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key is required")
	}

	baseURL := strings.TrimRight(cfg.URL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid project URL: %q", cfg.URL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		config:  cfg,
		http:    httpClient,
		baseURL: baseURL,
		restURL: baseURL + "/rest/v1",
		authURL: baseURL + "/auth/v1",
	}
	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}
	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient {
	return c.auth
}

// Database returns the database client.
func (c *Client) Database() *DatabaseClient {
	return c.database
}

// request performs an HTTP request with the anon key, or with accessToken as
// the bearer when it is set.
func (c *Client) request(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, accessToken string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.config.AnonKey)
	bearer := c.config.AnonKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// parseError parses an error response. Auth and PostgREST use different shapes.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             interface{} `json:"code"`
		ErrorCode        string      `json:"error_code"`
		Message          string      `json:"message"`
		Msg              string      `json:"msg"`
		Details          string      `json:"details"`
		Hint             string      `json:"hint"`
		Error            string      `json:"error"`
		ErrorDescription string      `json:"error_description"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return &Error{Code: "unknown", Message: msg, StatusCode: statusCode}
	}

	msg := firstNonEmpty(errResp.ErrorDescription, errResp.Msg, errResp.Message, errResp.Error, http.StatusText(statusCode))
	code := errResp.ErrorCode
	if code == "" && errResp.Code != nil {
		code = fmt.Sprint(errResp.Code)
	}

	return &Error{
		Code:       code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
