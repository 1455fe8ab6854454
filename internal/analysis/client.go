// Package analysis is the client of the image analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/macrocam/internal/errors"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/version"
)

// DefaultBaseURL is the local development address of the analysis service.
const DefaultBaseURL = "http://localhost:8000"

// Image is a selected meal photo.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadImage reads path and checks that it holds image data.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, errors.Wrap(errors.ErrCodeAnalysisImage, "Could not read the selected image", err)
	}
	return NewImage(filepath.Base(path), data)
}

// NewImage sniffs the content type of data and rejects anything that is not an image.
func NewImage(name string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, errors.New(errors.ErrCodeAnalysisImage, "The selected file is empty")
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, errors.New(errors.ErrCodeAnalysisImage, "The selected file is not an image").
			WithSuggestion(fmt.Sprintf("Detected content type %s", contentType))
	}
	return Image{Name: name, ContentType: contentType, Data: data}, nil
}

// Client calls POST {base}/analyze.
type Client struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewClient creates a client for baseURL. A nil httpClient uses one without
// its own timeout; the transport and the caller's context bound the call.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    httpClient,
		userAgent: version.GetInfo().UserAgent(),
	}
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze uploads img as multipart field "image" and decodes the estimate.
// Any non-success status is a uniform failure; the response body is ignored.
func (c *Client) Analyze(ctx context.Context, img Image) (meal.MacroEstimate, error) {
	body, contentType, err := encodeImage(img)
	if err != nil {
		return meal.MacroEstimate{}, errors.NewAnalysisTransportError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return meal.MacroEstimate{}, errors.NewAnalysisTransportError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return meal.MacroEstimate{}, errors.NewAnalysisTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return meal.MacroEstimate{}, errors.NewAnalysisStatusError(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return meal.MacroEstimate{}, errors.NewAnalysisTransportError(err)
	}
	return decodeEstimate(data)
}

// Health calls GET {base}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func encodeImage(img Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := img.Name
	if name == "" {
		name = "meal"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeEstimate requires all four fields to be present and numeric.
func decodeEstimate(data []byte) (meal.MacroEstimate, error) {
	var raw struct {
		Calories *float64 `json:"calories"`
		ProteinG *float64 `json:"protein_g"`
		CarbsG   *float64 `json:"carbs_g"`
		FatG     *float64 `json:"fat_g"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return meal.MacroEstimate{}, errors.Wrap(errors.ErrCodeAnalysisInvalid, "Failed to analyze image", err)
	}
	if raw.Calories == nil || raw.ProteinG == nil || raw.CarbsG == nil || raw.FatG == nil {
		return meal.MacroEstimate{}, errors.New(errors.ErrCodeAnalysisInvalid, "Failed to analyze image").
			WithSuggestion("The analysis response is missing one of calories, protein_g, carbs_g, fat_g")
	}

	est := meal.MacroEstimate{
		Calories: *raw.Calories,
		ProteinG: *raw.ProteinG,
		CarbsG:   *raw.CarbsG,
		FatG:     *raw.FatG,
	}
	if err := est.Validate(); err != nil {
		return meal.MacroEstimate{}, errors.Wrap(errors.ErrCodeAnalysisInvalid, "Failed to analyze image", err)
	}
	return est, nil
}
