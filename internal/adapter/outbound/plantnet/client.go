package plantnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/floralens/server/internal/port/outbound"
)

// Client implements outbound.IdentificationProviderPort for the PlantNet v2 API.
type Client struct {
	baseURL string
	apiKey  string
	project string
	client  *http.Client
}

// NewClient creates a new PlantNet client with the given HTTP client.
// project scopes identification to a PlantNet flora project ("all" if unsure).
func NewClient(baseURL, apiKey, project string, client *http.Client) *Client {
	if project == "" {
		project = "all"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		project: project,
		client:  client,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "plantnet"
}

// identifyResponse is the subset of the PlantNet response we consume.
type identifyResponse struct {
	BestMatch string `json:"bestMatch"`
	Results   []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
			CommonNames                 []string `json:"commonNames"`
		} `json:"species"`
	} `json:"results"`
}

// Identify submits the image and returns ranked species suggestions.
func (c *Client) Identify(ctx context.Context, image []byte, params outbound.IdentifyParams) (*outbound.RawIdentification, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("images", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	for _, organ := range params.Organs {
		if err := writer.WriteField("organs", organ); err != nil {
			return nil, fmt.Errorf("write organ field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/identify/%s?api-key=%s", c.baseURL, c.project, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identify request: %w", err)
	}
	defer resp.Body.Close()

	// The response body stays out of the error so upstream detail never
	// reaches logs or callers.
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("identify returned status %d", resp.StatusCode)
	}

	var idResp identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&idResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	raw := &outbound.RawIdentification{Provider: c.Name()}
	for _, r := range idResp.Results {
		suggestion := outbound.RawSuggestion{
			ScientificName: r.Species.ScientificNameWithoutAuthor,
			Probability:    r.Score,
		}
		if len(r.Species.CommonNames) > 0 {
			suggestion.PlantName = r.Species.CommonNames[0]
		}
		raw.Suggestions = append(raw.Suggestions, suggestion)
	}

	if len(raw.Suggestions) == 0 {
		return nil, fmt.Errorf("no results in response")
	}

	return raw, nil
}

// Compile-time check
var _ outbound.IdentificationProviderPort = (*Client)(nil)
