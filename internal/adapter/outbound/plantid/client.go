package plantid

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/floralens/server/internal/port/outbound"
)

// Client implements outbound.IdentificationProviderPort for the Plant.id v3 API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new Plant.id client with the given HTTP client.
func NewClient(baseURL, apiKey string, client *http.Client) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "plantid"
}

// identificationRequest is the Plant.id request payload.
type identificationRequest struct {
	Images    []string `json:"images"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// identificationResponse is the subset of the Plant.id response we consume.
type identificationResponse struct {
	Result struct {
		Classification struct {
			Suggestions []struct {
				Name        string  `json:"name"`
				Probability float64 `json:"probability"`
				Details     *struct {
					CommonNames []string `json:"common_names"`
				} `json:"details,omitempty"`
			} `json:"suggestions"`
		} `json:"classification"`
	} `json:"result"`
}

// Identify submits the image and returns ranked species suggestions.
func (c *Client) Identify(ctx context.Context, image []byte, params outbound.IdentifyParams) (*outbound.RawIdentification, error) {
	payload := identificationRequest{
		Images:    []string{base64.StdEncoding.EncodeToString(image)},
		Latitude:  params.Latitude,
		Longitude: params.Longitude,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/identification", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identification request: %w", err)
	}
	defer resp.Body.Close()

	// The response body stays out of the error so upstream detail never
	// reaches logs or callers.
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("identification returned status %d", resp.StatusCode)
	}

	var idResp identificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&idResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	raw := &outbound.RawIdentification{Provider: c.Name()}
	for _, s := range idResp.Result.Classification.Suggestions {
		suggestion := outbound.RawSuggestion{
			ScientificName: s.Name,
			Probability:    s.Probability,
		}
		if s.Details != nil && len(s.Details.CommonNames) > 0 {
			suggestion.PlantName = s.Details.CommonNames[0]
		}
		raw.Suggestions = append(raw.Suggestions, suggestion)
	}

	if len(raw.Suggestions) == 0 {
		return nil, fmt.Errorf("no suggestions in response")
	}

	return raw, nil
}

// Compile-time check
var _ outbound.IdentificationProviderPort = (*Client)(nil)
