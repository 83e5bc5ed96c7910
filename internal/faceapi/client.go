// Package faceapi is a client for the deployed Face API wrapper.
//
// The wrapper accepts two base64 images, forwards them to CompreFace's
// verification endpoint, and answers with a similarity percentage.
package faceapi

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

// Client talks to one wrapper instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the wrapper at baseURL (e.g. http://localhost:5000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PingResponse is the wrapper's index document.
type PingResponse struct {
	Message string `json:"message"`
}

// CompareOptions override the wrapper's CompreFace query parameters.
// Zero values leave the wrapper's defaults in place.
type CompareOptions struct {
	Limit            int     `json:"limit,omitempty"`
	PredictionCount  int     `json:"prediction_count,omitempty"`
	DetProbThreshold float64 `json:"det_prob_threshold,omitempty"`
	FacePlugins      string  `json:"face_plugins,omitempty"`
	Status           string  `json:"status,omitempty"`
}

type compareRequest struct {
	Image1 string `json:"image1"`
	Image2 string `json:"image2"`
	CompareOptions
}

// Comparison is a successful verification. Similarity and Distance are
// percentages; Match is true at 80% similarity and above.
type Comparison struct {
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
	Match      bool    `json:"match"`
}

// APIError is the wrapper's {"error", "details"} response.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("face api returned %d: %s", e.Status, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Ping fetches the wrapper's index.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to face api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var ping PingResponse
	if err := json.NewDecoder(resp.Body).Decode(&ping); err != nil {
		return nil, fmt.Errorf("decoding face api response: %w", err)
	}
	return &ping, nil
}

// Compare sends two encoded images (JPEG, PNG, ...) for verification.
func (c *Client) Compare(ctx context.Context, image1, image2 []byte, opts CompareOptions) (*Comparison, error) {
	if len(image1) == 0 || len(image2) == 0 {
		return nil, fmt.Errorf("both images are required")
	}
	body, err := json.Marshal(compareRequest{
		Image1:         base64.StdEncoding.EncodeToString(image1),
		Image2:         base64.StdEncoding.EncodeToString(image2),
		CompareOptions: opts,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare-faces", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to face api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var cmp Comparison
	if err := json.NewDecoder(resp.Body).Decode(&cmp); err != nil {
		return nil, fmt.Errorf("decoding face api response: %w", err)
	}
	return &cmp, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
		apiErr.Details = strings.TrimSpace(string(data))
	}
	return apiErr
}
