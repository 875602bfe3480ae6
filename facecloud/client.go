package facecloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	returnFaceAttributes  = "age,gender,headPose,smile,facialHair,glasses,emotion,hair"

	// responses larger than this are rejected rather than buffered
	maxResponseBytes = 8 << 20
)

// Rectangle is the service's bounding box representation: top-left corner
// plus extent.
type Rectangle struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FaceRecord is one detected face. Attribute fields beyond the rectangle
// and identifier are opaque to this system and survive only in the raw
// payload.
type FaceRecord struct {
	FaceID        string    `json:"faceId"`
	FaceRectangle Rectangle `json:"faceRectangle"`
}

// Result holds the parsed face records together with the raw response
// body, which callers cache verbatim.
type Result struct {
	Faces []FaceRecord
	Raw   json.RawMessage
}

// Client calls the external face detection service. The zero value is not
// usable; construct with NewClient.
type Client struct {
	serviceURL      string
	subscriptionKey string
	httpClient      *http.Client
}

// NewClient builds a client for the given service endpoint. The timeout
// bounds the full request/response round trip; the upstream service is
// slow enough that hanging forever is the realistic failure mode.
func NewClient(serviceURL, subscriptionKey string, timeout time.Duration) *Client {
	return &Client{
		serviceURL:      serviceURL,
		subscriptionKey: subscriptionKey,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has an endpoint and credentials.
func (c *Client) Configured() bool {
	return c.serviceURL != "" && c.subscriptionKey != ""
}

// Detect posts raw image bytes to the detection service and returns the
// parsed face records plus the raw response payload. Any transport
// failure, non-2xx status, or malformed body is returned as an error; no
// partial results are produced.
func (c *Client) Detect(ctx context.Context, image io.Reader) (*Result, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("face detection service is not configured")
	}

	params := url.Values{}
	params.Set("returnFaceId", "true")
	params.Set("returnFaceLandmarks", "false")
	params.Set("returnFaceAttributes", returnFaceAttributes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"?"+params.Encode(), image)
	if err != nil {
		return nil, fmt.Errorf("failed to build detection request: %w", err)
	}
	req.Header.Set(subscriptionKeyHeader, c.subscriptionKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read detection response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var faces []FaceRecord
	if err := json.Unmarshal(body, &faces); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	return &Result{Faces: faces, Raw: json.RawMessage(body)}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
