package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ScreenshotClient calls a headless-browser service that renders HTML to PNG.
type ScreenshotClient struct {
	client   HTTPClient
	endpoint string
	token    string
}

// NewScreenshotClient creates a client for the renderer at endpoint.
func NewScreenshotClient(client HTTPClient, endpoint, token string) *ScreenshotClient {
	return &ScreenshotClient{client: client, endpoint: endpoint, token: token}
}

type screenshotRequest struct {
	HTML     string            `json:"html"`
	Viewport screenshotSize    `json:"viewport"`
	Options  screenshotOptions `json:"options"`
}

type screenshotSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type screenshotOptions struct {
	Type string `json:"type"`
}

// Screenshot renders html at the given viewport size.
func (c *ScreenshotClient) Screenshot(ctx context.Context, html string, vp Viewport) ([]byte, error) {
	body, err := json.Marshal(screenshotRequest{
		HTML:     html,
		Viewport: screenshotSize{Width: vp.Width, Height: vp.Height},
		Options:  screenshotOptions{Type: "png"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.endpoint
	if c.token != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse renderer url: %w", err)
		}
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("renderer status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(img) == 0 {
		return nil, errors.New("renderer returned empty body")
	}
	return img, nil
}
