package httpclient

import (
	"context"
	"net/http"
	"time"
)

// ClientType represents the type of HTTP client configuration
type ClientType string

const (
	// APIClient talks to the MediaWiki API and identifies itself with the configured User-Agent
	APIClient ClientType = "api"

	// ImageClient downloads cover images and asks the image CDN for WebP renditions
	ImageClient ClientType = "image"
)

// HTTPClient wraps an http.Client with configuration
type HTTPClient struct {
	client     *http.Client
	clientType ClientType
	userAgent  string
}

// NewClient creates a new HTTP client with the specified type
func NewClient(clientType ClientType, userAgent string) *HTTPClient {
	client := &http.Client{
		Timeout: 2 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Follow up to 10 redirects
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPClient{
		client:     client,
		clientType: clientType,
		userAgent:  userAgent,
	}
}

// Do executes an HTTP request with the appropriate headers for the client type
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get is a convenience method for GET requests
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// setHeaders sets the appropriate headers based on client type
func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	switch c.clientType {
	case APIClient:
		req.Header.Set("Accept", "application/json")

	case ImageClient:
		// The wiki CDN serves WebP when asked; anything else is rejected downstream
		req.Header.Set("Accept", "image/webp")

	default:
		// Default: use Go's default headers
	}
}
