// Package extraction talks to the receipt extraction service: an external
// vision model that turns a photo of a receipt into line items. The service
// is best effort; its responses are strictly validated and post-processed
// before they reach the catalog.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxImageBytes bounds the size of an uploaded receipt image.
const MaxImageBytes = 10 << 20

var (
	// ErrMalformedResponse wraps every response that is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed extraction response")

	// ErrInvalidImage is returned for empty, oversized or non-image uploads.
	ErrInvalidImage = errors.New("invalid receipt image")
)

// Extractor reads the line items of a receipt image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) ([]Line, error)
}

// Request is the body posted to the extraction service.
type Request struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
}

// Item is one row as returned by the extraction service.
type Item struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price" validate:"required"`
}

// Response is the body returned by the extraction service.
type Response struct {
	Items []Item `json:"items" validate:"required,dive"`
}

// Config configures a Client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerConfig
}

// Ensure Client implements Extractor
var _ Extractor = (*Client)(nil)

// Client calls the extraction service over HTTP.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *Breaker
	validate   *validator.Validate
}

// NewClient returns a client for the service at cfg.URL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    NewBreaker(cfg.Breaker),
		validate:   validator.New(),
	}
}

// BreakerState reports the state of the client's circuit breaker.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// CheckImage validates an upload before it is sent anywhere.
func CheckImage(image []byte, mimeType string) error {
	switch {
	case len(image) == 0:
		return fmt.Errorf("%w: empty", ErrInvalidImage)
	case len(image) > MaxImageBytes:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidImage, len(image), MaxImageBytes)
	case !strings.HasPrefix(mimeType, "image/"):
		return fmt.Errorf("%w: mime type %q", ErrInvalidImage, mimeType)
	}
	return nil
}

// Extract sends the image and returns the normalized line items.
func (c *Client) Extract(ctx context.Context, image []byte, mimeType string) ([]Line, error) {
	if err := CheckImage(image, mimeType); err != nil {
		return nil, err
	}

	var resp Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.call(ctx, Request{
			Image:    base64.StdEncoding.EncodeToString(image),
			MimeType: mimeType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return Normalize(resp.Items), nil
}

func (c *Client) call(ctx context.Context, payload Request) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("extraction: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("extraction: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("extraction: service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return Response{}, fmt.Errorf("extraction: service returned %d", resp.StatusCode)
	}

	return c.decode(resp.Body)
}

// decode rejects unknown fields, trailing data and missing required fields.
func (c *Client) decode(r io.Reader) (Response, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var out Response
	if err := dec.Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return Response{}, fmt.Errorf("%w: trailing data", ErrMalformedResponse)
	}
	if err := c.validate.Struct(out); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
