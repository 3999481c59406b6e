// Package gateway is the client side of the remote session service: it
// fetches, saves and watches session documents, reads receipts and
// registers the device.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/middleware"
	"github.com/mmynk/tabsplit/internal/models"
)

// ErrNotFound is returned when the server has no document for a session.
var ErrNotFound = errors.New("session not found")

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	// Token is the device token sent with every request. Empty sends none.
	Token string

	// HTTPClient defaults to a client with a 30s timeout for unary calls.
	// Watch streams always use a client without a timeout.
	HTTPClient *http.Client

	// ReconnectDelay is the pause before a dropped watch stream is
	// reopened. Defaults to 2s.
	ReconnectDelay time.Duration
}

// Client talks to a tabsplit server.
type Client struct {
	sessions       api.SessionServiceClient
	watch          api.SessionServiceClient
	receipts       api.ReceiptServiceClient
	devices        api.DeviceServiceClient
	reconnectDelay time.Duration
}

var _ extraction.Extractor = (*Client)(nil)

// New creates a Client for the server at cfg.BaseURL.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	streamClient := &http.Client{Transport: httpClient.Transport}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	opts := connect.WithInterceptors(middleware.DeviceToken(cfg.Token))
	return &Client{
		sessions:       api.NewSessionServiceClient(httpClient, baseURL, opts),
		watch:          api.NewSessionServiceClient(streamClient, baseURL, opts),
		receipts:       api.NewReceiptServiceClient(httpClient, baseURL, opts),
		devices:        api.NewDeviceServiceClient(httpClient, baseURL, opts),
		reconnectDelay: delay,
	}
}

// FetchSession returns the stored document of a session, or ErrNotFound.
func (c *Client) FetchSession(ctx context.Context, id string) (models.Session, error) {
	resp, err := c.sessions.GetSession(ctx, connect.NewRequest(&api.GetSessionRequest{SessionID: id}))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeNotFound {
			return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.Session{}, fmt.Errorf("fetch session: %w", err)
	}
	s, err := api.DecodeDocument(resp.Msg.Document)
	if err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// UpsertSession overwrites the document of a session.
func (c *Client) UpsertSession(ctx context.Context, id string, s models.Session) error {
	doc, err := api.EncodeDocument(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = c.sessions.UpsertSession(ctx, connect.NewRequest(&api.UpsertSessionRequest{
		SessionID: id,
		Document:  doc,
	}))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// CreateSession asks the server for a new session ID.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	resp, err := c.sessions.CreateSession(ctx, connect.NewRequest(&api.CreateSessionRequest{}))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return resp.Msg.SessionID, nil
}

// Extract sends a receipt image to the server and returns its line items.
func (c *Client) Extract(ctx context.Context, image []byte, mimeType string) ([]extraction.Line, error) {
	if err := extraction.CheckImage(image, mimeType); err != nil {
		return nil, err
	}
	resp, err := c.receipts.ExtractReceipt(ctx, connect.NewRequest(&api.ExtractReceiptRequest{
		Image:    image,
		MimeType: mimeType,
	}))
	if err != nil {
		return nil, fmt.Errorf("extract receipt: %w", err)
	}
	return resp.Msg.Items, nil
}

// RegisterDevice obtains a device token for deviceID.
func (c *Client) RegisterDevice(ctx context.Context, deviceID string) (string, time.Time, error) {
	resp, err := c.devices.RegisterDevice(ctx, connect.NewRequest(&api.RegisterDeviceRequest{DeviceID: deviceID}))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("register device: %w", err)
	}
	return resp.Msg.Token, resp.Msg.ExpiresAt, nil
}
