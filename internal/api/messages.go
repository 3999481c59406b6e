package api

import (
	"encoding/json"
	"time"

	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/models"
)

// Document is a session in its persisted JSON form.
type Document = json.RawMessage

// EncodeDocument encodes a session for a message.
func EncodeDocument(s models.Session) (Document, error) {
	return models.MarshalDocument(s)
}

// DecodeDocument decodes a session from a message.
func DecodeDocument(d Document) (models.Session, error) {
	return models.UnmarshalDocument(d)
}

type GetSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

type GetSessionResponse struct {
	SessionID string    `json:"sessionId"`
	Document  Document  `json:"document"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UpsertSessionRequest struct {
	SessionID string   `json:"sessionId" validate:"required,max=128"`
	Document  Document `json:"document" validate:"required"`
}

type UpsertSessionResponse struct {
	SessionID   string    `json:"sessionId"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type WatchSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

type WatchSessionResponse struct {
	SessionID string   `json:"sessionId"`
	Document  Document `json:"document"`
}

type CreateSessionRequest struct{}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type ExtractReceiptRequest struct {
	// Image is sent base64 encoded.
	Image    []byte `json:"image" validate:"required"`
	MimeType string `json:"mimeType" validate:"required"`
}

type ExtractReceiptResponse struct {
	Items []extraction.Line `json:"items"`
}

type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId" validate:"required,uuid"`
}

type RegisterDeviceResponse struct {
	DeviceID  string    `json:"deviceId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
