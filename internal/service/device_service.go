package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/auth"
)

// DeviceService implements the Connect DeviceService
type DeviceService struct {
	jwtManager *auth.JWTManager
}

var _ api.DeviceServiceHandler = (*DeviceService)(nil)

// NewDeviceService creates a new DeviceService
func NewDeviceService(jwtManager *auth.JWTManager) *DeviceService {
	return &DeviceService{jwtManager: jwtManager}
}

// RegisterDevice issues a token for a device ID generated by the client.
func (s *DeviceService) RegisterDevice(ctx context.Context, req *connect.Request[api.RegisterDeviceRequest]) (*connect.Response[api.RegisterDeviceResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	token, expires, err := s.jwtManager.Generate(req.Msg.DeviceID)
	if err != nil {
		slog.Error("RegisterDevice failed", "device_id", req.Msg.DeviceID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Device registered", "device_id", req.Msg.DeviceID)
	return connect.NewResponse(&api.RegisterDeviceResponse{
		DeviceID:  req.Msg.DeviceID,
		Token:     token,
		ExpiresAt: expires,
	}), nil
}
