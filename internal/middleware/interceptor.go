package middleware

import (
	"context"

	"connectrpc.com/connect"
)

// interceptor applies the same wrapping to unary calls and to server-side
// streams. Client-side streams pass through.
type interceptor struct {
	unary  func(connect.UnaryFunc) connect.UnaryFunc
	stream func(connect.StreamingHandlerFunc) connect.StreamingHandlerFunc
}

var _ connect.Interceptor = (*interceptor)(nil)

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return i.unary(next)
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return i.stream(next)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// DeviceIDKey is the context key of the device that sent the request.
const DeviceIDKey contextKey = "device_id"

// GetDeviceID extracts the device ID from the context.
// Returns empty string if not found.
func GetDeviceID(ctx context.Context) string {
	deviceID, _ := ctx.Value(DeviceIDKey).(string)
	return deviceID
}

// WithDeviceID returns a context tagged with the device ID.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, DeviceIDKey, deviceID)
}
