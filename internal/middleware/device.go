package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/auth"
)

// DeviceInterceptor validates the device token if present and tags the
// context with the device ID. Requests without a valid token proceed
// untagged.
func DeviceInterceptor(jwtManager *auth.JWTManager) connect.Interceptor {
	tag := func(ctx context.Context, header http.Header) context.Context {
		if deviceID := deviceFromHeader(jwtManager, header); deviceID != "" {
			return WithDeviceID(ctx, deviceID)
		}
		return ctx
	}
	return &interceptor{
		unary: func(next connect.UnaryFunc) connect.UnaryFunc {
			return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
				return next(tag(ctx, req.Header()), req)
			}
		},
		stream: func(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
			return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
				return next(tag(ctx, conn.RequestHeader()), conn)
			}
		},
	}
}

func deviceFromHeader(jwtManager *auth.JWTManager, header http.Header) string {
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Parse Bearer token
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	// Validate token (ignore errors, tagging is optional)
	claims, err := jwtManager.Validate(parts[1])
	if err != nil {
		return ""
	}
	return claims.DeviceID
}

// DeviceToken returns a client interceptor sending the device token on every
// request. An empty token sends nothing.
func DeviceToken(token string) connect.Interceptor {
	return &clientToken{token: token}
}

type clientToken struct{ token string }

func (c *clientToken) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if c.token != "" && req.Spec().IsClient {
			req.Header().Set("Authorization", "Bearer "+c.token)
		}
		return next(ctx, req)
	}
}

func (c *clientToken) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if c.token != "" {
			conn.RequestHeader().Set("Authorization", "Bearer "+c.token)
		}
		return conn
	}
}

func (c *clientToken) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
