package middleware

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/metrics"
)

// MetricsInterceptor records the duration and outcome of every RPC.
func MetricsInterceptor(m *metrics.Metrics) connect.Interceptor {
	observe := func(procedure string, start time.Time, err error) {
		code := "ok"
		if err != nil {
			code = connect.CodeOf(err).String()
		}
		m.RPCDuration.WithLabelValues(procedure, code).Observe(time.Since(start).Seconds())
	}
	return &interceptor{
		unary: func(next connect.UnaryFunc) connect.UnaryFunc {
			return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
				start := time.Now()
				resp, err := next(ctx, req)
				observe(req.Spec().Procedure, start, err)
				return resp, err
			}
		},
		stream: func(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
			return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
				start := time.Now()
				err := next(ctx, conn)
				observe(conn.Spec().Procedure, start, err)
				return err
			}
		},
	}
}
