package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/metrics"
)

// errExtractionDisabled is returned when the server has no extraction
// endpoint configured.
var errExtractionDisabled = errors.New("receipt extraction is not configured")

// ReceiptService implements the Connect ReceiptService
type ReceiptService struct {
	extractor extraction.Extractor
	metrics   *metrics.Metrics
}

var _ api.ReceiptServiceHandler = (*ReceiptService)(nil)

// NewReceiptService creates a ReceiptService. A nil extractor makes every
// call fail with Unavailable.
func NewReceiptService(extractor extraction.Extractor, m *metrics.Metrics) *ReceiptService {
	return &ReceiptService{extractor: extractor, metrics: m}
}

// ExtractReceipt reads the line items of an uploaded receipt image.
func (s *ReceiptService) ExtractReceipt(ctx context.Context, req *connect.Request[api.ExtractReceiptRequest]) (*connect.Response[api.ExtractReceiptResponse], error) {
	if err := extraction.CheckImage(req.Msg.Image, req.Msg.MimeType); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if s.extractor == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errExtractionDisabled)
	}

	lines, err := s.extractor.Extract(ctx, req.Msg.Image, req.Msg.MimeType)
	if err != nil {
		s.metrics.Extractions.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("ExtractReceipt failed", "bytes", len(req.Msg.Image), "error", err)
		return nil, extractionError(err)
	}
	s.metrics.Extractions.WithLabelValues(metrics.ResultOK).Inc()

	slog.Info("Receipt extracted", "bytes", len(req.Msg.Image), "lines", len(lines))
	if lines == nil {
		lines = []extraction.Line{}
	}
	return connect.NewResponse(&api.ExtractReceiptResponse{Items: lines}), nil
}

func extractionError(err error) error {
	switch {
	case errors.Is(err, extraction.ErrInvalidImage):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, extraction.ErrMalformedResponse):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		// Open breaker, unreachable endpoint or upstream 5xx
		return connect.NewError(connect.CodeUnavailable, err)
	}
}
