package analyzer

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
)

// Service fronts a Model with the result cache and metrics.
type Service struct {
	model   Model
	cache   *Cache
	metrics *metrics.Metrics
	logger  *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables the result cache.
func WithCache(c *Cache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics records model failures and cache hits.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service over model.
func NewService(model Model, opts ...ServiceOption) *Service {
	s := &Service{model: model}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).With("component", "analyzer")
	return s
}

// Analyze returns the estimate for image, from the cache when the same bytes
// were analyzed before.
func (s *Service) Analyze(ctx context.Context, image []byte, contentType string) (*Result, error) {
	key := DigestOf(image)
	if r, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.AnalyzeCacheHits.Inc()
		}
		s.logger.Debug("analysis cache hit", "bytes", len(image))
		return r, nil
	}

	start := time.Now()
	r, err := s.model.Analyze(ctx, image, contentType)
	if err != nil {
		errType := ErrorTypeTransport
		var modelErr *ModelError
		if stderrors.As(err, &modelErr) {
			errType = modelErr.Type
		}
		if s.metrics != nil {
			s.metrics.AnalyzerErrors.WithLabelValues(errType).Inc()
		}
		s.logger.Warn("model call failed", "error", err.Error(), "error_type", errType, "elapsed", time.Since(start))
		return nil, err
	}

	s.cache.Put(key, r)
	s.logger.Info("meal analyzed", "calories", r.Calories, "elapsed", time.Since(start))
	return r, nil
}
