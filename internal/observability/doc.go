// Package observability provides logging, metrics, and context helpers for
// the request service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for request flows, backend calls, and email delivery
//   - Context helpers for propagating request data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("request started")
//
// Add request context to a logger:
//
//	logger = observability.WithRequestContext(logger, requestID, service, bibID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("valet")
//
// Record metrics:
//
//	metrics.RecordRequest("paging", "confirm", 0.42)
//	metrics.RecordBackendRequest("folio", "instance_lookup", 0.11)
//	metrics.RecordEmailSent("staff")
//
// # Context Helpers
//
// Store and retrieve request data:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithService(ctx, "recall")
//
//	reqID := observability.RequestIDFromContext(ctx)
//	service := observability.ServiceFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: Per-request correlation identifier
//   - service: Service key (paging, recall, borrow_direct, ...)
//   - bib_id: Bibliographic record identifier
//   - patron: Patron login
//   - backend: External system (folio, scsb, caiasoft, clio)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
