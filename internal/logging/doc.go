// Package logging builds the service's zap logger.
//
// The logger writes JSON or console output to stdout and can tee into an
// OpenTelemetry log provider through the otelzap bridge. Entries below
// error level are sampled. API keys and bearer tokens are masked by
// RedactingEncoder before they are written.
//
// Correlation IDs travel in the context:
//
//	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
//	ctx = logging.WithDiscoveryID(ctx, id)
//	logging.Ctx(ctx, logger).Info("discovery started")
//
// Ctx adds trace_id and span_id when ctx carries a valid span.
package logging
