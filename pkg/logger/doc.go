// Package logger builds *slog.Logger instances for the service.
//
// New takes functional options for level, format and output, static
// attributes, and ContextExtractor callbacks. Extractors run on every record
// and add request-scoped values such as the request id:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "subrelay"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//
// attr.go holds constructors for the attribute keys used across the
// service (user_id, provider, correlation_id, event_type, event_id) so
// records stay queryable by the same names. Constructors return an empty
// slog.Attr for empty values, which slog drops.
package logger
