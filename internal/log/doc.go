// Package log provides slog helpers for footprint.
//
// SecureHandler masks sensitive attribute values (cookie and storage values,
// authorization headers, tokens, long opaque identifiers) before they reach
// the underlying handler, so that verbose logs of a crawl can be shared.
//
// Loggers travel through context.Context: the orchestrator attaches the task
// attributes once and the session runner and consent engine pick the logger
// up with FromContext.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	ctx = log.WithContext(ctx, logger.With("site", domain, "mode", mode))
//	log.FromContext(ctx).Debug("strategy matched", "strategy", name)
package log
