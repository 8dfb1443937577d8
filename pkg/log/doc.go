// Package log provides the structured logging facade used across Dueue.
//
// It is a thin layer over log/slog: text output renders through tint for
// local development, json output through slog's JSON handler for
// production. Components receive the Logger interface and attach context
// with typed fields:
//
//	logger := log.New(log.WithLevel(log.InfoLevel))
//	logger = logger.With(log.Str("component", "dueue"))
//	logger.Info("published message", log.Str("queue", "orders"))
package log
