// Package logger builds the application's slog.Logger: JSON at info level
// for production, text at debug level for development, with the service
// name stamped on every record.
package logger
