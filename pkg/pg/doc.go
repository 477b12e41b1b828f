// Package pg owns PostgreSQL connectivity: pool construction with startup
// retries, error classification helpers for stores, a health probe and the
// goose migration runner fed from the embedded migrations filesystem.
package pg
