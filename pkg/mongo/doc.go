// Package mongo provides the MongoDB connection for deployments that keep
// subscription state in Mongo instead of Postgres.
package mongo
