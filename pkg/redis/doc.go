// Package redis provides the Redis connection used by the low-latency usage
// ledger, with startup retries and a health probe.
package redis
