// Package config loads typed configuration structs from environment
// variables (and an optional .env file) using caarlos0/env field tags.
// Each config type is parsed once per process and cached.
package config
