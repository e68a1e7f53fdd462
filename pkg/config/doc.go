// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each package defines its own Config struct with `env` tags; hosts compose
// the structs they need and load them at startup:
//
//	var cfg engine.Config
//	config.MustLoad(&cfg)
package config
