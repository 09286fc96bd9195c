// Package config handles configuration loading for model-router.
//
// # Overview
//
// Configuration is loaded from YAML (or, for a .toml extension, TOML) files
// with environment variable expansion. Keys a file omits keep the values from
// Default, so an empty file is a valid configuration.
//
// # Configuration File
//
// Locations, in order:
//
//  1. The --config flag
//  2. Path from MODEL_ROUTER_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/model-router/config.yaml
//  4. ~/.config/model-router/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Variables from .env and .env.gpt5 in the working directory are loaded
// first by LoadDotEnv; variables already in the environment take precedence.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversations:
//	  retention: "480h"
//	dispatch:
//	  request_timeout: "10m"
package config
