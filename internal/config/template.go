// ABOUTME: Default configuration file written by `model-router init`
// ABOUTME: API keys reference environment variables rather than literal secrets

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultYAML is the annotated starter configuration.
const DefaultYAML = `# model-router configuration

server:
  http_addr: ":3791"
  # Tried in order when http_addr is already in use.
  fallback_addrs: [":3003"]

# When enabled, the router serves on the tailnet instead of http_addr, keeping
# http_addr's port for plain HTTP.
tailscale:
  enabled: false
  hostname: "model-router"
  auth_key: "${TS_AUTHKEY}"
  state_dir: ""
  ephemeral: false
  https: false
  funnel: false

database:
  # Usage ledger. ":memory:" keeps nothing on disk.
  path: ":memory:"

conversations:
  retention: "480h"
  eviction_schedule: "@daily"
  shards: 32

prompts:
  path: "prompts.xml"
  watch: true

dispatch:
  request_timeout: "10m"

providers:
  openai:
    api_key: "${OPENAI_API_KEY}"
    base_url: "https://api.openai.com/v1"
    timeout: "10m"
  anthropic:
    api_key: "${ANTHROPIC_API_KEY}"
    max_tokens: 4000
  xai:
    api_key: "${XAI_API_KEY}"
    base_url: "https://api.x.ai/v1"
  gemini:
    api_key: "${GEMINI_API_KEY}"

logging:
  level: "info"
  format: "text"
`

// WriteDefault writes DefaultYAML to path. It refuses to overwrite an
// existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(DefaultYAML); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
