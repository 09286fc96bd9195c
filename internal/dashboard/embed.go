// ABOUTME: Embeds dashboard HTML templates into the binary using go:embed
// ABOUTME: Provides templateFS for parsing templates at startup

package dashboard

import "embed"

//go:embed templates/*.html
var templateFS embed.FS
