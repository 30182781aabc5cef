package api

import (
	"embed"
	"html/template"
)

// Loading page defaults.
const (
	DefaultViewTitle       = "Loading..."
	DefaultMaxPolls        = 20
	DefaultRequestTimeout  = 2000 // ms
	DefaultInitialInterval = 20000
	DefaultPollInterval    = 5000
)

//go:embed templates/loading.html
var templateFS embed.FS

// DefaultLoadingTemplate renders a page that polls for the result and
// replaces itself with the returned HTML.
var DefaultLoadingTemplate = template.Must(template.ParseFS(templateFS, "templates/loading.html"))
