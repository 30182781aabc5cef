package example

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ViewTitle is the heading of the example page.
const ViewTitle = "Just an Example"

//go:embed templates/after_loading.md templates/page.html
var templateFS embed.FS

var (
	markdownSource = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/after_loading.md"))
	pageTemplate   = template.Must(template.ParseFS(templateFS, "templates/page.html"))

	// Safe for concurrent use once built.
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

type viewData struct {
	Title string
	Slow  bool
	Delay time.Duration
}

// ViewRenderer renders the after-loading page. A positive delay makes it
// slow: it waits that long first and says so on the page.
func ViewRenderer(delay time.Duration) asyncop.Renderer {
	return asyncop.RendererFunc(func(ctx context.Context, _ json.RawMessage) (string, error) {
		if err := wait(ctx, delay); err != nil {
			return "", err
		}
		return renderPage(viewData{Title: ViewTitle, Slow: delay > 0, Delay: delay})
	})
}

// renderPage expands the Markdown source with data, converts it to HTML and
// wraps it in the page layout.
func renderPage(data viewData) (string, error) {
	var src bytes.Buffer
	if err := markdownSource.Execute(&src, data); err != nil {
		return "", fmt.Errorf("failed to expand page source: %w", err)
	}

	var body bytes.Buffer
	if err := markdown.Convert(src.Bytes(), &body); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: data.Title,
		Body:  template.HTML(body.String()), //nolint:gosec // produced by goldmark from an embedded source
	})
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return page.String(), nil
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
