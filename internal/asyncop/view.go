package asyncop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/store"
)

// View output metadata.
const (
	ViewFilename = "async-view.html"
	ViewMimetype = "text/html"
)

// Renderer produces an HTML document.
type Renderer interface {
	Render(ctx context.Context, args json.RawMessage) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Render calls f(ctx, args).
func (f RendererFunc) Render(ctx context.Context, args json.RawMessage) (string, error) {
	return f(ctx, args)
}

// ViewProducer turns a Renderer into a Producer of async-view.html.
func ViewProducer(r Renderer) Producer {
	return ProducerFunc(func(ctx context.Context, args json.RawMessage) (*domain.File, error) {
		html, err := r.Render(ctx, args)
		if err != nil {
			return nil, err
		}
		return &domain.File{
			Content:  []byte(html),
			Filename: ViewFilename,
			Mimetype: ViewMimetype,
		}, nil
	})
}

// NewViewOperation creates an Operation that renders an HTML view.
func NewViewOperation(
	name string,
	renderer Renderer,
	artifacts store.ArtifactStore,
	settings Settings,
	opts ...Option,
) (*Operation, error) {
	if renderer == nil {
		return nil, fmt.Errorf("%w: view %q has no renderer", domain.ErrConfiguration, name)
	}
	return New(name, ViewProducer(renderer), artifacts, settings, opts...)
}
