package asyncop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/store"
)

// Producer creates the file an operation delivers.
type Producer interface {
	Produce(ctx context.Context, args json.RawMessage) (*domain.File, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, args json.RawMessage) (*domain.File, error)

// Produce calls f(ctx, args).
func (f ProducerFunc) Produce(ctx context.Context, args json.RawMessage) (*domain.File, error) {
	return f(ctx, args)
}

// Settings supplies the ambient values an operation reads. ArtifactTTL and
// UniqueFilenames are read on every execution; DurableStorage only once,
// when the operation is built.
type Settings interface {
	ArtifactTTL() time.Duration
	UniqueFilenames() bool
	DurableStorage() bool
}

// StaticSettings is a fixed Settings value.
type StaticSettings struct {
	TTL     time.Duration
	Unique  bool
	Durable bool
}

// ArtifactTTL returns s.TTL.
func (s StaticSettings) ArtifactTTL() time.Duration { return s.TTL }

// UniqueFilenames returns s.Unique.
func (s StaticSettings) UniqueFilenames() bool { return s.Unique }

// DurableStorage returns s.Durable.
func (s StaticSettings) DurableStorage() bool { return s.Durable }

// Option configures an Operation.
type Option func(*Operation)

// WithDurable overrides the storage mode taken from Settings.
func WithDurable(durable bool) Option {
	return func(o *Operation) {
		o.durable = durable
	}
}

// WithDescription sets the label stored with every artifact.
func WithDescription(description string) Option {
	return func(o *Operation) {
		o.description = description
	}
}

// WithLogger sets the operation's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operation) {
		o.logger = l
	}
}

// Operation runs a Producer and stores or carries its result.
type Operation struct {
	name        string
	producer    Producer
	artifacts   store.ArtifactStore
	settings    Settings
	durable     bool
	description string
	logger      *slog.Logger
}

// New creates an Operation. artifacts may be nil only for ephemeral operations.
// Returns domain.ErrConfiguration when a required collaborator is missing.
func New(
	name string,
	producer Producer,
	artifacts store.ArtifactStore,
	settings Settings,
	opts ...Option,
) (*Operation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: operation name cannot be empty", domain.ErrConfiguration)
	}
	if producer == nil {
		return nil, fmt.Errorf("%w: operation %q has no producer", domain.ErrConfiguration, name)
	}
	if settings == nil {
		return nil, fmt.Errorf("%w: operation %q has no settings", domain.ErrConfiguration, name)
	}

	o := &Operation{
		name:      name,
		producer:  producer,
		artifacts: artifacts,
		settings:  settings,
		durable:   settings.DurableStorage(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(slog.String("component", "async_operation"), slog.String("operation", name))

	if o.durable && o.artifacts == nil {
		return nil, fmt.Errorf("%w: durable operation %q has no artifact store", domain.ErrConfiguration, name)
	}
	return o, nil
}

// Name returns the registry name of the operation.
func (o *Operation) Name() string {
	return o.name
}

// Description returns the static label stored with artifacts.
func (o *Operation) Description() string {
	return o.description
}

// Durable reports whether results are stored as artifacts.
func (o *Operation) Durable() bool {
	return o.durable
}

// Execute produces the file and returns a handle to it. In durable mode
// expired artifacts are swept before the new one is created.
func (o *Operation) Execute(ctx context.Context, ownerID *uuid.UUID, args json.RawMessage) (*domain.ResultHandle, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	if o.durable {
		swept, err := o.artifacts.SweepExpired(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to sweep expired artifacts: %w", err)
		}
		if swept > 0 {
			log.Debug("swept expired artifacts", slog.Int64("count", swept))
		}
	}

	file, err := o.producer.Produce(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %s produced no file", domain.ErrEmptyResult, o.name)
	}

	if !o.durable {
		return &domain.ResultHandle{
			Ephemeral: &domain.EphemeralResult{
				Content:  file.Content,
				OwnerID:  ownerID,
				Filename: file.Filename,
				Mimetype: file.Mimetype,
			},
		}, nil
	}

	artifact, err := o.artifacts.Create(ctx, domain.NewArtifact{
		Content:         file.Content,
		Filename:        file.Filename,
		Mimetype:        file.Mimetype,
		OwnerID:         ownerID,
		Description:     o.description,
		TTL:             o.settings.ArtifactTTL(),
		UniqueFilenames: o.settings.UniqueFilenames(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store result of %s: %w", o.name, err)
	}

	log.Debug("stored artifact",
		slog.String("artifact_id", artifact.ID.String()),
		slog.String("filename", artifact.Filename),
		slog.Int("size", len(artifact.Content)))
	return &domain.ResultHandle{ArtifactID: &artifact.ID}, nil
}
