package example

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/store"
)

// Registry names of the example operations.
const (
	ViewOperation         = "example_view_task"
	SlowViewOperation     = "example_slow_view_task"
	DownloadOperation     = "example_download_task"
	SlowDownloadOperation = "example_slow_download_task"
)

// Operations holds the example operations.
type Operations struct {
	View         *asyncop.Operation
	SlowView     *asyncop.Operation
	Download     *asyncop.Operation
	SlowDownload *asyncop.Operation
}

// NewOperations builds the example operations and registers them in reg.
// slowDelay is how long the slow variants wait.
func NewOperations(
	reg *asyncop.Registry,
	artifacts store.ArtifactStore,
	settings asyncop.Settings,
	slowDelay time.Duration,
	logger *slog.Logger,
) (*Operations, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		ops Operations
		err error
	)

	if ops.View, err = asyncop.NewViewOperation(ViewOperation, ViewRenderer(0),
		artifacts, settings, asyncop.WithLogger(logger)); err != nil {
		return nil, err
	}
	if ops.SlowView, err = asyncop.NewViewOperation(SlowViewOperation, ViewRenderer(slowDelay),
		artifacts, settings, asyncop.WithLogger(logger)); err != nil {
		return nil, err
	}
	if ops.Download, err = asyncop.New(DownloadOperation, DownloadProducer(0),
		artifacts, settings, asyncop.WithDescription(DownloadDescription), asyncop.WithLogger(logger)); err != nil {
		return nil, err
	}
	if ops.SlowDownload, err = asyncop.New(SlowDownloadOperation, DownloadProducer(slowDelay),
		artifacts, settings, asyncop.WithDescription(DownloadDescription), asyncop.WithLogger(logger)); err != nil {
		return nil, err
	}

	for _, op := range []*asyncop.Operation{ops.View, ops.SlowView, ops.Download, ops.SlowDownload} {
		if err := reg.Register(op); err != nil {
			return nil, fmt.Errorf("failed to register example operations: %w", err)
		}
	}
	return &ops, nil
}
