package api

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/platform/logger"
)

// Jobs is the job facility used by the polling handlers.
type Jobs interface {
	Submit(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (uuid.UUID, error)
	IsReady(ctx context.Context, jobID uuid.UUID) (bool, error)
	Fetch(ctx context.Context, jobID uuid.UUID, await bool) (*domain.OpenedResult, error)
	RunEager(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (*domain.OpenedResult, error)
}

// ViewDescriptor configures a ViewHandler.
type ViewDescriptor struct {
	// Operation renders the view. Required.
	Operation *asyncop.Operation `validate:"required"`

	// LoadingTemplate is rendered while the job runs. Defaults to DefaultLoadingTemplate.
	LoadingTemplate *template.Template

	// ExtraContext is merged into the loading template data. It cannot
	// replace the polling keys.
	ExtraContext map[string]any

	// Title is the view_title of the loading page. Defaults to DefaultViewTitle.
	Title string

	// InitialInterval is the delay before the first poll.
	InitialInterval time.Duration `validate:"gte=0"`

	// PollInterval is the delay between later polls.
	PollInterval time.Duration `validate:"gte=0"`

	// MaxPolls caps how many times the page polls. Defaults to DefaultMaxPolls.
	MaxPolls int `validate:"gte=0"`

	// RequireOwner rejects anonymous requests and unowned results.
	RequireOwner bool

	// Eager renders the view synchronously instead of submitting a job.
	Eager bool
}

// ViewHandler serves an HTML view produced by a background job.
//
// Without task_id it submits the job and returns the loading page. With
// task_id it answers {"ready": false} until the job finishes and then
// {"ready": true, "html": "..."}.
type ViewHandler struct {
	desc   ViewDescriptor
	jobs   Jobs
	logger *slog.Logger
}

// NewViewHandler validates desc and creates a ViewHandler.
func NewViewHandler(desc ViewDescriptor, jobs Jobs, logger *slog.Logger) (*ViewHandler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("%w: view handler has no job facility", domain.ErrConfiguration)
	}
	if err := shared.ValidateStruct(desc); err != nil {
		return nil, fmt.Errorf("%w: invalid view descriptor: %v", domain.ErrConfiguration, err)
	}
	if desc.LoadingTemplate == nil {
		desc.LoadingTemplate = DefaultLoadingTemplate
	}
	if desc.Title == "" {
		desc.Title = DefaultViewTitle
	}
	if desc.InitialInterval == 0 {
		desc.InitialInterval = DefaultInitialInterval * time.Millisecond
	}
	if desc.PollInterval == 0 {
		desc.PollInterval = DefaultPollInterval * time.Millisecond
	}
	if desc.MaxPolls == 0 {
		desc.MaxPolls = DefaultMaxPolls
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewHandler{
		desc:   desc,
		jobs:   jobs,
		logger: logger.With(slog.String("handler", "view"), slog.String("operation", desc.Operation.Name())),
	}, nil
}

// ViewPollResponse is the JSON answer to a poll.
type ViewPollResponse struct {
	Ready bool   `json:"ready"`
	HTML  string `json:"html,omitempty"`
}

func (h *ViewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskID, err := shared.TaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if taskID == nil {
		h.start(w, r)
		return
	}
	h.poll(w, r, *taskID)
}

func (h *ViewHandler) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContextOrDefault(ctx, h.logger)

	principal := shared.Principal(ctx)
	if h.desc.RequireOwner && principal == nil {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	if h.desc.Eager {
		res, err := h.jobs.RunEager(ctx, h.desc.Operation, principal, nil)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		if err := h.check(res, principal); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithHTML(w, r, http.StatusOK, res.Content)
		return
	}

	jobID, err := h.jobs.Submit(ctx, h.desc.Operation, principal, nil)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Debug("view job submitted", slog.String("task_id", jobID.String()))

	var buf bytes.Buffer
	if err := h.desc.LoadingTemplate.Execute(&buf, h.loadingContext(jobID)); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: loading template: %v", domain.ErrConfiguration, err), "")
		return
	}
	shared.RespondWithHTML(w, r, http.StatusOK, buf.Bytes())
}

func (h *ViewHandler) poll(w http.ResponseWriter, r *http.Request, jobID uuid.UUID) {
	ctx := r.Context()

	ready, err := h.jobs.IsReady(ctx, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if !ready {
		shared.RespondWithJSON(w, r, http.StatusOK, ViewPollResponse{Ready: false})
		return
	}

	res, err := h.jobs.Fetch(ctx, jobID, true)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := h.check(res, shared.Principal(ctx)); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ViewPollResponse{Ready: true, HTML: string(res.Content)})
}

// check applies the ownership rule and rejects empty documents.
func (h *ViewHandler) check(res *domain.OpenedResult, principal *uuid.UUID) error {
	if err := hasPermission(res.OwnerID, principal, h.desc.RequireOwner); err != nil {
		return err
	}
	if len(res.Content) == 0 {
		return domain.ErrEmptyResult
	}
	return nil
}

func (h *ViewHandler) loadingContext(jobID uuid.UUID) map[string]any {
	data := make(map[string]any, len(h.desc.ExtraContext)+6)
	maps.Copy(data, h.desc.ExtraContext)
	data["view_title"] = h.desc.Title
	data["task_id"] = jobID.String()
	data["initial_interval"] = h.desc.InitialInterval.Milliseconds()
	data["poll_interval"] = h.desc.PollInterval.Milliseconds()
	data["max_polls"] = h.desc.MaxPolls
	data["request_timeout"] = DefaultRequestTimeout
	return data
}
