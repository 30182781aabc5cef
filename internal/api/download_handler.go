package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/platform/logger"
)

// SetupFunc prepares the arguments of a download job from the request. An
// error short-circuits the submission with its mapped status.
type SetupFunc func(r *http.Request) (any, error)

// DownloadDescriptor configures a DownloadHandler.
type DownloadDescriptor struct {
	// Operation produces the file. Required.
	Operation *asyncop.Operation `validate:"required"`

	// Setup runs before submission. Optional.
	Setup SetupFunc

	// RequireOwner rejects anonymous requests and unowned results.
	RequireOwner bool

	// Eager produces the file synchronously instead of submitting a job.
	Eager bool
}

// DownloadHandler serves a file produced by a background job.
//
// Without task_id it submits the job and returns {"task_id", "ready"}. With
// task_id it returns {"ready"}, or the file itself when download=true.
type DownloadHandler struct {
	desc   DownloadDescriptor
	jobs   Jobs
	logger *slog.Logger
}

// NewDownloadHandler validates desc and creates a DownloadHandler.
func NewDownloadHandler(desc DownloadDescriptor, jobs Jobs, logger *slog.Logger) (*DownloadHandler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("%w: download handler has no job facility", domain.ErrConfiguration)
	}
	if err := shared.ValidateStruct(desc); err != nil {
		return nil, fmt.Errorf("%w: invalid download descriptor: %v", domain.ErrConfiguration, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadHandler{
		desc:   desc,
		jobs:   jobs,
		logger: logger.With(slog.String("handler", "download"), slog.String("operation", desc.Operation.Name())),
	}, nil
}

// SubmitResponse is returned when a download job is submitted.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Ready  bool   `json:"ready"`
}

// ReadyResponse answers a poll without download.
type ReadyResponse struct {
	Ready bool `json:"ready"`
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskID, err := shared.TaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if taskID == nil {
		h.start(w, r)
		return
	}
	if shared.FlagSet(r, shared.DownloadParam) {
		h.download(w, r, *taskID)
		return
	}

	ready, err := h.jobs.IsReady(r.Context(), *taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ReadyResponse{Ready: ready})
}

func (h *DownloadHandler) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContextOrDefault(ctx, h.logger)

	principal := shared.Principal(ctx)
	if h.desc.RequireOwner && principal == nil {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var args any
	if h.desc.Setup != nil {
		var err error
		if args, err = h.desc.Setup(r); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	if h.desc.Eager {
		res, err := h.jobs.RunEager(ctx, h.desc.Operation, principal, args)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		h.respondWithFile(w, r, res, principal)
		return
	}

	jobID, err := h.jobs.Submit(ctx, h.desc.Operation, principal, args)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Debug("download job submitted", slog.String("task_id", jobID.String()))

	ready, err := h.jobs.IsReady(ctx, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SubmitResponse{TaskID: jobID.String(), Ready: ready})
}

func (h *DownloadHandler) download(w http.ResponseWriter, r *http.Request, jobID uuid.UUID) {
	res, err := h.jobs.Fetch(r.Context(), jobID, true)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	h.respondWithFile(w, r, res, shared.Principal(r.Context()))
}

func (h *DownloadHandler) respondWithFile(w http.ResponseWriter, r *http.Request, res *domain.OpenedResult, principal *uuid.UUID) {
	if err := hasPermission(res.OwnerID, principal, h.desc.RequireOwner); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	mimetype := res.Mimetype
	if mimetype == "" {
		mimetype = domain.DefaultMimetype
	}
	shared.RespondWithAttachment(w, r, res.Content, res.Filename, mimetype)
}
