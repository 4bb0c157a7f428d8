package jobs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/api/conversions"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/labstack/echo/v4"
)

type (
	// Dto is the representation of a job returned by this API.
	Dto struct {
		ID          uuid.UUID          `json:"id"`
		URL         string             `json:"url"`
		State       jobs.State         `json:"state"`
		Title       string             `json:"title,omitempty"`
		Filename    string             `json:"filename,omitempty"`
		SizeBytes   int64              `json:"size_bytes,omitempty"`
		Error       *util.APIError     `json:"error,omitempty"`
		Progress    *progress.Snapshot `json:"progress,omitempty"`
		CreatedAt   time.Time          `json:"created_at"`
		FinishedAt  *time.Time         `json:"finished_at,omitempty"`
		DownloadURL string             `json:"download_url,omitempty"`
	}

	Service interface {
		Submit(url string) jobs.Job
		List() []jobs.Job
		Get(ctx context.Context, id uuid.UUID) (jobs.Job, error)
		Artifact(id uuid.UUID) (jobs.Job, []byte, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	ProgressStore interface {
		Get(uuid.UUID) (progress.Snapshot, bool)
	}

	Controller struct {
		validate *validator.Validate
		service  Service
		progress ProgressStore
	}
)

func New(validate *validator.Validate, service Service, progress ProgressStore) *Controller {
	return &Controller{validate: validate, service: service, progress: progress}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/", controller.post)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.GET("/:id/download/", controller.download)
}

func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, util.ApplyConversion(controller.service.List(), controller.NewDto))
}

func (controller *Controller) post(ec echo.Context) error {
	request, err := conversions.BindRequest(ec, controller.validate)
	if err != nil {
		return err
	}

	job := controller.service.Submit(request.URL)
	return ec.JSON(http.StatusAccepted, controller.NewDto(job))
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	job, err := controller.service.Get(ec.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return ec.JSON(http.StatusOK, controller.NewDto(job))
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	if err := controller.service.Delete(ec.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	return ec.NoContent(http.StatusNoContent)
}

// download serves the artifact of a completed job. Jobs which are still
// in progress (or failed) respond with a conflict.
func (controller *Controller) download(ec echo.Context) error {
	id, err := parseID(ec)
	if err != nil {
		return err
	}

	job, data, err := controller.service.Artifact(id)
	if err != nil {
		return mapServiceError(err)
	}

	return conversions.SendArtifact(ec, job.Filename, job.ContentType, data)
}

// NewDto converts a job to its API representation, attaching the job's
// latest progress and, for failed jobs, the error clients would have
// received from a synchronous conversion.
func (controller *Controller) NewDto(job jobs.Job) Dto {
	dto := Dto{
		ID:        job.ID,
		URL:       job.URL,
		State:     job.State,
		Title:     job.Title,
		Filename:  job.Filename,
		SizeBytes: job.SizeBytes,
		CreatedAt: job.CreatedAt,
	}
	if !job.FinishedAt.IsZero() {
		finishedAt := job.FinishedAt
		dto.FinishedAt = &finishedAt
	}
	if job.State == jobs.COMPLETE {
		dto.DownloadURL = "download/"
	}
	if job.State == jobs.FAILED {
		apiErr := util.APIError{Code: util.CodePipelineFailed, Message: job.Error}
		if job.Err != nil {
			apiErr = util.PipelineError(job.Err)
		}
		apiErr.InternalMessage = ""
		dto.Error = &apiErr
	}
	if controller.progress != nil {
		if snapshot, ok := controller.progress.Get(job.ID); ok {
			dto.Progress = &snapshot
		}
	}

	return dto
}

func parseID(ec echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return uuid.Nil, util.BadRequest("Job ID is not a valid UUID")
	}

	return id, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return util.NotFound("Job not found")
	case errors.Is(err, jobs.ErrJobNotComplete):
		return util.Conflict("Job is not complete")
	case errors.Is(err, jobs.ErrJobActive):
		return util.Conflict("Job is running and cannot be deleted")
	}

	return util.APIError{Status: http.StatusInternalServerError, InternalMessage: err.Error()}
}
