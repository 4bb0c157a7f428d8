package progress

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/labstack/echo/v4"
)

type (
	Tracker interface {
		Latest() progress.Snapshot
		Get(uuid.UUID) (progress.Snapshot, bool)
	}

	Controller struct {
		tracker Tracker
	}
)

func New(tracker Tracker) *Controller {
	return &Controller{tracker: tracker}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.latest)
	eg.GET("/:id/", controller.get)
}

// latest returns the progress of the most recently started job, or an
// idle snapshot if no job has started yet.
func (controller *Controller) latest(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.tracker.Latest())
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return util.BadRequest("Job ID is not a valid UUID")
	}

	snapshot, ok := controller.tracker.Get(id)
	if !ok {
		return util.NotFound("No progress recorded for this job")
	}

	return ec.JSON(http.StatusOK, snapshot)
}
