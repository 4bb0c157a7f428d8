package conversions

import (
	"context"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/pipeline"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("ConversionController")

type (
	// Request is the body accepted by every endpoint which takes a URL.
	Request struct {
		URL string `json:"url" validate:"required,url"`
	}

	Resolver interface {
		Resolve(ctx context.Context, url string) (*metadata.Metadata, error)
	}

	Pipeline interface {
		Run(ctx context.Context, url string) (*pipeline.Result, error)
	}

	Controller struct {
		validate *validator.Validate
		resolver Resolver
		pipeline Pipeline
	}
)

func New(validate *validator.Validate, resolver Resolver, pipeline Pipeline) *Controller {
	return &Controller{validate: validate, resolver: resolver, pipeline: pipeline}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/metadata/", controller.postMetadata)
	eg.POST("/convert/", controller.postConvert)
}

// postMetadata resolves the metadata for the URL in the request body.
func (controller *Controller) postMetadata(ec echo.Context) error {
	request, err := BindRequest(ec, controller.validate)
	if err != nil {
		return err
	}

	meta, err := controller.resolver.Resolve(ec.Request().Context(), request.URL)
	if err != nil {
		return util.PipelineError(err)
	}

	return ec.JSON(http.StatusOK, meta)
}

// postConvert runs the full conversion synchronously and responds with the
// encoded audio as an attachment named after the media's title.
func (controller *Controller) postConvert(ec echo.Context) error {
	request, err := BindRequest(ec, controller.validate)
	if err != nil {
		return err
	}

	result, err := controller.pipeline.Run(ec.Request().Context(), request.URL)
	if err != nil {
		return util.PipelineError(err)
	}

	controllerLogger.Emit(logger.SUCCESS, "Serving %s (%d bytes)\n", result.Filename, len(result.Bytes))
	return SendArtifact(ec, result.Filename, result.ContentType, result.Bytes)
}

// BindRequest binds and validates a URL request body.
func BindRequest(ec echo.Context, validate *validator.Validate) (Request, error) {
	var request Request
	if err := ec.Bind(&request); err != nil {
		return request, util.BadRequest("Request body is not valid JSON")
	}
	if err := validate.Struct(request); err != nil {
		return request, util.BadRequest("Request body must contain a valid 'url'")
	}

	return request, nil
}

// SendArtifact writes the bytes provided as a file download.
func SendArtifact(ec echo.Context, filename string, contentType string, data []byte) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	ec.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ec.Blob(http.StatusOK, contentType, data)
}
