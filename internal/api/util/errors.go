package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hbomb79/Phonograph/internal/acquire"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/labstack/echo/v4"
)

const (
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeAcquisitionFailed = "ACQUISITION_FAILED"
	CodeTranscodeFailed   = "TRANSCODE_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodePipelineFailed    = "PIPELINE_FAILED"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
)

type APIError struct {
	// Human readable error display message
	Message string `json:"message"`

	// A machine readable and stable identifier for the error case being represented
	Code string `json:"code"`

	// Used to alter the HTTP response status in accordance with the error
	Status int `json:"-"`

	// Additional message for internal logging only. Will not be included in the message
	// sent to the user.
	InternalMessage string `json:"-"`
}

func (err APIError) Error() string {
	return fmt.Sprintf("api error: %s", err.Message)
}

func BadRequest(message string) APIError {
	return APIError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: message}
}

func NotFound(message string) APIError {
	return APIError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(message string) APIError {
	return APIError{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// PipelineError maps an error returned by a conversion to the APIError
// describing it to clients.
func PipelineError(err error) APIError {
	var (
		extractionErr  *metadata.ExtractionError
		acquisitionErr *acquire.AcquisitionError
		transcodeErr   *transcode.TranscodeError
	)

	apiErr := APIError{InternalMessage: err.Error()}
	switch {
	case errors.As(err, &extractionErr):
		apiErr.Status = http.StatusUnprocessableEntity
		apiErr.Code = CodeExtractionFailed
		apiErr.Message = fmt.Sprintf("Could not read metadata for this URL: %s", extractionErr.Message)
	case errors.As(err, &acquisitionErr) && acquisitionErr.RateLimited:
		apiErr.Status = http.StatusTooManyRequests
		apiErr.Code = CodeRateLimited
		apiErr.Message = fmt.Sprintf("The source is rate-limiting downloads (gave up after %d attempts). Try again later", acquisitionErr.Attempts)
	case errors.Is(err, context.DeadlineExceeded):
		apiErr.Status = http.StatusGatewayTimeout
		apiErr.Code = CodeTimeout
		apiErr.Message = "The conversion did not finish in time"
	case acquisitionErr != nil:
		apiErr.Status = http.StatusBadGateway
		apiErr.Code = CodeAcquisitionFailed
		apiErr.Message = "The audio could not be downloaded"
	case errors.As(err, &transcodeErr):
		apiErr.Status = http.StatusInternalServerError
		apiErr.Code = CodeTranscodeFailed
		apiErr.Message = "The audio could not be converted"
	default:
		apiErr.Status = http.StatusInternalServerError
		apiErr.Code = CodePipelineFailed
		apiErr.Message = "The conversion failed"
	}

	return apiErr
}

// GetHTTPErrorHandler returns an echo HTTP error handler which understands
// how to interpret APIError. Other errors are passed to the fallback handler.
func GetHTTPErrorHandler(fallbackHandler echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	log := logger.Get("API")
	return func(err error, ctx echo.Context) {
		var apiErr APIError
		if ok := errors.As(err, &apiErr); ok {
			if apiErr.Status == 0 {
				apiErr.Status = http.StatusInternalServerError
			}
			if len(apiErr.Message) == 0 {
				apiErr.Message = http.StatusText(apiErr.Status)
			}
			if len(apiErr.Code) == 0 {
				apiErr.Code = http.StatusText(apiErr.Status)
			}
			if len(apiErr.InternalMessage) > 0 {
				log.Errorf("Request failure, internal error: %s\n", apiErr.InternalMessage)
			}

			if ctx.Response().Committed {
				return
			}
			if err := ctx.JSON(apiErr.Status, apiErr); err == nil {
				return
			}
		}

		fallbackHandler(err, ctx)
	}
}
