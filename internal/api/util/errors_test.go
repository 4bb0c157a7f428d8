package util_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/acquire"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/metadata"
	"github.com/hbomb79/Phonograph/internal/pipeline"
	"github.com/hbomb79/Phonograph/internal/transcode"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func Test_PipelineError(t *testing.T) {
	stage := func(state pipeline.State, err error) error {
		return &pipeline.StageError{JobID: uuid.New(), Stage: state, Err: err}
	}

	tests := []struct {
		Summary        string
		Err            error
		ExpectedStatus int
		ExpectedCode   string
	}{
		{
			Summary:        "Extraction",
			Err:            stage(pipeline.ResolvingMetadata, &metadata.ExtractionError{URL: "u", Message: "unsupported URL"}),
			ExpectedStatus: http.StatusUnprocessableEntity,
			ExpectedCode:   util.CodeExtractionFailed,
		},
		{
			Summary:        "RateLimitedAcquisition",
			Err:            stage(pipeline.Acquiring, &acquire.AcquisitionError{URL: "u", Attempts: 3, RateLimited: true}),
			ExpectedStatus: http.StatusTooManyRequests,
			ExpectedCode:   util.CodeRateLimited,
		},
		{
			Summary:        "Acquisition",
			Err:            stage(pipeline.Acquiring, &acquire.AcquisitionError{URL: "u", Attempts: 1, Err: errors.New("private video")}),
			ExpectedStatus: http.StatusBadGateway,
			ExpectedCode:   util.CodeAcquisitionFailed,
		},
		{
			Summary:        "AcquisitionTimeout",
			Err:            stage(pipeline.Acquiring, &acquire.AcquisitionError{URL: "u", Attempts: 2, Err: context.DeadlineExceeded}),
			ExpectedStatus: http.StatusGatewayTimeout,
			ExpectedCode:   util.CodeTimeout,
		},
		{
			Summary:        "Transcode",
			Err:            stage(pipeline.Transcoding, &transcode.TranscodeError{Input: "raw.webm", Reason: "encoder failed"}),
			ExpectedStatus: http.StatusInternalServerError,
			ExpectedCode:   util.CodeTranscodeFailed,
		},
		{
			Summary:        "Other",
			Err:            stage(pipeline.Reading, fmt.Errorf("read failed: %w", errors.New("EIO"))),
			ExpectedStatus: http.StatusInternalServerError,
			ExpectedCode:   util.CodePipelineFailed,
		},
	}

	for _, test := range tests {
		t.Run(test.Summary, func(t *testing.T) {
			apiErr := util.PipelineError(test.Err)
			assert.Equal(t, test.ExpectedStatus, apiErr.Status)
			assert.Equal(t, test.ExpectedCode, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
			assert.Equal(t, test.Err.Error(), apiErr.InternalMessage)
		})
	}
}

func Test_GetHTTPErrorHandler(t *testing.T) {
	ec := echo.New()
	fallbackCalls := 0
	handler := util.GetHTTPErrorHandler(func(err error, c echo.Context) {
		fallbackCalls++
		ec.DefaultHTTPErrorHandler(err, c)
	})

	t.Run("APIError", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(util.NotFound("Job not found"), ec.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"message":"Job not found","code":"NOT_FOUND"}`, rec.Body.String())
		assert.Zero(t, fallbackCalls)
	})

	t.Run("InternalMessageIsHidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(util.APIError{InternalMessage: "secret"}, ec.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret")
		assert.Zero(t, fallbackCalls)
	})

	t.Run("OtherErrorsFallBack", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(echo.ErrMethodNotAllowed, ec.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, 1, fallbackCalls)
	})
}
