package integration_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/hbomb79/Phonograph/internal/api"
	"github.com/hbomb79/Phonograph/internal/api/util"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/internal/progress"
	"github.com/hbomb79/Phonograph/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Jobs_Lifecycle(t *testing.T) {
	stack := helpers.NewTestStack(t, api.RestConfig{})
	stack.Source.Register(songURL, helpers.FakeMedia{Title: "My Song (Live)"})
	client := stack.Client()

	submitted := client.SubmitJob(t, songURL)
	assert.Equal(t, jobs.QUEUED, submitted.State)
	assert.Equal(t, songURL, submitted.URL)

	job := client.WaitForJob(t, submitted.ID)
	require.Equal(t, jobs.COMPLETE, job.State)
	assert.Equal(t, "My Song Live.mp3", job.Filename)
	assert.Equal(t, "My Song (Live)", job.Title)
	assert.Equal(t, "download/", job.DownloadURL)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.Progress)
	assert.Equal(t, progress.StatusFinished, job.Progress.Status)

	download := client.Do(t, http.MethodGet, "jobs/"+job.ID.String()+"/download/", nil)
	require.Equal(t, http.StatusOK, download.StatusCode)
	assert.Equal(t, "mp3@192k:raw:My Song (Live)", string(download.Body))
	assert.Equal(t, `attachment; filename="My Song Live.mp3"`, download.Header.Get("Content-Disposition"))

	listed := client.ListJobs(t)
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)

	deleted := client.Do(t, http.MethodDelete, "jobs/"+job.ID.String()+"/", nil)
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)

	missing := client.Do(t, http.MethodGet, "jobs/"+job.ID.String()+"/", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, util.CodeNotFound, missing.APIError(t).Code)
	assert.Empty(t, client.ListJobs(t))
}

func Test_Jobs_RunningJob(t *testing.T) {
	stack := helpers.NewTestStack(t, api.RestConfig{})
	gate := make(chan struct{})
	stack.Source.Register(songURL, helpers.FakeMedia{Title: "Slow", Gate: gate})
	client := stack.Client()

	job := client.SubmitJob(t, songURL)
	require.Eventually(t, func() bool {
		return client.GetJob(t, job.ID).State == jobs.RUNNING
	}, 5*time.Second, 10*time.Millisecond)

	download := client.Do(t, http.MethodGet, "jobs/"+job.ID.String()+"/download/", nil)
	assert.Equal(t, http.StatusConflict, download.StatusCode)
	assert.Equal(t, util.CodeConflict, download.APIError(t).Code)

	deleted := client.Do(t, http.MethodDelete, "jobs/"+job.ID.String()+"/", nil)
	assert.Equal(t, http.StatusConflict, deleted.StatusCode, "running jobs cannot be deleted")

	close(gate)
	assert.Equal(t, jobs.COMPLETE, client.WaitForJob(t, job.ID).State)
}

func Test_Jobs_FailureCarriesErrorCode(t *testing.T) {
	stack := helpers.NewTestStack(t, api.RestConfig{})
	stack.Source.Register(songURL, helpers.FakeMedia{Title: "Limited", RateLimited: 10})
	client := stack.Client()

	job := client.WaitForJob(t, client.SubmitJob(t, songURL).ID)
	require.Equal(t, jobs.FAILED, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, util.CodeRateLimited, job.Error.Code)
	assert.Empty(t, job.DownloadURL)

	download := client.Do(t, http.MethodGet, "jobs/"+job.ID.String()+"/download/", nil)
	assert.Equal(t, http.StatusConflict, download.StatusCode)
}

func Test_Jobs_InvalidID(t *testing.T) {
	stack := helpers.NewTestStack(t, api.RestConfig{})
	client := stack.Client()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := client.Do(t, method, "jobs/not-a-uuid/", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, method)
		assert.Equal(t, util.CodeInvalidRequest, resp.APIError(t).Code, method)
	}
}

func Test_Progress(t *testing.T) {
	stack := helpers.NewTestStack(t, api.RestConfig{})
	stack.Source.Register(songURL, helpers.FakeMedia{Title: "Song"})
	client := stack.Client()

	var idle progress.Snapshot
	resp := client.Do(t, http.MethodGet, "progress/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp.Body, &idle)
	assert.Equal(t, progress.StatusIdle, idle.Status)

	job := client.WaitForJob(t, client.SubmitJob(t, songURL).ID)

	var latest progress.Snapshot
	resp = client.Do(t, http.MethodGet, "progress/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp.Body, &latest)
	assert.Equal(t, job.ID, latest.JobID)
	assert.Equal(t, progress.StatusFinished, latest.Status)
	assert.Equal(t, "100%", latest.Percent)

	resp = client.Do(t, http.MethodGet, "progress/"+job.ID.String()+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = client.Do(t, http.MethodGet, "progress/"+idle.JobID.String()+"/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
