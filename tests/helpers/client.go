package helpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apiJobs "github.com/hbomb79/Phonograph/internal/api/jobs"
	"github.com/hbomb79/Phonograph/internal/api/util"
	internalWs "github.com/hbomb79/Phonograph/internal/http/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	BasePath     = "/api/phonograph/v1/"
	ActivityPath = "activity/ws/"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// APIError decodes the body as an API error.
func (resp Response) APIError(t *testing.T) util.APIError {
	var apiErr util.APIError
	require.NoError(t, json.Unmarshal(resp.Body, &apiErr), "response body is not an API error: %s", resp.Body)
	return apiErr
}

type APIClient struct {
	BaseURL string
	HTTP    *http.Client
}

// Do performs a request against the API, encoding the body (if any) as JSON.
func (client *APIClient) Do(t *testing.T, method string, path string, body any) Response {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, client.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.HTTP.Do(req)
	require.NoError(t, err, "%s %s failed", method, path)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

func (client *APIClient) Convert(t *testing.T, url string) Response {
	return client.Do(t, http.MethodPost, "convert/", map[string]string{"url": url})
}

func (client *APIClient) SubmitJob(t *testing.T, url string) apiJobs.Dto {
	resp := client.Do(t, http.MethodPost, "jobs/", map[string]string{"url": url})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "failed to submit job: %s", resp.Body)

	var dto apiJobs.Dto
	require.NoError(t, json.Unmarshal(resp.Body, &dto))
	return dto
}

func (client *APIClient) GetJob(t *testing.T, id uuid.UUID) apiJobs.Dto {
	resp := client.Do(t, http.MethodGet, "jobs/"+id.String()+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "failed to get job %s: %s", id, resp.Body)

	var dto apiJobs.Dto
	require.NoError(t, json.Unmarshal(resp.Body, &dto))
	return dto
}

func (client *APIClient) ListJobs(t *testing.T) []apiJobs.Dto {
	resp := client.Do(t, http.MethodGet, "jobs/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "failed to list jobs: %s", resp.Body)

	var dtos []apiJobs.Dto
	require.NoError(t, json.Unmarshal(resp.Body, &dtos))
	return dtos
}

// WaitForJob polls the job until it finishes, failing the test if it
// does not finish in time.
func (client *APIClient) WaitForJob(t *testing.T, id uuid.UUID) apiJobs.Dto {
	var dto apiJobs.Dto
	assert.Eventually(t, func() bool {
		dto = client.GetJob(t, id)
		return dto.State.Finished()
	}, 5*time.Second, 20*time.Millisecond, "job %s did not finish", id)

	return dto
}

// ConnectActivity opens a websocket to the activity stream, returning the
// connection and the welcome message.
func (client *APIClient) ConnectActivity(t *testing.T) (*websocket.Conn, internalWs.SocketMessage) {
	url := "ws" + strings.TrimPrefix(client.BaseURL, "http") + ActivityPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "failed to connect to activity stream")
	t.Cleanup(func() { conn.Close() })

	welcome := ReadSocketMessage(t, conn)
	require.Equal(t, internalWs.Welcome, welcome.Type)
	return conn, welcome
}

// ReadSocketMessage reads a single message from the socket, failing the
// test if none arrives within a few seconds.
func ReadSocketMessage(t *testing.T, conn *websocket.Conn) internalWs.SocketMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message internalWs.SocketMessage
	require.NoError(t, conn.ReadJSON(&message), "failed to read socket message")
	return message
}
