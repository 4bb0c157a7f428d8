package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Phonograph/internal/http/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, hub *websocket.SocketHub) *gorilla.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Start(ctx)
	}()

	server := httptest.NewServer(http.HandlerFunc(hub.UpgradeToSocket))
	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		c, _, err := gorilla.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond, "hub never accepted a connection")
	t.Cleanup(func() { conn.Close() })

	return conn
}

func read(t *testing.T, conn *gorilla.Conn) websocket.SocketMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg websocket.SocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func Test_Hub_WelcomeAndBroadcast(t *testing.T) {
	hub := websocket.New()
	hub.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"jobs": 2}
	})
	conn := startHub(t, hub)

	welcome := read(t, conn)
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)
	assert.Equal(t, websocket.Welcome, welcome.Type)
	assert.EqualValues(t, 2, welcome.Body["jobs"])
	assert.NotEmpty(t, welcome.Body["client"])

	hub.Send(&websocket.SocketMessage{Title: "JOB_UPDATE", Type: websocket.Update, Body: map[string]interface{}{"state": "RUNNING"}})
	update := read(t, conn)
	assert.Equal(t, "JOB_UPDATE", update.Title)
	assert.Equal(t, "RUNNING", update.Body["state"])
}

func Test_Hub_Commands(t *testing.T) {
	hub := websocket.New()
	hub.BindCommand("ECHO", func(hub *websocket.SocketHub, msg *websocket.SocketMessage) error {
		if err := msg.ValidateArguments(map[string]string{"value": "string"}); err != nil {
			return err
		}
		hub.Send(msg.FormReply("ECHO_REPLY", map[string]interface{}{"value": msg.Body["value"]}, websocket.Response))
		return nil
	})
	hub.BindCommand("FAIL", func(*websocket.SocketHub, *websocket.SocketMessage) error {
		return errors.New("nope")
	})

	conn := startHub(t, hub)
	read(t, conn)

	tests := []struct {
		command       string
		body          map[string]interface{}
		expectedTitle string
		expectedType  interface{}
	}{
		{command: "ECHO", body: map[string]interface{}{"value": "hello"}, expectedTitle: "ECHO_REPLY", expectedType: websocket.Response},
		{command: "ECHO", body: map[string]interface{}{"value": 12.0}, expectedTitle: "COMMAND_FAILURE", expectedType: websocket.ErrorResponse},
		{command: "FAIL", expectedTitle: "COMMAND_FAILURE", expectedType: websocket.ErrorResponse},
		{command: "UNKNOWN", expectedTitle: "COMMAND_FAILURE", expectedType: websocket.ErrorResponse},
	}

	for i, test := range tests {
		t.Run(test.command, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(websocket.SocketMessage{Title: test.command, Id: i, Type: websocket.Command, Body: test.body}))

			reply := read(t, conn)
			assert.Equal(t, test.expectedTitle, reply.Title)
			assert.Equal(t, test.expectedType, reply.Type)
			assert.Equal(t, i, reply.Id, "reply must carry the command's ID")
		})
	}
}

func Test_Hub_RejectsWhenOffline(t *testing.T) {
	hub := websocket.New()
	rec := httptest.NewRecorder()
	hub.UpgradeToSocket(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Sending to an offline hub must not block.
	hub.Send(&websocket.SocketMessage{Title: "DROPPED"})
}

func Test_ValidateArguments(t *testing.T) {
	msg := &websocket.SocketMessage{Body: map[string]interface{}{"id": "abc", "count": 3.0, "empty": ""}}

	assert.NoError(t, msg.ValidateArguments(map[string]string{"id": "string", "count": "number"}))
	assert.Error(t, msg.ValidateArguments(map[string]string{"missing": "string"}))
	assert.Error(t, msg.ValidateArguments(map[string]string{"empty": "string"}))
	assert.Error(t, msg.ValidateArguments(map[string]string{"id": "number"}))
	assert.Error(t, msg.ValidateArguments(map[string]string{"id": "bool"}))
}
