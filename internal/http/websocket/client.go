package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type socketClient struct {
	sync.Mutex
	id     uuid.UUID
	socket *websocket.Conn
}

// SendMessage writes the message to the client. Writes are serialized
// as gorilla connections support only one concurrent writer.
func (client *socketClient) SendMessage(message *SocketMessage) error {
	client.Lock()
	defer client.Unlock()
	return client.socket.WriteJSON(message)
}

// Read starts a read-loop on the client's connection, emitting all received
// messages on the channel provided. The loop ends when the connection errors
// or a message cannot be decoded; the caller must deregister the client.
func (client *socketClient) Read(receiveCh chan<- *SocketMessage) error {
	for {
		var recv SocketMessage
		if err := client.socket.ReadJSON(&recv); err != nil {
			return err
		}

		origin := client.id
		recv.Origin = &origin
		receiveCh <- &recv
	}
}

func (client *socketClient) Close() {
	client.socket.Close()
}
