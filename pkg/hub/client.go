package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second

	// Pings go out often enough to refresh readTimeout on the peer.
	pingInterval = readTimeout * 9 / 10

	// Dashboard clients only send control frames.
	readLimit = 64 * 1024

	clientQueue = 64
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	done chan struct{} // closed when the writer has exited
}

// NewClient attaches conn to hub. A hub that has already stopped leaves
// the client with a closed queue, so Run returns at once.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, clientQueue),
		done: make(chan struct{}),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

// Serve returns a fiber websocket handler that attaches each connection
// to hub.
func Serve(hub *Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		NewClient(hub, conn).Run()
	}
}

// Run serves the connection and returns only after both the reader and
// the writer are done with it. The fiber handler must not return earlier:
// the connection is pooled as soon as it does.
func (c *Client) Run() {
	go c.write()
	c.read()

	// Leaving the hub closes send, which stops the writer.
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	<-c.done
}

// read consumes pongs until the peer goes away.
func (c *Client) read() {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write owns every write on the connection.
func (c *Client) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			kind := websocket.TextMessage
			if msg.Type == BinaryMessage {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
