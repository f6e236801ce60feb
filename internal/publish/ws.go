package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// WSPublisher pushes payloads as JSON text frames over a long-lived
// WebSocket connection. The connection is dialled lazily on the first
// publish and dropped on any write error or once the peer closes it; the
// next publish redials. Incoming data messages are not expected and close
// the connection.
type WSPublisher struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
	// done ends when the background reader sees the connection close.
	done context.Context
}

var _ Publisher = (*WSPublisher)(nil)

// NewWSPublisher returns a publisher for url (e.g. "ws://127.0.0.1:5000/ws").
func NewWSPublisher(url string) (*WSPublisher, error) {
	if url == "" {
		return nil, errors.New("publish: ws url must not be empty")
	}
	return &WSPublisher{url: url}, nil
}

// Publish implements [Publisher]. Writes are serialised.
func (p *WSPublisher) Publish(ctx context.Context, pl Payload) error {
	data, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("publish: ws: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && p.done.Err() != nil {
		p.conn.CloseNow()
		p.conn = nil
	}
	if p.conn == nil {
		conn, _, err := websocket.Dial(ctx, p.url, nil)
		if err != nil {
			return fmt.Errorf("publish: ws: dial: %w", err)
		}
		// Control frames (ping, close) are only handled while reading.
		p.done = conn.CloseRead(context.Background())
		p.conn = conn
	}
	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		p.conn.Close(websocket.StatusInternalError, "write failed")
		p.conn = nil
		return fmt.Errorf("publish: ws: write: %w", err)
	}
	return nil
}

// Close closes the connection, if any.
func (p *WSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close(websocket.StatusNormalClosure, "shutting down")
	p.conn = nil
	return err
}
