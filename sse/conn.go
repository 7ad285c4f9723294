package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	gosse "github.com/tmaxmax/go-sse"
	"github.com/vyvu99/mcp-server/internal/jsonrpc"
)

var errStreamClosed = errors.New("sse: stream closed")

var (
	endpointEvent = gosse.Type("endpoint")
	messageEvent  = gosse.Type("message")
)

// conn serializes writes to one upgraded stream. It doubles as the
// keep-alive handle and the notification peer of the session.
type conn struct {
	mu     sync.Mutex
	sess   *gosse.Session
	done   <-chan struct{}
	broken chan struct{}
	once   sync.Once
}

func newConn(sess *gosse.Session, done <-chan struct{}) *conn {
	return &conn{sess: sess, done: done, broken: make(chan struct{})}
}

func (c *conn) markBroken() { c.once.Do(func() { close(c.broken) }) }

// Writable reports whether the client is still connected and no write failed.
func (c *conn) Writable() bool {
	select {
	case <-c.done:
		return false
	case <-c.broken:
		return false
	default:
		return true
	}
}

// WriteComment writes a comment-only frame, used for keep-alive pings.
func (c *conn) WriteComment(text string) error {
	msg := &gosse.Message{}
	msg.AppendComment(text)
	return c.send(msg)
}

func (c *conn) send(msg *gosse.Message) error {
	if !c.Writable() {
		return errStreamClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sess.Send(msg); err != nil {
		c.markBroken()
		return fmt.Errorf("sse: send: %w", err)
	}
	if err := c.sess.Flush(); err != nil {
		c.markBroken()
		return fmt.Errorf("sse: flush: %w", err)
	}
	return nil
}

func (c *conn) sendEndpoint(url string) error {
	msg := &gosse.Message{Type: endpointEvent}
	msg.AppendData(url)
	return c.send(msg)
}

func (c *conn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	msg := &gosse.Message{Type: messageEvent}
	msg.AppendData(string(b))
	return c.send(msg)
}

// Notify implements mcpserver.Peer.
func (c *conn) Notify(_ context.Context, msg *jsonrpc.Request) error {
	return c.sendJSON(msg)
}
