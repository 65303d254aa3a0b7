package signaling

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a connection handle as seen by rooms and the router.
//
// Send never blocks and silently drops data once the handle is no longer
// open. Close queues a close frame behind pending messages.
type Conn interface {
	ID() string
	Send(data []byte)
	IsOpen() bool
	Close(code int, reason string)
}

const (
	wsWriteWait = 1 * time.Second

	// shutdownDrainWait bounds how long a closing connection waits for its
	// writer to flush queued frames.
	shutdownDrainWait = 2 * wsWriteWait
)

// wsConn is the Conn backed by a gorilla websocket. All data frames go
// through a single writer goroutine; pings use WriteControl, which gorilla
// allows concurrently with other writes.
type wsConn struct {
	id    string
	ws    *websocket.Conn
	queue *sendQueue

	open atomic.Bool
	// onDrop is called for every frame refused by a full queue.
	onDrop func()

	done chan struct{}
}

func newWSConn(id string, ws *websocket.Conn, queueBytes int, onDrop func()) *wsConn {
	c := &wsConn{
		id:     id,
		ws:     ws,
		queue:  newSendQueue(queueBytes),
		onDrop: onDrop,
		done:   make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) IsOpen() bool { return c.open.Load() }

func (c *wsConn) Send(data []byte) {
	if !c.open.Load() {
		return
	}
	if !c.queue.Enqueue(data) && c.onDrop != nil {
		c.onDrop()
	}
}

func (c *wsConn) Close(code int, reason string) {
	if !c.open.CompareAndSwap(true, false) {
		return
	}
	c.queue.EnqueueClose(code, reason)
}

// writeLoop drains the queue until it is closed or a write fails. It closes
// the underlying socket on exit, which unblocks the read loop.
func (c *wsConn) writeLoop() {
	defer close(c.done)
	defer func() { _ = c.ws.Close() }()

	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		if frame.close {
			c.open.Store(false)
			msg := websocket.FormatCloseMessage(frame.closeCode, frame.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, frame.data); err != nil {
			c.open.Store(false)
			c.queue.Discard()
			return
		}
	}
}

// pingLoop sends keepalive pings until the writer exits.
func (c *wsConn) pingLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// shutdown is called once the read loop has exited. Queued frames (such as an
// error followed by a close frame) get a bounded chance to flush before the
// socket is torn down.
func (c *wsConn) shutdown() {
	c.open.Store(false)
	c.queue.Close()

	timer := time.NewTimer(shutdownDrainWait)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.queue.Discard()
		_ = c.ws.Close()
		<-c.done
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
