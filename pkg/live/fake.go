package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

// errFakeClosed is returned by FakeConn reads after Close.
var errFakeClosed = errors.New("live: fake connection closed")

// FakeDialer hands out FakeConns for tests. Set Err to make the next dials
// fail.
type FakeDialer struct {
	mu    sync.Mutex
	Err   error
	conns []*FakeConn
	urls  []string
}

// Dial implements Dialer.
func (d *FakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns how many dials were attempted, including failures.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// Conn returns the i-th successful connection, or nil.
func (d *FakeDialer) Conn(i int) *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// Last returns the most recent successful connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// SetErr changes the dial error.
func (d *FakeDialer) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// FakeConn is an in-memory Conn. Server frames are scripted with Push;
// client frames are captured for inspection.
type FakeConn struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inbound [][]byte
	sent    [][]byte
	closed  bool
	readErr error
	waiting bool
}

// NewFakeConn creates an open FakeConn.
func NewFakeConn() *FakeConn {
	c := &FakeConn{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ReadMessage returns the next pushed frame.
func (c *FakeConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.inbound) == 0 && !c.closed {
		c.waiting = true
		c.cond.Broadcast()
		c.cond.Wait()
	}
	c.waiting = false
	if len(c.inbound) > 0 {
		data := c.inbound[0]
		c.inbound = c.inbound[1:]
		return data, nil
	}
	if c.readErr != nil {
		return nil, c.readErr
	}
	return nil, errFakeClosed
}

// WriteMessage records a client frame.
func (c *FakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFakeClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Close closes the connection locally.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

// Push queues a server frame. v is JSON-encoded unless it is []byte.
func (c *FakeConn) Push(v any) {
	data, ok := v.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			panic(err)
		}
	}
	c.mu.Lock()
	c.inbound = append(c.inbound, data)
	c.waiting = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// PushSetupComplete queues the setup acknowledgement.
func (c *FakeConn) PushSetupComplete() {
	c.Push(ServerMessage{SetupComplete: &struct{}{}})
}

// Drop simulates the server dropping the connection with err.
func (c *FakeConn) Drop(err error) {
	c.mu.Lock()
	c.closed = true
	c.readErr = err
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Sync blocks until every pushed frame has been read and the reader is
// waiting for more, or the connection is closed. Because the client
// dispatches each frame before reading the next, Sync returning means all
// pushed frames were handled.
func (c *FakeConn) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.closed && !(c.waiting && len(c.inbound) == 0) {
		c.cond.Wait()
	}
}

// Sent returns a copy of every frame the client wrote.
func (c *FakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentMessages decodes every client frame.
func (c *FakeConn) SentMessages() []ClientMessage {
	var out []ClientMessage
	for _, data := range c.Sent() {
		var m ClientMessage
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Closed reports whether Close or Drop was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
