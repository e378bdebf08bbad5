// Package transport speaks JSON-RPC 2.0 with the assistant backend over a
// byte stream, typically the stdio pipes of a spawned backend process.
// Messages are framed with Content-Length headers.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"pkt.systems/inlined/schema"
	"pkt.systems/pslog"
)

// NotificationHandler receives server-initiated notifications.
type NotificationHandler func(method string, params json.RawMessage)

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Conn is one backend connection. Request correlates responses to callers
// through ids; inbound notifications fan out to registered handlers.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	log    pslog.Logger

	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *response
	handlers map[string]NotificationHandler

	closed atomic.Bool
	done   chan struct{}
}

// New wraps a read/write pair as a connection. Pass the process's stdout
// as r and stdin as w; c, if non-nil, is closed with the connection.
func New(r io.Reader, w io.Writer, c io.Closer, logger pslog.Logger) *Conn {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Conn{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		log:      logger,
		pending:  make(map[int64]chan *response),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Start begins the read loop.
func (c *Conn) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

// Close tears the connection down. Callers blocked in Request fail with
// ErrTransport.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	// Drop the pending map rather than closing the channels; waiters
	// unblock on done.
	c.mu.Lock()
	c.pending = make(map[int64]chan *response)
	c.mu.Unlock()

	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Request sends one request and blocks for its response or ctx.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, schema.ErrTransport
	}

	id := c.nextID.Add(1)
	ch := make(chan *response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, schema.ErrTransport
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify sends a notification, fire and forget.
func (c *Conn) Notify(method string, params any) error {
	if c.closed.Load() {
		return schema.ErrTransport
	}
	return c.send(&request{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers a handler for a server notification method.
// "*" matches methods without a dedicated handler.
func (c *Conn) OnNotification(method string, handler NotificationHandler) {
	c.mu.Lock()
	c.handlers[method] = handler
	c.mu.Unlock()
}

func (c *Conn) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		msg, err := c.readMessage()
		if err != nil {
			if c.closed.Load() || err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			c.log.Warn("backend message read failed", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if length, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					contentLength = length
				}
			}
		}
	}
	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch probes for an id to tell responses from notifications.
func (c *Conn) dispatch(data json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Error  *RPCError       `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.log.Warn("backend message malformed", "err", err)
		return
	}

	if probe.ID != nil && (probe.Result != nil || probe.Error != nil) {
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		c.handleResponse(&resp)
		return
	}
	if probe.Method != "" {
		var notif notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return
		}
		c.handleNotification(&notif)
	}
}

func (c *Conn) handleResponse(resp *response) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

func (c *Conn) handleNotification(notif *notification) {
	c.mu.Lock()
	handler, ok := c.handlers[notif.Method]
	if !ok {
		handler, ok = c.handlers["*"]
	}
	c.mu.Unlock()

	if ok && handler != nil {
		// Handlers run off the read loop so a slow consumer cannot stall
		// response delivery.
		go handler(notif.Method, notif.Params)
	}
}

// IsClosed reports whether Close ran.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
