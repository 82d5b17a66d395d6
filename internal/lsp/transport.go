package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/mqlsp/internal/logging"
)

// Request is an incoming JSON-RPC request or notification. Notifications
// carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether no response is expected.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// Response is an outgoing JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// notification is an outgoing JSON-RPC notification.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Handler processes incoming messages. For notifications the result is
// discarded.
type Handler interface {
	Handle(ctx context.Context, req *Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

var errMissingLength = errors.New("missing Content-Length header")

// Conn is the server side of a JSON-RPC 2.0 connection using the LSP base
// protocol with Content-Length headers.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer

	mu sync.Mutex // serializes writes
}

// NewConn creates a connection reading from r and writing to w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
	}
}

// Serve reads messages until EOF or until a handler returns ErrExit.
//
// Notifications are handled on the read loop in delivery order. Requests are
// handled concurrently and answered as they complete. Serve waits for
// in-flight requests before returning.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := c.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			if errors.Is(err, errMissingLength) {
				logging.Warn("transport", "dropping message: %v", err)
				continue
			}
			return err
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(json.RawMessage("null"), nil, &RPCError{Code: CodeParseError, Message: err.Error()})
			continue
		}
		if req.Method == "" {
			// Responses to server-initiated requests; none are sent.
			continue
		}

		if req.IsNotification() {
			if _, err := h.Handle(ctx, &req); err != nil {
				if errors.Is(err, ErrExit) {
					return nil
				}
				logging.Warn("transport", "notification %s: %v", req.Method, err)
			}
			continue
		}

		wg.Add(1)
		go func(req *Request) {
			defer wg.Done()
			result, err := h.Handle(ctx, req)
			c.reply(req.ID, result, err)
		}(&req)
	}
}

// Notify sends a notification to the client.
func (c *Conn) Notify(method string, params any) error {
	return c.send(&notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Conn) reply(id json.RawMessage, result any, err error) {
	resp := &Response{JSONRPC: "2.0", ID: id}
	if err != nil {
		resp.Error = toRPCError(err)
	} else {
		data, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: mErr.Error()}
		} else {
			resp.Result = data
		}
	}
	if sendErr := c.send(resp); sendErr != nil {
		logging.Error("transport", sendErr, "reply failed")
	}
}

// send writes a message with LSP content-length header.
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

// readMessage reads a single LSP message.
func (c *Conn) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break // End of headers
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
				if err == nil {
					contentLength = length
				}
			}
		}
		// Ignore Content-Type and other headers
	}

	if contentLength <= 0 {
		return nil, errMissingLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}
