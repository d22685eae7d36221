// Package transport defines the injectable network boundary the room
// connection machine talks to — a WebSocket-like Socket and an HTTP-like
// Fetcher — plus a default implementation on top of gorilla/websocket and
// net/http. spec.md §1 explicitly keeps "the concrete WebSocket
// implementation" and the host's fetch out of the core's scope; this
// package is the seam the room package programs against instead of
// importing a transport library directly, and §6.1's WebSocketPolyfill/
// fetchPolyfill options are satisfied by swapping the Dialer/Fetcher the
// room is constructed with.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one WebSocket connection's read/write/close surface, narrowed
// to what the room connection machine needs.
type Socket interface {
	// WriteJSON sends v as a single text frame.
	WriteJSON(v any) error
	// ReadMessage blocks until the next frame arrives or the connection
	// fails, returning the raw payload bytes.
	ReadMessage() ([]byte, error)
	// Ping sends a control ping frame; used for the §4.1 heartbeat.
	Ping() error
	// Close closes the connection with the given WebSocket close code.
	Close(code int) error
}

// Dialer opens a new Socket to url. The default implementation wraps
// gorilla/websocket; §6.1's WebSocketPolyfill option substitutes another
// Dialer entirely.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// Fetcher performs the HTTP POST used for the auth token exchange
// (spec.md §6.2's "Auth exchange"). The default implementation wraps
// net/http; §6.1's fetchPolyfill option substitutes another Fetcher.
type Fetcher interface {
	PostJSON(ctx context.Context, url string, body any) (status int, respBody []byte, err error)
}

// gorillaSocket adapts *websocket.Conn to Socket. Per gorilla/websocket's
// documented concurrency rules, at most one goroutine may call the write
// methods concurrently and at most one may call the read methods
// concurrently — the room's single-threaded event loop already satisfies
// this for writes; ReadMessage is only ever called from the dedicated read
// loop goroutine.
type gorillaSocket struct {
	conn *websocket.Conn
}

func (s *gorillaSocket) WriteJSON(v any) error {
	return s.conn.WriteJSON(v)
}

func (s *gorillaSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *gorillaSocket) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

func (s *gorillaSocket) Close(code int) error {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return s.conn.Close()
}

const writeWait = 5 * time.Second

// WebSocketDialer is the default Dialer, backed by gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// NewWebSocketDialer returns a WebSocketDialer using gorilla/websocket's
// default dial configuration.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{Dialer: websocket.DefaultDialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &gorillaSocket{conn: conn}, nil
}

// HTTPFetcher is the default Fetcher, backed by net/http.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher using http.DefaultClient.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient}
}

func (f *HTTPFetcher) PostJSON(ctx context.Context, url string, body any) (int, []byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("transport: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("transport: read auth response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
