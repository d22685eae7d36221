// Package faketransport provides deterministic Socket/Dialer/Fetcher test
// doubles for driving the room connection machine without a real network,
// in the spirit of the teacher's in-memory hub test doubles.
package faketransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/M-Faheem-Khan/liveblocks/internal/transport"
)

// ErrClosed is returned by ReadMessage/WriteJSON after Close.
var ErrClosed = errors.New("faketransport: socket closed")

// Socket is an in-memory Socket double. Frames written by the caller are
// appended to Sent; frames to be "received" are pushed onto the inbound
// channel via Push. Safe for concurrent use.
type Socket struct {
	mu     sync.Mutex
	closed bool
	inbox  chan []byte

	Sent      [][]byte
	Pings     int
	CloseCode int
}

// NewSocket creates a Socket with the given inbound buffer capacity.
func NewSocket(bufferSize int) *Socket {
	return &Socket{inbox: make(chan []byte, bufferSize)}
}

// Push enqueues a server->client frame for the next ReadMessage call.
func (s *Socket) Push(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.inbox <- data
	return nil
}

// PushRaw enqueues raw bytes for the next ReadMessage call, for tests that
// need to exercise malformed-frame handling.
func (s *Socket) PushRaw(data []byte) {
	s.inbox <- data
}

func (s *Socket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Sent = append(s.Sent, data)
	return nil
}

func (s *Socket) ReadMessage() ([]byte, error) {
	data, ok := <-s.inbox
	if !ok {
		return nil, ErrClosed
	}
	return data, nil
}

func (s *Socket) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.Pings++
	return nil
}

func (s *Socket) Close(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.CloseCode = code
	close(s.inbox)
	return nil
}

// Dialer is a Dialer double that always hands out a preconfigured Socket,
// or fails with Err if set.
type Dialer struct {
	mu      sync.Mutex
	Socket  *Socket
	Err     error
	DialLog []string
}

// NewDialer creates a Dialer that returns socket on every Dial call.
func NewDialer(socket *Socket) *Dialer {
	return &Dialer{Socket: socket}
}

func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (transport.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialLog = append(d.DialLog, url)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Socket, nil
}

// Fetcher is a Fetcher double returning a fixed status/body, or failing
// with Err if set.
type Fetcher struct {
	mu       sync.Mutex
	Status   int
	Body     []byte
	Err      error
	Requests []any
}

// NewFetcher creates a Fetcher returning the given status and JSON-encoded
// body on every call.
func NewFetcher(status int, body any) *Fetcher {
	data, _ := json.Marshal(body)
	return &Fetcher{Status: status, Body: data}
}

func (f *Fetcher) PostJSON(ctx context.Context, url string, body any) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, body)
	if f.Err != nil {
		return 0, nil, f.Err
	}
	return f.Status, f.Body, nil
}
