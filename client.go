package liveblocks

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/M-Faheem-Khan/liveblocks/internal/env"
	"github.com/M-Faheem-Khan/liveblocks/room"
)

// Client is a process-wide pool of active rooms, keyed by room id, per
// spec.md §4.6. Construct with NewClient.
type Client struct {
	opts Options

	online     env.Online
	visibility env.Visibility

	mu    sync.Mutex
	rooms map[string]*room.Room
}

// NewClient validates opts and returns a Client. Configuration violations
// (mutually exclusive auth options, throttle out of range) are reported
// synchronously, combined via multierr if more than one applies, per
// spec.md §7.
func NewClient(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		opts:  opts,
		rooms: make(map[string]*room.Room),
	}
	if opts.Online != nil {
		c.online = opts.Online
	} else {
		c.online = env.DefaultOnline
	}
	if opts.Visibility != nil {
		c.visibility = opts.Visibility
	} else {
		c.visibility = env.DefaultVisibility
	}
	return c, nil
}

// EnterOptions configures a single Enter call.
type EnterOptions struct {
	// WithoutConnecting mounts the room without starting the connection
	// state machine, for server-side rendering or tests that want to
	// control when Connect is called (spec.md §4.6).
	WithoutConnecting bool
}

// Enter returns the existing room for roomID, or creates and starts one.
// Every pooled room shares this Client's Online/Visibility sources, so an
// offline->online or hidden->visible transition reaches every room
// (spec.md §4.6) without the Client needing to re-signal them itself.
func (c *Client) Enter(roomID string, opts ...EnterOptions) *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.rooms[roomID]; ok {
		return r
	}

	var eo EnterOptions
	if len(opts) > 0 {
		eo = opts[0]
	}

	r := room.New(c.roomConfig(roomID))
	r.Start(!eo.WithoutConnecting)
	c.rooms[roomID] = r
	return r
}

// Leave disconnects and removes roomID from the pool. A no-op if the room
// was never entered (or already left).
func (c *Client) Leave(roomID string) error {
	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if ok {
		delete(c.rooms, roomID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Leave()
}

// GetRoom is a pure lookup: it never creates a room.
func (c *Client) GetRoom(roomID string) (*room.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	return r, ok
}

// Close leaves every pooled room concurrently and returns the combined
// errors from their final socket closes, if any — the one other place
// SPEC_FULL.md's ambient stack calls for multierr, since no single room's
// close failure should suppress another's.
func (c *Client) Close() error {
	c.mu.Lock()
	rooms := make([]*room.Room, 0, len(c.rooms))
	for id, r := range c.rooms {
		rooms = append(rooms, r)
		delete(c.rooms, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(rooms))
	for i, r := range rooms {
		wg.Add(1)
		go func(i int, r *room.Room) {
			defer wg.Done()
			errs[i] = r.Leave()
		}(i, r)
	}
	wg.Wait()

	return multierr.Combine(errs...)
}

func (c *Client) roomConfig(roomID string) room.Config {
	cfg := room.Config{
		RoomID:                  roomID,
		PublicAPIKey:            c.opts.PublicAPIKey,
		PublicAuthorizeEndpoint: defaultPublicAuthorizeEndpoint,
		AuthEndpointURL:         c.opts.AuthEndpoint,
		LiveblocksServer:        c.opts.LiveblocksServer,
		Throttle:                c.opts.throttleOrDefault(),
		Dialer:                  c.opts.dialerOrDefault(),
		Fetcher:                 c.opts.fetcherOrDefault(),
		Online:                  c.online,
		Visibility:              c.visibility,
		Logger:                  c.opts.Logger,
		Metrics:                 c.opts.Metrics,
		ExtraHeaders:            c.opts.ExtraHeaders,
	}
	if c.opts.AuthEndpointFunc != nil {
		cfg.AuthFunc = room.AuthFunc(c.opts.AuthEndpointFunc)
	}
	return cfg
}
