package room

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/M-Faheem-Khan/liveblocks/internal/env"
	"github.com/M-Faheem-Khan/liveblocks/internal/metrics"
	"github.com/M-Faheem-Khan/liveblocks/internal/transport"
)

// AuthFunc is the callback form of spec.md §6.1's authEndpoint option:
// called with the room id, returns a session token.
type AuthFunc func(ctx context.Context, room string) (token string, err error)

// Config carries everything one Room needs to authenticate, connect, and
// run — the per-room slice of liveblocks.Options plus the injected
// transport/env seams, assembled by the root package's Client.
type Config struct {
	RoomID string

	// Exactly one of PublicAPIKey or (AuthEndpointURL xor AuthFunc) is set;
	// liveblocks.NewClient validates this before any Room is constructed.
	PublicAPIKey            string
	PublicAuthorizeEndpoint string
	AuthEndpointURL         string
	AuthFunc                AuthFunc

	// LiveblocksServer is the WebSocket base URL rooms dial against.
	LiveblocksServer string

	Throttle time.Duration

	Dialer  transport.Dialer
	Fetcher transport.Fetcher

	Online     env.Online
	Visibility env.Visibility

	Logger  *zap.Logger
	Metrics *metrics.Collector

	// ExtraHeaders is forwarded on the WebSocket dial, e.g. for a host that
	// wants to carry its own correlation id.
	ExtraHeaders http.Header
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger.Named("room").With(zap.String("room", c.RoomID))
}

func (c Config) metricsOrNop() *metrics.Collector {
	if c.Metrics == nil {
		return metrics.NewNopCollector()
	}
	return c.Metrics
}

func (c Config) onlineOrDefault() env.Online {
	if c.Online == nil {
		return env.DefaultOnline
	}
	return c.Online
}

func (c Config) visibilityOrDefault() env.Visibility {
	if c.Visibility == nil {
		return env.DefaultVisibility
	}
	return c.Visibility
}
