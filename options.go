package liveblocks

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/M-Faheem-Khan/liveblocks/internal/coalescer"
	"github.com/M-Faheem-Khan/liveblocks/internal/env"
	"github.com/M-Faheem-Khan/liveblocks/internal/lberrors"
	"github.com/M-Faheem-Khan/liveblocks/internal/metrics"
	"github.com/M-Faheem-Khan/liveblocks/internal/transport"
)

// defaultPublicAuthorizeEndpoint is where a room authenticates when only
// PublicAPIKey is set (spec.md §6.1's "default public-authorize
// endpoint").
const defaultPublicAuthorizeEndpoint = "https://api.liveblocks.io/v2/authorize-user"

// AuthEndpointFunc is the callback form of the authEndpoint option
// (spec.md §6.1): called with the room id, returns a session token.
type AuthEndpointFunc func(ctx context.Context, room string) (token string, err error)

// Options configures a Client, matching spec.md §6.1's table plus the
// injectable seams SPEC_FULL.md's ambient stack adds (logger, metrics,
// transport/env polyfills) so a host can run this library without pulling
// in a browser.
type Options struct {
	// Exactly one of PublicAPIKey, AuthEndpoint, or AuthEndpointFunc must
	// be set.
	PublicAPIKey     string
	AuthEndpoint     string
	AuthEndpointFunc AuthEndpointFunc

	// Throttle is the outbound coalescer delay; zero selects
	// coalescer.DefaultThrottle. Must be in [80ms, 1000ms] if set.
	Throttle time.Duration

	// LiveblocksServer overrides the WebSocket server base URL.
	LiveblocksServer string

	// WebSocketPolyfill and FetchPolyfill substitute the default
	// gorilla/websocket Dialer and net/http Fetcher (spec.md §6.1).
	WebSocketPolyfill transport.Dialer
	FetchPolyfill     transport.Fetcher

	// Online and Visibility substitute the default no-op environment
	// signal sources; a host embedding this outside a browser supplies
	// its own to get retry-on-reconnect behavior (spec.md §4.1, §4.6).
	Online     env.Online
	Visibility env.Visibility

	// Logger receives structured logs from every room; defaults to a
	// no-op logger.
	Logger *zap.Logger

	// Metrics, if set, records Prometheus counters/gauges across every
	// room created by this Client.
	Metrics *metrics.Collector

	// ExtraHeaders is forwarded on every room's WebSocket dial.
	ExtraHeaders http.Header
}

// validate checks Options for the Configuration-kind violations spec.md
// §6.1/§7 describe, combining every violation found via multierr so a
// caller sees the full list at once rather than one at a time (mirroring
// SPEC_FULL.md's note that multierr backs option validation).
func (o Options) validate() error {
	var errs error

	authMethods := 0
	if o.PublicAPIKey != "" {
		authMethods++
	}
	if o.AuthEndpoint != "" {
		authMethods++
	}
	if o.AuthEndpointFunc != nil {
		authMethods++
	}
	switch {
	case authMethods == 0:
		errs = multierr.Append(errs, lberrors.New(lberrors.Configuration,
			"one of publicApiKey or authEndpoint is required"))
	case authMethods > 1:
		errs = multierr.Append(errs, lberrors.New(lberrors.Configuration,
			"publicApiKey and authEndpoint are mutually exclusive"))
	}

	if o.Throttle != 0 && (o.Throttle < coalescer.MinThrottle || o.Throttle > coalescer.MaxThrottle) {
		errs = multierr.Append(errs, lberrors.New(lberrors.Configuration,
			"throttle should be a number between 80 and 1000"))
	}

	return errs
}

func (o Options) throttleOrDefault() time.Duration {
	if o.Throttle == 0 {
		return coalescer.DefaultThrottle
	}
	return o.Throttle
}

func (o Options) dialerOrDefault() transport.Dialer {
	if o.WebSocketPolyfill != nil {
		return o.WebSocketPolyfill
	}
	return transport.NewWebSocketDialer()
}

func (o Options) fetcherOrDefault() transport.Fetcher {
	if o.FetchPolyfill != nil {
		return o.FetchPolyfill
	}
	return transport.NewHTTPFetcher()
}
