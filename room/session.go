// The connection state machine itself: authenticate, dial, await ROOM_STATE,
// run the open session's heartbeat and frame dispatch, and fall back to
// backoff on any failure. Grounded on the teacher's
// agent/internal/connection/manager.go Run/connect/heartbeat loop,
// generalized from a gRPC agent session to a JSON/WebSocket room per
// spec.md §4.1.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/M-Faheem-Khan/liveblocks/internal/lberrors"
	"github.com/M-Faheem-Khan/liveblocks/internal/transport"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

const (
	defaultLiveblocksServer = "wss://rooms.liveblocks.io"

	heartbeatInterval       = 30 * time.Second
	heartbeatTimeout        = 60 * time.Second
	protocolViolationLimit  = 5
	protocolViolationWindow = 10 * time.Second

	// reauthSkew is how far ahead of a session token's exp claim the
	// connection machine proactively reconnects, so a fresh token is in
	// hand before the relay would start rejecting frames carrying the old
	// one (spec.md §4.7 via SPEC_FULL.md's JWT addition).
	reauthSkew = 30 * time.Second
)

// errReauthNeeded is returned by runOpenSession when the session token is
// about to expire; the caller retries immediately without consuming a
// backoff step, since this is a planned reconnect rather than a failure.
var errReauthNeeded = errors.New("room: session token nearing expiry")

// Start launches the connection state machine's goroutine and wires the
// configured online/visibility sources to skip the remaining backoff delay
// on a transition to online/visible (spec.md §4.1). If connect is false the
// machine waits in Closed until Connect is called. Call at most once per
// Room.
func (r *Room) Start(connect bool) {
	r.unsubOnline = r.cfg.onlineOrDefault().Subscribe(func(online bool) {
		if online {
			r.skipRemainingBackoff()
		}
	})
	r.unsubVisibility = r.cfg.visibilityOrDefault().Subscribe(func(visible bool) {
		if visible {
			r.skipRemainingBackoff()
		}
	})
	go r.run(connect)
}

func (r *Room) skipRemainingBackoff() {
	select {
	case r.skipBackoff <- struct{}{}:
	default:
	}
}

// run is the state machine's single execution context: authenticate, dial,
// run the open session, then either loop straight back around (reauth) or
// back off (failure) — until Leave cancels ctx.
func (r *Room) run(connect bool) {
	defer close(r.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	r.ctx = ctx
	r.cancel = cancel
	go func() {
		<-r.leaveCh
		cancel()
	}()
	defer r.closeSocket()

	if !connect {
		r.setState(Closed)
		select {
		case <-r.connectSignal:
		case <-ctx.Done():
			return
		}
	}

	var bo backoff
	skipNextBackoff := false

	for {
		if ctx.Err() != nil {
			return
		}

		r.setState(Authenticating)
		token, err := r.authenticate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if lbErr, ok := err.(*lberrors.Error); ok && lbErr.Kind == lberrors.AuthPermanent {
				r.setState(Failed)
				r.emitError(lbErr)
				if !r.waitForReconnectSignal(ctx) {
					return
				}
				continue
			}
			r.logger.Warn("auth failed, retrying", zap.Error(err))
			r.setState(Unavailable)
			if !r.waitBackoff(ctx, &bo) {
				return
			}
			continue
		}

		socket, err := r.dialAndHandshake(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("connect failed, retrying", zap.Error(err))
			r.setState(Unavailable)
			if !r.waitBackoff(ctx, &bo) {
				return
			}
			continue
		}

		bo.reset()
		r.setSocket(socket)
		r.setState(Open)
		r.coalescer.SetOpen(true)
		if !r.fetchedOnce {
			r.fetchedOnce = true
			if err := socket.WriteJSON(wire.ClientFrame{Type: wire.ClientFetchStorage, Payload: wire.FetchStoragePayload{}}); err != nil {
				r.logger.Warn("write FETCH_STORAGE failed", zap.Error(err))
			}
		}
		r.coalescer.RequestFullPresenceResync(r.presence.Local(), nil)

		sessionErr := r.runOpenSession(ctx, socket, token)

		r.coalescer.SetOpen(false)
		r.setSocket(nil)

		if ctx.Err() != nil {
			return
		}

		r.cfg.metricsOrNop().ReconnectAttempted(r.id)

		if errors.Is(sessionErr, errReauthNeeded) {
			skipNextBackoff = true
		}
		if skipNextBackoff {
			skipNextBackoff = false
			r.setState(Unavailable)
			continue
		}

		r.logger.Warn("session ended, reconnecting", zap.Error(sessionErr))
		r.setState(Unavailable)
		if !r.waitBackoff(ctx, &bo) {
			return
		}
	}
}

func (r *Room) waitForReconnectSignal(ctx context.Context) bool {
	select {
	case <-r.connectSignal:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Room) waitBackoff(ctx context.Context, bo *backoff) bool {
	delay := bo.next()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.skipBackoff:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Room) closeSocket() {
	if s := r.currentSocket(); s != nil {
		if err := s.Close(1000); err != nil {
			r.leaveErr = err
		}
	}
}

// --- authentication (spec.md §6.2 "Auth exchange") ----------------------

type authRequestBody struct {
	Room         string `json:"room"`
	PublicAPIKey string `json:"publicApiKey,omitempty"`
}

type authResponseBody struct {
	Token string `json:"token"`
}

// authenticate resolves a session token via whichever of AuthFunc,
// AuthEndpointURL, or PublicAPIKey the room was configured with —
// liveblocks.NewClient has already validated exactly one path applies.
func (r *Room) authenticate(ctx context.Context) (string, error) {
	if r.cfg.AuthFunc != nil {
		token, err := r.cfg.AuthFunc(ctx, r.id)
		if err != nil {
			return "", lberrors.Wrap(lberrors.AuthTransientOrNetwork, r.id, "auth callback failed", err)
		}
		return token, nil
	}

	endpoint := r.cfg.AuthEndpointURL
	if endpoint == "" {
		endpoint = r.cfg.PublicAuthorizeEndpoint
	}
	status, body, err := r.cfg.Fetcher.PostJSON(ctx, endpoint, authRequestBody{
		Room:         r.id,
		PublicAPIKey: r.cfg.PublicAPIKey,
	})
	if err != nil {
		return "", lberrors.Wrap(lberrors.AuthTransientOrNetwork, r.id, "auth request failed", err)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", lberrors.New(lberrors.AuthPermanent, fmt.Sprintf("auth endpoint returned %d", status))
	case status != http.StatusOK:
		return "", lberrors.New(lberrors.AuthTransientOrNetwork, fmt.Sprintf("auth endpoint returned %d", status))
	}

	var resp authResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", lberrors.Wrap(lberrors.AuthPermanent, r.id, "malformed auth response", err)
	}
	if resp.Token == "" {
		return "", lberrors.New(lberrors.AuthPermanent, "auth response missing token")
	}
	return resp.Token, nil
}

// tokenClaims parses (without verifying — the client holds no verification
// key; that is the relay's job) the session token to recover its actor id
// and expiry, mirroring SPEC_FULL.md's JWT addition.
func tokenClaims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func actorFromToken(token string) (int, bool) {
	claims, ok := tokenClaims(token)
	if !ok {
		return 0, false
	}
	switch v := claims["actor"].(type) {
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func tokenExpiry(token string) (time.Time, bool) {
	claims, ok := tokenClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// --- dial + handshake (spec.md §4.1 connecting -> open) -----------------

func (r *Room) socketURL(token string) string {
	base := r.cfg.LiveblocksServer
	if base == "" {
		base = defaultLiveblocksServer
	}
	q := url.Values{}
	q.Set("token", token)
	return fmt.Sprintf("%s/v1/room/%s?%s", strings.TrimRight(base, "/"), url.PathEscape(r.id), q.Encode())
}

// dialAndHandshake opens the socket and blocks for the first frame, which
// per spec.md §4.1 must be ROOM_STATE before the connection is considered
// open.
func (r *Room) dialAndHandshake(ctx context.Context, token string) (transport.Socket, error) {
	if actor, ok := actorFromToken(token); ok {
		r.alloc.Reassign(actor)
		r.presence.SetLocalActor(actor)
	}

	header := make(http.Header, len(r.cfg.ExtraHeaders))
	for k, vs := range r.cfg.ExtraHeaders {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	r.setState(Connecting)
	socket, err := r.cfg.Dialer.Dial(ctx, r.socketURL(token), header)
	if err != nil {
		return nil, lberrors.Wrap(lberrors.AuthTransientOrNetwork, r.id, "dial failed", err)
	}

	data, err := socket.ReadMessage()
	if err != nil {
		_ = socket.Close(1006)
		return nil, lberrors.Wrap(lberrors.AuthTransientOrNetwork, r.id, "read ROOM_STATE failed", err)
	}
	var env wire.ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != wire.ServerRoomState {
		_ = socket.Close(1002)
		return nil, lberrors.New(lberrors.ProtocolViolation, "first frame was not ROOM_STATE")
	}
	var roomState wire.RoomStateMessage
	if err := json.Unmarshal(env.Raw, &roomState); err != nil {
		_ = socket.Close(1002)
		return nil, lberrors.New(lberrors.ProtocolViolation, "malformed ROOM_STATE")
	}
	for _, u := range roomState.Users {
		r.presence.RemoteFull(u.Actor, u.Info)
	}

	return socket, nil
}

// --- the open session (spec.md §4.1 heartbeat, §4.3 frame dispatch) ------

// runOpenSession owns the socket while the room is Open. Two goroutines run
// under an errgroup — a read pump blocking on ReadMessage, and the
// heartbeat/dispatch loop that applies frames and paces pings — in place of
// the teacher's manual errCh plumbing (agent/internal/connection/manager.go),
// per SPEC_FULL.md §4.1's errgroup simplification. Applying a frame still
// happens only on the dispatch goroutine, preserving spec.md §5's
// single-threaded cooperative model for state mutation. Returns once the
// socket fails, the heartbeat times out, too many protocol violations
// accumulate, the token is nearing expiry, or ctx is canceled.
func (r *Room) runOpenSession(parent context.Context, socket transport.Socket, token string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	framesCh := make(chan []byte)

	g.Go(func() error {
		for {
			data, err := socket.ReadMessage()
			if err != nil {
				return fmt.Errorf("room: read failed: %w", err)
			}
			select {
			case framesCh <- data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		return r.heartbeatAndDispatch(gctx, socket, token, framesCh)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return parent.Err()
	}
	return err
}

// heartbeatAndDispatch applies incoming frames, paces ping frames, and
// watches for heartbeat timeout, excess protocol violations, and a session
// token nearing expiry — the sole place frames are applied to the document
// and presence store.
func (r *Room) heartbeatAndDispatch(ctx context.Context, socket transport.Socket, token string, framesCh <-chan []byte) error {
	pingTicker := time.NewTicker(heartbeatInterval)
	defer pingTicker.Stop()

	var reauthCh <-chan time.Time
	if exp, ok := tokenExpiry(token); ok {
		d := time.Until(exp.Add(-reauthSkew))
		if d < 0 {
			d = 0
		}
		reauthTimer := time.NewTimer(d)
		defer reauthTimer.Stop()
		reauthCh = reauthTimer.C
	}

	lastRecv := time.Now()
	violations := 0
	violationWindowStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			_ = socket.Close(1000)
			return ctx.Err()

		case data := <-framesCh:
			lastRecv = time.Now()
			if err := r.dispatchFrame(data); err != nil {
				r.logger.Warn("dropping malformed frame", zap.Error(err))
				if time.Since(violationWindowStart) > protocolViolationWindow {
					violations = 0
					violationWindowStart = time.Now()
				}
				violations++
				if violations >= protocolViolationLimit {
					_ = socket.Close(1002)
					escalated := fmt.Errorf("room: %d protocol violations within %s, forcing reconnect", violations, protocolViolationWindow)
					r.emitError(lberrors.Wrap(lberrors.ProtocolViolation, r.id, "repeated protocol violations", escalated))
					return escalated
				}
			}

		case <-pingTicker.C:
			if time.Since(lastRecv) > heartbeatTimeout {
				_ = socket.Close(1001)
				return fmt.Errorf("room: no frame received within %s", heartbeatTimeout)
			}
			if err := socket.Ping(); err != nil {
				return fmt.Errorf("room: ping failed: %w", err)
			}

		case <-reauthCh:
			_ = socket.Close(1000)
			return errReauthNeeded
		}
	}
}

// dispatchFrame decodes one server frame and applies it. A returned error
// is a protocol violation (spec.md §7): the frame is dropped and the
// session continues, with repeated violations counted by the caller.
func (r *Room) dispatchFrame(data []byte) error {
	var env wire.ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case wire.ServerUpdatePresence:
		var msg wire.UpdatePresenceMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed UPDATE_PRESENCE: %w", err)
		}
		r.presence.RemoteUpdate(msg.Actor, msg.Data)
		return nil

	case wire.ServerUserJoined:
		var msg wire.UserJoinedMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed USER_JOINED: %w", err)
		}
		target := msg.Actor
		r.coalescer.RequestFullPresenceResync(r.presence.Local(), &target)
		return nil

	case wire.ServerUserLeft:
		var msg wire.UserLeftMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed USER_LEFT: %w", err)
		}
		r.presence.RemoveActor(msg.Actor)
		return nil

	case wire.ServerBroadcastEvent:
		var msg wire.BroadcastEventMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed BROADCAST_EVENT: %w", err)
		}
		r.dispatchBroadcast(msg.Actor, msg.Event)
		return nil

	case wire.ServerRoomState:
		return fmt.Errorf("unexpected ROOM_STATE outside handshake")

	case wire.ServerInitialStorageState:
		var msg wire.InitialStorageStateMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed INITIAL_STORAGE_STATE: %w", err)
		}
		if err := r.doc.ReplaceRoot(msg.Items); err != nil {
			return fmt.Errorf("apply INITIAL_STORAGE_STATE: %w", err)
		}
		return nil

	case wire.ServerUpdateStorage:
		var msg wire.UpdateStorageMessage
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return fmt.Errorf("malformed UPDATE_STORAGE: %w", err)
		}
		return r.applyIncomingOps(msg.Ops)

	default:
		return fmt.Errorf("unknown server frame type %d", env.Type)
	}
}

// applyIncomingOps splits a batch by origin: ops this client itself emitted
// come back only as acks (spec.md §4.3 "Ack" source) and prune the retry
// buffer; everything else is applied as remote.
func (r *Room) applyIncomingOps(ops []wire.Op) error {
	localActor := r.alloc.Actor()
	remote := make([]wire.Op, 0, len(ops))
	for _, op := range ops {
		if op.Actor == localActor {
			r.doc.Ack(op.OpID)
			continue
		}
		remote = append(remote, op)
	}
	if len(remote) == 0 {
		return nil
	}
	if err := r.doc.ApplyRemote(remote); err != nil {
		return fmt.Errorf("apply remote ops: %w", err)
	}
	r.cfg.metricsOrNop().OpsReceived(len(remote))
	return nil
}
