package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"winbridge/internal/constants"
	"winbridge/internal/retry"
	"winbridge/pkg/discord/types"
)

// DefaultIntents subscribes to guild messages, DMs and message content
const DefaultIntents = types.IntentGuilds | types.IntentGuildMessages | types.IntentDirectMessages | types.IntentMessageContent

var (
	errReconnectRequested = errors.New("gateway requested reconnect")
	errInvalidSession     = errors.New("gateway invalidated session")
	errHeartbeatTimeout   = errors.New("gateway heartbeat not acknowledged")
)

// outgoing frames always carry d, even when it is null
type outgoing struct {
	Op int         `json:"op"`
	D  interface{} `json:"d"`
}

// Gateway keeps a websocket session open and dispatches events to a Handler
type Gateway struct {
	url     string
	token   string
	intents int
	handler types.Handler
	logger  *logrus.Logger
	backoff *retry.Backoff

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	sessionID string
	resumeURL string
	seq       atomic.Int64

	handlers sync.WaitGroup
}

type GatewayOption func(*Gateway)

// WithIntents overrides DefaultIntents
func WithIntents(intents int) GatewayOption {
	return func(g *Gateway) { g.intents = intents }
}

// WithReconnectBackoff sets the delay policy between reconnects
func WithReconnectBackoff(cfg retry.BackoffConfig) GatewayOption {
	return func(g *Gateway) { g.backoff = retry.NewBackoff(cfg) }
}

func NewGateway(gatewayURL, token string, handler types.Handler, logger *logrus.Logger, opts ...GatewayOption) *Gateway {
	if gatewayURL == "" {
		gatewayURL = constants.DefaultDiscordGatewayURL
	}
	if logger == nil {
		logger = logrus.New()
	}
	backoffCfg := retry.DefaultBackoffConfig()
	backoffCfg.MaxAttempts = 0

	g := &Gateway{
		url:     gatewayURL,
		token:   token,
		intents: DefaultIntents,
		handler: handler,
		logger:  logger,
		backoff: retry.NewBackoff(backoffCfg),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ready is closed after the first READY dispatch
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// Run connects and reconnects until ctx is done or the gateway rejects the bot permanently
func (g *Gateway) Run(ctx context.Context) error {
	attempt := 0
	for {
		established, err := g.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if isFatalClose(err) {
			g.logger.WithError(err).Error("Gateway rejected the session, not reconnecting")
			return err
		}
		if established {
			attempt = 0
		}
		attempt++

		delay := g.backoff.Delay(attempt)
		g.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("Gateway connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Wait blocks until every dispatched handler has returned
func (g *Gateway) Wait() {
	g.handlers.Wait()
}

// session runs one connection. established is true once IDENTIFY or RESUME was sent.
func (g *Gateway) session(ctx context.Context) (established bool, err error) {
	dialURL, resuming := g.dialTarget()

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(constants.GatewayReadLimitBytes)

	var hello types.GatewayPayload
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return false, fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Op != types.OpHello {
		return false, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h types.Hello
	if err := json.Unmarshal(hello.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("invalid hello payload: %v", err)
	}

	if resuming {
		g.mu.Lock()
		resume := types.Resume{Token: g.token, SessionID: g.sessionID, Seq: g.seq.Load()}
		g.mu.Unlock()
		err = wsjson.Write(ctx, conn, outgoing{Op: types.OpResume, D: resume})
	} else {
		err = wsjson.Write(ctx, conn, outgoing{Op: types.OpIdentify, D: types.Identify{
			Token:   g.token,
			Intents: g.intents,
			Properties: types.IdentifyProperties{
				OS:      runtime.GOOS,
				Browser: "winbridge",
				Device:  "winbridge",
			},
		}})
	}
	if err != nil {
		return false, fmt.Errorf("failed to authenticate: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var acked atomic.Bool
	acked.Store(true)
	heartbeatErr := make(chan error, 1)
	go func() {
		heartbeatErr <- g.heartbeat(sessCtx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond, &acked)
	}()

	for {
		var p types.GatewayPayload
		if err := wsjson.Read(sessCtx, conn, &p); err != nil {
			select {
			case hbErr := <-heartbeatErr:
				if hbErr != nil {
					return true, hbErr
				}
			default:
			}
			return true, err
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case types.OpDispatch:
			g.dispatch(ctx, p)
		case types.OpHeartbeat:
			if err := g.sendHeartbeat(sessCtx, conn); err != nil {
				return true, err
			}
		case types.OpHeartbeatAck:
			acked.Store(true)
		case types.OpReconnect:
			conn.Close(websocket.StatusCode(4000), "reconnect requested")
			return true, errReconnectRequested
		case types.OpInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.clearSession()
			}
			conn.Close(websocket.StatusNormalClosure, "invalid session")
			return true, errInvalidSession
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, acked *atomic.Bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !acked.Swap(false) {
				conn.Close(websocket.StatusCode(4000), "heartbeat ack missed")
				return errHeartbeatTimeout
			}
			if err := g.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	var d interface{}
	if seq := g.seq.Load(); seq > 0 {
		d = seq
	}
	return wsjson.Write(ctx, conn, outgoing{Op: types.OpHeartbeat, D: d})
}

func (g *Gateway) dispatch(ctx context.Context, p types.GatewayPayload) {
	switch p.T {
	case types.EventReady:
		var ready types.Ready
		if err := json.Unmarshal(p.D, &ready); err != nil {
			g.logger.WithError(err).Warn("Failed to decode READY")
			return
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.mu.Unlock()
		g.readyOnce.Do(func() { close(g.ready) })
		g.logger.WithField("user", ready.User.Username).Info("Gateway session ready")
		g.spawn(func() { g.handler.OnReady(ctx, ready) })

	case types.EventResumed:
		g.logger.Info("Gateway session resumed")

	case types.EventMessageCreate:
		var msg types.Message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			g.logger.WithError(err).Warn("Failed to decode MESSAGE_CREATE")
			return
		}
		g.spawn(func() { g.handler.OnMessageCreate(ctx, msg) })

	case types.EventInteractionCreate:
		var interaction types.Interaction
		if err := json.Unmarshal(p.D, &interaction); err != nil {
			g.logger.WithError(err).Warn("Failed to decode INTERACTION_CREATE")
			return
		}
		g.spawn(func() { g.handler.OnInteractionCreate(ctx, interaction) })
	}
}

func (g *Gateway) spawn(fn func()) {
	g.handlers.Add(1)
	go func() {
		defer g.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithField("panic", r).Error("Gateway event handler panicked")
			}
		}()
		fn()
	}()
}

func (g *Gateway) dialTarget() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionID == "" {
		return g.url, false
	}
	if g.resumeURL == "" {
		return g.url, true
	}
	base, err := url.Parse(g.url)
	if err != nil {
		return g.url, true
	}
	resume, err := url.Parse(g.resumeURL)
	if err != nil {
		return g.url, true
	}
	resume.RawQuery = base.RawQuery
	return resume.String(), true
}

func (g *Gateway) clearSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionID = ""
	g.resumeURL = ""
	g.seq.Store(0)
}

// isFatalClose matches close codes after which reconnecting cannot succeed:
// authentication failed, invalid shard, sharding required, invalid API version, invalid or disallowed intents.
func isFatalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return true
	}
	return false
}
