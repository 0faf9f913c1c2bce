// Package remote drives the Deezer Connect WebSocket session (spec.md
// §4.7-§4.8): it authenticates, opens the control WebSocket, answers
// discovery, binds a single controller, translates incoming JSON commands
// into Player operations, and publishes progress/queue/status updates. On
// unexpected close it reconnects with exponential backoff.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pleezer/internal/events"
	"pleezer/internal/metrics"
	"pleezer/internal/model"
	"pleezer/internal/perrors"
	"pleezer/internal/player"
	"pleezer/internal/protocol"
)

const (
	discoveryChannel  = "discovery"
	controlChannel      = "control"
	publicationChannel  = "publication"

	pingInterval     = 30 * time.Second
	writeDeadline    = 10 * time.Second
	progressInterval = time.Second // spec.md §4.6 "~1 Hz"

	backoffBase = time.Second
	backoffMax  = 60 * time.Second
)

// wsConn is the subset of *websocket.Conn the session needs; narrowed to
// an interface so tests can substitute an in-memory fake instead of
// dialing a real socket.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}

// dialFunc opens the control WebSocket. Config.Dial defaults to dialing
// with gorilla/websocket; tests inject a fake.
type dialFunc func(ctx context.Context, url string, header http.Header) (wsConn, error)

func defaultDial(ctx context.Context, url string, header http.Header) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, perrors.NewNetwork("dialing remote session websocket", err)
	}
	return conn, nil
}

// Config bundles a Session's fixed dependencies and identity.
type Config struct {
	Endpoint string // Deezer Connect WebSocket URL

	// Header builds the per-dial auth header (Bearer cookies, spec.md
	// §4.8 step 2); called fresh on every (re)connect so a refreshed
	// token takes effect without restarting the process.
	Header func() http.Header

	DeviceID        string
	DeviceName      string
	DeviceType      string
	NoInterruptions bool
	InitialVolume   int

	// HeartbeatTimeout is how long the session waits for any message from
	// a bound controller before treating it as gone (spec.md §4.8 step 7).
	HeartbeatTimeout time.Duration

	Sink *events.Sink
	Log  *zap.Logger
	Rng  *rand.Rand

	// Eavesdrop logs every decoded frame at debug level (spec.md §6
	// --eavesdrop), off by default since commands/status can be chatty.
	Eavesdrop bool

	Dial dialFunc // nil uses defaultDial
}

// Session owns the WebSocket lifecycle and controller binding. Engine is
// wired in separately via SetEngine once both Session and the player
// engine have been constructed, avoiding a construction-order cycle
// (spec.md §9: "avoided by message-passing ... no back-pointers").
type Session struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	engine     *player.Engine
	controller *model.ControllerLink
	conn       wsConn
	writeMu    sync.Mutex // serializes WriteMessage calls across goroutines

	closing chan struct{}
	closeOnce sync.Once
}

// NewSession builds a Session. Call SetEngine before Run.
func NewSession(cfg Config) *Session {
	if cfg.Dial == nil {
		cfg.Dial = defaultDial
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	return &Session{cfg: cfg, log: cfg.Log, closing: make(chan struct{})}
}

// SetEngine wires the player engine this session dispatches commands to
// and polls for progress.
func (s *Session) SetEngine(e *player.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
}

// NotifyStop is passed as player.Config.OnStop: it drops the bound
// controller and publishes a Disconnected hook event. Nothing is sent to
// the controller over the WebSocket.
func (s *Session) NotifyStop(err error) {
	s.mu.Lock()
	bound := s.controller != nil
	s.controller = nil
	s.mu.Unlock()
	if !bound {
		return
	}
	if err != nil {
		s.log.Warn("player stopped with error", zap.Error(err))
	}
	s.cfg.Sink.Publish(events.Disconnected, events.Fields{})
}

// Run drives the reconnect loop until ctx is canceled or Close is called.
// It returns ctx.Err() on cancellation and nil after Close; every other
// disconnect, whatever its error, leads to a reconnect after a backoff.
func (s *Session) Run(ctx context.Context) error {
	bo := newBackoff(backoffBase, backoffMax, s.cfg.Rng)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		default:
		}

		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-s.closing:
			return nil
		default:
		}

		cause := causeLabel(err)
		metrics.RecordReconnect(cause)
		s.log.Warn("remote session disconnected, reconnecting", zap.String("cause", cause), zap.Error(err))

		delay := bo.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case <-time.After(delay):
		}
	}
}

func causeLabel(err error) string {
	if err == nil {
		return "clean"
	}
	return string(perrors.TypeOf(err))
}

// Close tears down an in-flight connection and stops Run's reconnect loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// connectOnce runs one full connect-subscribe-operate cycle; it returns
// when the connection closes for any reason, nil on a clean local close.
func (s *Session) connectOnce(ctx context.Context) error {
	var header http.Header
	if s.cfg.Header != nil {
		header = s.cfg.Header()
	}
	conn, err := s.cfg.Dial(ctx, s.cfg.Endpoint, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.controller = nil
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetPongHandler(func(string) error { return nil })

	errCh := make(chan error, 2)
	go func() { errCh <- s.readLoop(connCtx, conn) }()
	go func() { errCh <- s.writeLoop(connCtx, conn) }()

	err = <-errCh
	cancel()
	// Unblock whichever pump is parked in a blocking read/write the
	// context cancellation alone can't interrupt (gorilla/websocket has
	// no context-aware ReadMessage); Close forces it to return an error.
	conn.Close()
	<-errCh

	s.mu.Lock()
	wasBound := s.controller != nil
	s.controller = nil
	s.conn = nil
	s.mu.Unlock()
	if wasBound {
		s.cfg.Sink.Publish(events.Disconnected, events.Fields{})
	}
	return err
}

// readLoop consumes frames until the connection fails or connCtx is
// canceled by the write side.
func (s *Session) readLoop(connCtx context.Context, conn wsConn) error {
	for {
		select {
		case <-connCtx.Done():
			return nil
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return perrors.NewNetwork("reading control websocket", err)
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			s.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		if s.cfg.Eavesdrop {
			s.log.Debug("frame received", zap.String("channel", frame.Channel), zap.String("from", frame.From))
		}
		if err := s.handleFrame(connCtx, conn, frame); err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, conn wsConn, frame *protocol.Frame) error {
	switch frame.Channel {
	case discoveryChannel:
		return s.handleDiscovery(conn, frame)
	case controlChannel:
		return s.handleControl(frame)
	default:
		s.log.Debug("ignoring frame on unknown channel", zap.String("channel", frame.Channel))
		return nil
	}
}

// handleDiscovery answers a controller's DiscoveryRequest with a
// ConnectionOffer advertising this device's stable identity (spec.md §4.8
// step 4; offer_id is not later validated against the controller's echo,
// a deliberate robustness tradeoff from a historical bug fix).
func (s *Session) handleDiscovery(conn wsConn, frame *protocol.Frame) error {
	wire, err := protocol.DecodeProtobufBody(frame.Body)
	if err != nil {
		return nil // malformed discovery body is dropped, not fatal
	}
	if _, err := protocol.UnmarshalDiscoveryRequest(wire); err != nil {
		return nil
	}

	offer := protocol.ConnectionOffer{
		DeviceID:   s.cfg.DeviceID,
		DeviceName: s.cfg.DeviceName,
		DeviceType: s.cfg.DeviceType,
		OfferID:    newOfferID(),
	}
	body, err := protocol.ProtobufBody(protocol.MarshalConnectionOffer(offer))
	if err != nil {
		return nil
	}
	out := &protocol.Frame{From: s.cfg.DeviceID, To: frame.From, Channel: discoveryChannel, Body: body}
	return s.send(conn, out)
}

func newOfferID() string {
	var b [16]byte
	_, _ = rand.New(rand.NewSource(time.Now().UnixNano())).Read(b[:])
	return fmt.Sprintf("%x", b)
}

// handleControl decodes a JSON command and binds or dispatches it
// (spec.md §4.8 steps 5-6).
func (s *Session) handleControl(frame *protocol.Frame) error {
	var cmd Command
	if err := json.Unmarshal(frame.Body, &cmd); err != nil {
		return nil // malformed command: dropped, does not kill the session
	}

	s.mu.Lock()
	bound := s.controller
	s.mu.Unlock()

	if cmd.Action == actionConnect {
		return s.handleConnect(frame, cmd)
	}
	if cmd.Action == actionDisconnect {
		s.mu.Lock()
		s.controller = nil
		s.mu.Unlock()
		s.cfg.Sink.Publish(events.Disconnected, events.Fields{})
		return nil
	}
	if bound == nil || bound.ControllerID != frame.From {
		// Commands from an unbound or foreign controller are ignored
		// rather than accepted, per the single-controller binding model.
		return nil
	}

	s.mu.Lock()
	s.controller.LastHeartbeat = time.Now()
	eng := s.engine
	s.mu.Unlock()
	if eng == nil {
		return nil
	}

	if err := dispatch(eng, cmd); err != nil {
		// "when a command's effect on the Player fails ... disconnect the
		// controller so it can re-sync" (spec.md §4.8).
		s.log.Warn("command failed, disconnecting controller", zap.String("action", cmd.Action), zap.Error(err))
		s.mu.Lock()
		s.controller = nil
		s.mu.Unlock()
		s.cfg.Sink.Publish(events.Disconnected, events.Fields{})
	}
	return nil
}

func (s *Session) handleConnect(frame *protocol.Frame, cmd Command) error {
	var p connectParams
	_ = json.Unmarshal(cmd.Params, &p)
	if p.ControllerID == "" {
		p.ControllerID = frame.From
	}

	s.mu.Lock()
	existing := s.controller
	if existing != nil && existing.ControllerID != p.ControllerID && s.cfg.NoInterruptions {
		s.mu.Unlock()
		return nil // reject: a controller is already bound (spec.md §4.8 step 5)
	}
	link := &model.ControllerLink{
		ControllerID:  p.ControllerID,
		LastHeartbeat: time.Now(),
	}
	if existing == nil || existing.ControllerID != p.ControllerID {
		link.Volume = s.cfg.InitialVolume
		if s.engine != nil {
			if err := s.engine.SetVolume(s.cfg.InitialVolume); err != nil {
				s.log.Debug("initial volume not applied: no track loaded yet", zap.Error(err))
			}
		}
		link.InitialVolumeApplied = true
	}
	s.controller = link
	s.mu.Unlock()

	s.cfg.Sink.Publish(events.Connected, events.Fields{})
	return nil
}

// writeLoop publishes progress/queue updates at ~1 Hz, pings the peer,
// and enforces the controller heartbeat timeout, in the spirit of the
// teacher's clientWriter. It is not the only writer: the read loop's
// discovery replies also go out, and both paths write through send, whose
// lock keeps WriteMessage from running concurrently.
func (s *Session) writeLoop(connCtx context.Context, conn wsConn) error {
	progressTicker := time.NewTicker(progressInterval)
	defer progressTicker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-connCtx.Done():
			return nil
		case <-progressTicker.C:
			if err := s.publishProgress(conn); err != nil {
				return err
			}
			if err := s.checkHeartbeat(); err != nil {
				return err
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return perrors.NewNetwork("sending control websocket ping", err)
			}
		}
	}
}

func (s *Session) checkHeartbeat() error {
	s.mu.Lock()
	link := s.controller
	s.mu.Unlock()
	if link == nil {
		return nil
	}
	if link.HeartbeatExpired(time.Now(), s.cfg.HeartbeatTimeout) {
		return perrors.NewNetwork("controller heartbeat timed out", nil)
	}
	return nil
}

type statusBody struct {
	State      string `json:"state"`
	PositionMs int    `json:"position_ms"`
	DurationMs *int   `json:"duration_ms,omitempty"`
}

func (s *Session) publishProgress(conn wsConn) error {
	s.mu.Lock()
	eng := s.engine
	bound := s.controller
	s.mu.Unlock()
	if eng == nil || bound == nil {
		return nil
	}

	posMs, durMs := eng.Progress()
	body, err := protocol.JSONBody(statusBody{State: eng.State().String(), PositionMs: posMs, DurationMs: durMs})
	if err != nil {
		return nil
	}
	frame := &protocol.Frame{From: s.cfg.DeviceID, To: bound.ControllerID, Channel: publicationChannel, Body: body}
	return s.send(conn, frame)
}

// send serializes writes from whichever goroutine calls it; both the
// discovery reply (read-loop) and progress publication (write-loop) use
// it, so it takes its own lock independent of connCtx's goroutine split.
func (s *Session) send(conn wsConn, frame *protocol.Frame) error {
	raw, err := protocol.EncodeFrame(frame)
	if err != nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		// best-effort; absence of SetReadDeadline support on a fake conn
		// in tests is not fatal to a write.
		_ = err
	}
	return wrapWriteErr(conn.WriteMessage(websocket.TextMessage, raw))
}

func wrapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return perrors.NewNetwork("writing control websocket frame", err)
}
