package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client-observable lifecycle events emitted in addition to server-sourced
// events.
const (
	WebSocketConnected    = "WebSocketConnected"
	WebSocketReconnecting = "WebSocketReconnecting"
	WebSocketMaxRetries   = "WebSocketMaxRetries"
)

// DefaultMaxConsecutiveFailures is the reconnect streak after which the
// session gives up.
const DefaultMaxConsecutiveFailures = 10

// State is the session's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateStopped
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateGaveUp:
		return "gave-up"
	default:
		return "unknown"
	}
}

// Sink receives the session's output: decoded event frames and lifecycle
// signals. Implemented by the Router.
type Sink interface {
	Dispatch(raw map[string]any)
	Lifecycle(eventType string, payload map[string]any)
}

// SessionConfig configures a WebSocket session.
type SessionConfig struct {
	Base                   *url.URL
	Username               string
	Password               string
	Apps                   []string
	SubscribeAll           bool
	Backoff                Backoff
	MaxConsecutiveFailures int
	IdleTimeout            time.Duration
	Dialer                 *websocket.Dialer
}

// Session maintains one logical subscription to the server's event stream.
// It reconnects with exponential backoff on socket errors and unexpected
// closes; a streak of failed attempts reaching the configured threshold
// emits WebSocketMaxRetries and stops.
type Session struct {
	cfg    SessionConfig
	sink   Sink
	log    zerolog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	active  bool
	stopped bool
	stopCh  chan struct{}
	conn    *websocket.Conn
}

// NewSession creates a session over the given sink. Start opens the stream.
func NewSession(cfg SessionConfig, sink Sink, log zerolog.Logger) *Session {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Session{
		cfg:    cfg,
		sink:   sink,
		log:    log,
		dialer: dialer,
		state:  StateIdle,
	}
}

// Start opens the WebSocket and begins routing frames. It returns
// immediately; the open is signalled through WebSocketConnected.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.active = true
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.state = StateConnecting
	s.mu.Unlock()

	go s.run()
	return nil
}

// Stop closes the session. Subsequent close events do not trigger
// reconnect, no further frames are routed, and in-flight backoff waits are
// cancelled. Stop is idempotent; Start may be called again afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped || s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the session's current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) run() {
	failures := 0
	for {
		if s.isStopped() {
			s.finish(StateStopped)
			return
		}
		s.setState(StateConnecting)

		conn, err := s.dial()
		if err != nil {
			failures++
			s.log.Warn().
				Err(err).
				Int("attempt", failures).
				Msg("websocket dial failed")
			if failures >= s.cfg.MaxConsecutiveFailures {
				s.finish(StateGaveUp)
				s.sink.Lifecycle(WebSocketMaxRetries, map[string]any{"attempts": failures})
				return
			}
			s.setState(StateReconnecting)
			s.sink.Lifecycle(WebSocketReconnecting, map[string]any{"attempt": failures})
			if !s.sleep(s.cfg.Backoff.Delay(failures)) {
				s.finish(StateStopped)
				return
			}
			continue
		}

		failures = 0
		s.setConn(conn)
		s.setState(StateOpen)
		s.sink.Lifecycle(WebSocketConnected, nil)

		s.readLoop(conn)
		s.setConn(nil)
		conn.Close()

		if s.isStopped() {
			s.finish(StateStopped)
			return
		}
		s.setState(StateReconnecting)
		s.sink.Lifecycle(WebSocketReconnecting, nil)
		if !s.sleep(s.cfg.Backoff.Delay(1)) {
			s.finish(StateStopped)
			return
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.isStopped() {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if s.isStopped() {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			s.sink.Lifecycle(ErrorEvent, map[string]any{
				"message": "undecodable event frame: " + err.Error(),
			})
			continue
		}
		s.sink.Dispatch(raw)
	}
}

// dial opens the events endpoint: the base URL with its scheme switched to
// ws/wss, the app list and credentials as query parameters.
func (s *Session) dial() (*websocket.Conn, error) {
	endpoint := *s.cfg.Base
	if endpoint.Scheme == "https" || endpoint.Scheme == "wss" {
		endpoint.Scheme = "wss"
	} else {
		endpoint.Scheme = "ws"
	}
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + "/ari/events"

	query := url.Values{}
	query.Set("app", strings.Join(s.cfg.Apps, ","))
	query.Set("api_key", s.cfg.Username+":"+s.cfg.Password)
	if s.cfg.SubscribeAll {
		query.Set("subscribeAll", "true")
	}
	endpoint.RawQuery = query.Encode()

	conn, resp, err := s.dialer.Dial(endpoint.String(), nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// sleep waits the given delay, returning false when interrupted by Stop.
func (s *Session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopChan():
		return false
	}
}

func (s *Session) stopChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) finish(state State) {
	s.mu.Lock()
	s.state = state
	s.active = false
	s.conn = nil
	s.mu.Unlock()
}
