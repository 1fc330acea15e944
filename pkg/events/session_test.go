package events

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects everything the session forwards.
type recordingSink struct {
	mu        sync.Mutex
	events    []map[string]any
	lifecycle []string
	notify    chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan string, 64)}
}

func (s *recordingSink) Dispatch(raw map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, raw)
	s.mu.Unlock()
	s.notify <- "event"
}

func (s *recordingSink) Lifecycle(eventType string, _ map[string]any) {
	s.mu.Lock()
	s.lifecycle = append(s.lifecycle, eventType)
	s.mu.Unlock()
	s.notify <- eventType
}

func (s *recordingSink) wait(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-s.notify:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func (s *recordingSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func fastBackoff() Backoff {
	return Backoff{Initial: time.Millisecond, Ceiling: 10 * time.Millisecond, Multiplier: 2.0}
}

func sessionConfig(t *testing.T, srvURL string) SessionConfig {
	t.Helper()
	base, err := url.Parse(srvURL)
	require.NoError(t, err)
	return SessionConfig{
		Base:     base,
		Username: "asterisk",
		Password: "secret",
		Apps:     []string{"unittests"},
		Backoff:  fastBackoff(),
	}
}

func TestSessionConnectsAndRoutesFrames(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"StasisStart","channel":{"id":"c1"}}`))
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newRecordingSink()
	sess := NewSession(sessionConfig(t, srv.URL), sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	defer sess.Stop()

	sink.wait(t, WebSocketConnected)
	sink.wait(t, "event")

	assert.Equal(t, "unittests", gotQuery.Get("app"))
	assert.Equal(t, "asterisk:secret", gotQuery.Get("api_key"))

	sink.mu.Lock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, "StasisStart", sink.events[0]["type"])
	sink.mu.Unlock()

	assert.Equal(t, StateOpen, sess.State())
}

func TestSessionSubscribeAllQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := sessionConfig(t, srv.URL)
	cfg.SubscribeAll = true
	sink := newRecordingSink()
	sess := NewSession(cfg, sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	defer sess.Stop()

	sink.wait(t, WebSocketConnected)
	assert.Equal(t, "true", gotQuery.Get("subscribeAll"))
}

func TestSessionReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()
		if n == 1 {
			// Simulated transport drop.
			conn.Close()
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"PlaybackFinished","playback":{"id":1}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newRecordingSink()
	sess := NewSession(sessionConfig(t, srv.URL), sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	defer sess.Stop()

	sink.wait(t, WebSocketConnected)
	sink.wait(t, WebSocketReconnecting)
	sink.wait(t, WebSocketConnected)
	sink.wait(t, "event")

	sink.mu.Lock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, "PlaybackFinished", sink.events[0]["type"])
	sink.mu.Unlock()
}

func TestSessionMaxRetries(t *testing.T) {
	// Reserve a port, then close it so every dial is refused.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	cfg := sessionConfig(t, "http://"+addr)
	cfg.MaxConsecutiveFailures = 3
	sink := newRecordingSink()
	sess := NewSession(cfg, sink, zerolog.Nop())
	require.NoError(t, sess.Start())

	sink.wait(t, WebSocketMaxRetries)
	assert.Eventually(t, func() bool { return sess.State() == StateGaveUp },
		time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	reconnects := 0
	for _, evt := range sink.lifecycle {
		if evt == WebSocketReconnecting {
			reconnects++
		}
	}
	sink.mu.Unlock()
	assert.Equal(t, 2, reconnects, "each failed attempt below the threshold announces a retry")
}

func TestSessionSuccessResetsFailureStreak(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()
		if n < 20 {
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := sessionConfig(t, srv.URL)
	cfg.MaxConsecutiveFailures = 3
	sink := newRecordingSink()
	sess := NewSession(cfg, sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	defer sess.Stop()

	// Twenty successive reconnects, each a successful open: the failure
	// streak resets every time, so WebSocketMaxRetries never fires.
	for i := 0; i < 20; i++ {
		sink.wait(t, WebSocketConnected)
	}

	sink.mu.Lock()
	assert.NotContains(t, sink.lifecycle, WebSocketMaxRetries)
	sink.mu.Unlock()
}

func TestSessionStopSuppressesRouting(t *testing.T) {
	frames := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-frames
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"StasisStart"}`))
		time.Sleep(100 * time.Millisecond)
		conn.Close()
	}))
	defer srv.Close()

	sink := newRecordingSink()
	sess := NewSession(sessionConfig(t, srv.URL), sink, zerolog.Nop())
	require.NoError(t, sess.Start())

	sink.wait(t, WebSocketConnected)
	sess.Stop()
	close(frames)

	assert.Eventually(t, func() bool { return sess.State() == StateStopped },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sink.eventCount(), "no frame after stop() may reach a listener")

	// No reconnect after an explicit stop.
	sink.mu.Lock()
	stopped := len(sink.lifecycle)
	sink.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, stopped, len(sink.lifecycle))
	sink.mu.Unlock()
}

func TestSessionRestartAfterStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newRecordingSink()
	sess := NewSession(sessionConfig(t, srv.URL), sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	sink.wait(t, WebSocketConnected)

	sess.Stop()
	assert.Eventually(t, func() bool { return sess.State() == StateStopped },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, sess.Start())
	sink.wait(t, WebSocketConnected)
	sess.Stop()
}

func TestSessionDoubleStartFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newRecordingSink()
	sess := NewSession(sessionConfig(t, srv.URL), sink, zerolog.Nop())
	require.NoError(t, sess.Start())
	defer sess.Stop()

	assert.Error(t, sess.Start())
}

func TestBackoffSchedule(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Ceiling: time.Second, Multiplier: 2.0}
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(5), "capped at the ceiling")
	assert.Equal(t, time.Second, b.Delay(50))
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Ceiling: time.Second, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}
