// Package realtime maintains the persistent notification channel: dial
// with the current access token, heartbeat to keep intermediaries alive,
// reconnect on any close, and dispatch inbound events to the
// notification router.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/opencampus/examdesk/internal/notify"
	"github.com/opencampus/examdesk/pkg/idx"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateDegraded      State = "degraded"
	StateClosed        State = "closed"
)

// TokenSource supplies the access token at (re)connect time, so a token
// refreshed while the channel was down is picked up automatically.
type TokenSource interface {
	AccessToken() string
}

// Dispatcher consumes accepted inbound events. The notification router
// implements it.
type Dispatcher interface {
	Handle(evt notify.Event)
}

// Options configure the manager. Zero durations take the production
// defaults.
type Options struct {
	// URL is the channel endpoint, e.g. wss://api.example.com/v1/events.
	URL string

	// HeartbeatInterval is the liveness probe cadence. Default 30s.
	HeartbeatInterval time.Duration

	// ReconnectDelay is the fixed wait before a reconnection attempt.
	// Default 5s. No backoff: reproducing the platform's behavior.
	ReconnectDelay time.Duration

	Transport Transport
	Logger    *slog.Logger
}

// Manager runs the connect/heartbeat/reconnect state machine. Failures
// never surface to callers; the only observable effects are state
// transitions and eventual retries.
type Manager struct {
	urlBase    string
	tokens     TokenSource
	dispatch   Dispatcher
	transport  Transport
	logger     *slog.Logger
	heartbeat  time.Duration
	reconnect  time.Duration
	instanceID idx.ID

	mu    sync.Mutex
	state State
	conn  Conn

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	// dialCtx spans the manager's lifetime; Close cancels it so an
	// in-flight dial aborts instead of outliving teardown.
	dialCtx    context.Context
	dialCancel context.CancelFunc
}

// NewManager creates a stopped manager; Start launches it.
func NewManager(tokens TokenSource, dispatch Dispatcher, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = NewWebsocketTransport()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		urlBase:    opts.URL,
		tokens:     tokens,
		dispatch:   dispatch,
		transport:  opts.Transport,
		logger:     logger.With("component", "realtime"),
		heartbeat:  opts.HeartbeatInterval,
		reconnect:  opts.ReconnectDelay,
		instanceID: idx.New(),
		state:      StateDisconnected,
		done:       make(chan struct{}),
		dialCtx:    ctx,
		dialCancel: cancel,
	}
}

// Start launches the connection loop.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// Close tears the channel down for good: all timers cancelled, the
// connection closed, no further reconnection. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.dialCancel()
		m.mu.Lock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.mu.Unlock()
	})
	m.wg.Wait()

	m.setState(StateClosed)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// run is the connection loop: one iteration per connection lifetime.
func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		token := m.tokens.AccessToken()
		if token == "" {
			// Not an error: the precondition isn't met yet. Stay
			// disconnected and look again later.
			m.setState(StateDisconnected)
			if !m.sleep(m.reconnect) {
				return
			}
			continue
		}

		m.setState(StateConnecting)
		conn, err := m.transport.Dial(m.dialCtx, m.dialURL(token))
		if err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			m.logger.Warn("channel dial failed", "error", err)
			m.setState(StateDegraded)
			if !m.sleep(m.reconnect) {
				return
			}
			continue
		}

		// A dial that raced teardown must not leave a live socket
		// behind: Close has already swept m.conn and found nothing.
		m.mu.Lock()
		select {
		case <-m.done:
			m.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		m.conn = conn
		m.state = StateAuthenticated
		m.mu.Unlock()
		m.logger.Info("channel connected")

		m.serve(conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		select {
		case <-m.done:
			return
		default:
		}

		// Clean or error close makes no difference: one reconnection
		// attempt after the fixed delay.
		m.logger.Warn("channel closed, reconnecting", "delay", m.reconnect)
		m.setState(StateDegraded)
		if !m.sleep(m.reconnect) {
			return
		}
	}
}

// serve reads inbound messages until the connection closes. The
// heartbeat runs only while serve does; it stops the moment the read
// loop exits.
func (m *Manager) serve(conn Conn) {
	stopHeartbeat := make(chan struct{})
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		m.heartbeatLoop(conn, stopHeartbeat)
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		m.handleMessage(data)
	}

	close(stopHeartbeat)
	_ = conn.Close()
	hbDone.Wait()
}

// heartbeatLoop sends a liveness probe at a fixed cadence. The probe
// keeps intermediaries from idling the connection out; the paired pong
// is not tracked against a timeout.
func (m *Manager) heartbeatLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				m.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}

// inboundMessage is the wire envelope for channel messages.
type inboundMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"payload"`
}

// handleMessage parses and routes one inbound message. Malformed
// payloads are logged and dropped; they never take the channel down.
func (m *Manager) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("dropping malformed channel message", "error", err)
		return
	}

	switch msg.Type {
	case "pong":
		// Consumed internally, never forwarded.
		m.logger.Debug("pong received")
	case "notification":
		title := msg.Payload.Title
		if title == "" {
			title = "Notification"
		}
		m.dispatch.Handle(notify.Event{Kind: notify.KindGeneric, Title: title, Message: msg.Payload.Message})
	case "exam_reminder":
		m.dispatch.Handle(notify.Event{Kind: notify.KindExamReminder, Title: "Exam Reminder", Message: msg.Payload.Message})
	case "result_ready":
		m.dispatch.Handle(notify.Event{Kind: notify.KindResultReady, Title: "Results Available", Message: msg.Payload.Message})
	case "system_update":
		m.dispatch.Handle(notify.Event{Kind: notify.KindSystemUpdate, Title: "System Update", Message: msg.Payload.Message})
	default:
		// Unknown tags are ignored, not errors.
		m.logger.Debug("ignoring unknown channel message", "type", msg.Type)
	}
}

// dialURL embeds the bearer token and this process's instance id as
// query credentials. There is no post-connect auth message.
func (m *Manager) dialURL(token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("instance", m.instanceID.String())
	return m.urlBase + "?" + q.Encode()
}

// sleep waits d or until teardown; reports false on teardown.
func (m *Manager) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.done:
		return false
	case <-timer.C:
		return true
	}
}
