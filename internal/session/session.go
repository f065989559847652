// Package session implements the realtime client side of an agent
// conversation: one persistent socket per (user, session) with bounded
// reconnect backoff, keepalive, request correlation, and tool execution
// tracking. Consumers drive it through Connect, Send, and Close and observe
// it through Callbacks.
package session

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/louisbranch/agentwire/internal/wire"
)

// Defaults applied by New when Config leaves the matching field zero.
const (
	DefaultConnectTimeout       = 8 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultRequestTimeout       = 60 * time.Second
	DefaultBackoffBase          = 300 * time.Millisecond
	DefaultBackoffMultiplier    = 2.0
	DefaultBackoffCap           = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultToolHistoryLimit     = 10
	DefaultTranscriptLimit      = 200
)

// Config describes one session before it connects. UserID, SessionID, and
// BaseURL are required; everything else falls back to the defaults above.
type Config struct {
	UserID    string
	SessionID string
	BaseURL   string
	// Agent optionally addresses a specific agent; empty leaves the choice
	// to the server.
	Agent string

	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	RequestTimeout       time.Duration
	BackoffBase          time.Duration
	BackoffMultiplier    float64
	BackoffCap           time.Duration
	MaxReconnectAttempts uint

	ToolHistoryLimit int
	TranscriptLimit  int

	// Dial replaces the websocket dialer in tests.
	Dial Dialer
	// Clock replaces wall time in tests.
	Clock     clockwork.Clock
	Callbacks Callbacks
}

func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ToolHistoryLimit <= 0 {
		cfg.ToolHistoryLimit = DefaultToolHistoryLimit
	}
	if cfg.TranscriptLimit <= 0 {
		cfg.TranscriptLimit = DefaultTranscriptLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Dial == nil {
		cfg.Dial = defaultDialer(cfg.ConnectTimeout)
	}
	if cfg.Callbacks.Logf == nil {
		cfg.Callbacks.Logf = log.Printf
	}
	return cfg
}

// Session owns the socket for one (user, session) pair and serializes every
// state change behind one mutex. Timer callbacks, the dial goroutine, and the
// read loop all carry the generation they were armed under and stand down
// when it has moved on, so a stale retry can never resurrect a torn-down
// connection.
type Session struct {
	cfg      Config
	endpoint string
	clock    clockwork.Clock
	dial     Dialer
	cb       Callbacks

	mu           sync.Mutex
	closed       bool
	status       Status
	conn         Conn
	gen          uint64
	attempts     uint
	lostReported bool

	connectTimer   clockwork.Timer
	reconnectTimer clockwork.Timer
	heartbeatTimer clockwork.Timer

	pending  *pendingRequest
	activity string

	transcript transcript
	tools      toolLog
	policy     *reconnectPolicy

	framesReceived uint64
	faults         map[ErrorKind]uint64
	lastOpenedAt   time.Time
	lastPongAt     time.Time
}

// New builds a session for the given identity. The session does not touch the
// network until Connect.
func New(cfg Config) (*Session, error) {
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	cfg.SessionID = strings.TrimSpace(cfg.SessionID)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Agent = strings.TrimSpace(cfg.Agent)
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("session id is required")
	}

	endpoint, err := EndpointURL(cfg.BaseURL, cfg.UserID, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("build endpoint: %w", err)
	}

	cfg = cfg.withDefaults()
	return &Session{
		cfg:        cfg,
		endpoint:   endpoint,
		clock:      cfg.Clock,
		dial:       cfg.Dial,
		cb:         cfg.Callbacks,
		status:     StatusDisconnected,
		transcript: transcript{limit: cfg.TranscriptLimit},
		tools:      toolLog{limit: cfg.ToolHistoryLimit},
		policy:     newReconnectPolicy(cfg.BackoffBase, cfg.BackoffMultiplier, cfg.BackoffCap),
	}, nil
}

// Endpoint returns the resolved socket address.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Connect starts dialing unless the session is already connected. Calling it
// after reconnection has given up resets the attempt counter and tries again.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.status == StatusConnected {
		return nil
	}
	s.attempts = 0
	s.policy.reset()
	s.lostReported = false
	s.startConnectLocked()
	return nil
}

// Send transmits one user message and returns its request id. It fails
// synchronously when the session is not connected or another request is
// still outstanding.
func (s *Session) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.status != StatusConnected || s.conn == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	if s.pending != nil {
		s.mu.Unlock()
		return "", ErrRequestOutstanding
	}

	now := s.clock.Now()
	requestID, err := newRequestID(now)
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("generate request id: %w", err)
	}

	gen := s.gen
	conn := s.conn
	req := &pendingRequest{id: requestID, sentAt: now}
	req.timer = s.clock.AfterFunc(s.cfg.RequestTimeout, func() { s.requestTimedOut(req) })
	s.pending = req
	s.appendEntryLocked(Entry{Kind: EntryUser, RequestID: requestID, Text: text, At: now})
	s.mu.Unlock()

	if err := conn.WriteJSON(wire.Chat(text, requestID, s.cfg.Agent)); err != nil {
		s.mu.Lock()
		if s.pending == req {
			req.timer.Stop()
			s.pending = nil
		}
		s.mu.Unlock()
		s.transportLost(gen, err)
		return "", fmt.Errorf("send message: %w", err)
	}
	return requestID, nil
}

// Close tears the session down, cancels every timer, and suppresses any
// further reconnect. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++
	s.stopTimersLocked()
	s.abandonRequestLocked("session closed")
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setActivityLocked("")
	s.setStatusLocked(StatusDisconnected)
	return nil
}

// Status reports the connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Processing reports whether a request is outstanding.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Activity returns the current human-readable progress line, empty when the
// agent is idle.
func (s *Session) Activity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

// Transcript returns a copy of the bounded entry log.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.snapshot()
}

// Tools returns a copy of the bounded tool execution history.
func (s *Session) Tools() []ToolExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools.snapshot()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	faults := make(map[ErrorKind]uint64, len(s.faults))
	for kind, n := range s.faults {
		faults[kind] = n
	}
	return Stats{
		Status:            s.status,
		ReconnectAttempts: s.attempts,
		FramesReceived:    s.framesReceived,
		Faults:            faults,
		LastOpenedAt:      s.lastOpenedAt,
		LastPongAt:        s.lastPongAt,
	}
}

// startConnectLocked claims a fresh generation, closes any previous socket,
// and dials off the lock.
func (s *Session) startConnectLocked() {
	s.gen++
	gen := s.gen
	s.stopTimersLocked()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setStatusLocked(StatusConnecting)
	s.connectTimer = s.clock.AfterFunc(s.cfg.ConnectTimeout, func() { s.connectTimedOut(gen) })
	go s.dialSocket(gen)
}

func (s *Session) dialSocket(gen uint64) {
	conn, err := s.dial(s.endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.logf("session: dial %s: %v", s.endpoint, err)
		s.noteFaultLocked(ErrorKindConnectTimeout)
		s.failAttemptLocked()
		return
	}

	s.stopConnectTimerLocked()
	s.conn = conn
	s.attempts = 0
	s.policy.reset()
	s.lostReported = false
	s.lastOpenedAt = s.clock.Now()
	s.setStatusLocked(StatusConnected)
	s.armHeartbeatLocked(gen)
	go s.readLoop(gen, conn)
}

func (s *Session) connectTimedOut(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen || s.status != StatusConnecting {
		return
	}
	s.logf("session: connect timed out after %s", s.cfg.ConnectTimeout)
	s.noteFaultLocked(ErrorKindConnectTimeout)
	s.failAttemptLocked()
}

func (s *Session) transportLost(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.logf("session: transport closed: %v", err)
	s.noteFaultLocked(ErrorKindTransportClosed)
	s.failAttemptLocked()
}

// failAttemptLocked tears the current attempt down and schedules the next
// one.
func (s *Session) failAttemptLocked() {
	s.teardownLocked()
	s.scheduleReconnectLocked()
}

// teardownLocked invalidates every outstanding timer, goroutine, and socket
// belonging to the current generation.
func (s *Session) teardownLocked() {
	s.gen++
	s.stopTimersLocked()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.abandonRequestLocked("transport lost")
	s.setActivityLocked("")
	s.setStatusLocked(StatusDisconnected)
}

func (s *Session) abandonRequestLocked(reason string) {
	if s.pending == nil {
		return
	}
	s.pending.timer.Stop()
	s.logf("session: abandoning request %s: %s", s.pending.id, reason)
	s.pending = nil
}

func (s *Session) scheduleReconnectLocked() {
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		if !s.lostReported {
			s.lostReported = true
			s.noteFaultLocked(ErrorKindMaxReconnects)
			s.logf("session: giving up after %d reconnect attempts", s.attempts)
			if s.cb.ConnectionLost != nil {
				s.cb.ConnectionLost(ErrMaxReconnects)
			}
		}
		return
	}
	s.attempts++
	delay := s.policy.next()
	gen := s.gen
	s.logf("session: reconnect attempt %d/%d in %s", s.attempts, s.cfg.MaxReconnectAttempts, delay)
	s.reconnectTimer = s.clock.AfterFunc(delay, func() { s.reconnectDue(gen) })
}

func (s *Session) reconnectDue(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.startConnectLocked()
}

func (s *Session) requestTimedOut(req *pendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending != req {
		return
	}
	s.pending = nil
	s.setActivityLocked("")
	s.noteFaultLocked(ErrorKindRequestTimeout)
	s.logf("session: request %s timed out after %s", req.id, s.cfg.RequestTimeout)
	s.appendEntryLocked(Entry{
		Kind:      EntryError,
		RequestID: req.id,
		Text:      "The agent did not respond in time. Please try again.",
		ErrorKind: ErrorKindRequestTimeout,
		At:        s.clock.Now(),
	})
}

func (s *Session) readLoop(gen uint64, conn Conn) {
	for {
		var frame wire.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if isDecodeError(err) {
				s.noteDecodeError(gen, err)
				continue
			}
			s.transportLost(gen, err)
			return
		}
		s.handleFrame(gen, frame)
	}
}

func (s *Session) armHeartbeatLocked(gen uint64) {
	s.heartbeatTimer = s.clock.AfterFunc(s.cfg.HeartbeatInterval, func() { s.heartbeatDue(gen) })
}

func (s *Session) heartbeatDue(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.status != StatusConnected || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	frame := wire.Ping(s.clock.Now().UnixMilli())
	s.armHeartbeatLocked(gen)
	s.mu.Unlock()

	if err := conn.WriteJSON(frame); err != nil {
		s.transportLost(gen, err)
	}
}

func (s *Session) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.cb.StatusChanged != nil {
		s.cb.StatusChanged(status)
	}
}

func (s *Session) setActivityLocked(activity string) {
	if s.activity == activity {
		return
	}
	s.activity = activity
	if s.cb.ActivityChanged != nil {
		s.cb.ActivityChanged(activity)
	}
}

func (s *Session) appendEntryLocked(entry Entry) {
	s.transcript.append(entry)
	if s.cb.EntryAppended != nil {
		s.cb.EntryAppended(entry)
	}
}

func (s *Session) upsertAgentEntryLocked(entry Entry) {
	if s.transcript.appendOrReplace(entry) {
		if s.cb.EntryReplaced != nil {
			s.cb.EntryReplaced(entry)
		}
		return
	}
	if s.cb.EntryAppended != nil {
		s.cb.EntryAppended(entry)
	}
}

func (s *Session) stopTimersLocked() {
	s.stopConnectTimerLocked()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
		s.heartbeatTimer = nil
	}
}

func (s *Session) stopConnectTimerLocked() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}

func (s *Session) noteFaultLocked(kind ErrorKind) {
	if s.faults == nil {
		s.faults = make(map[ErrorKind]uint64)
	}
	s.faults[kind]++
}

func (s *Session) logf(format string, args ...any) {
	if s.cb.Logf != nil {
		s.cb.Logf(format, args...)
	}
}
