// Package agentsim hosts a simulated agent backend for the console and for
// end-to-end tests: it speaks the session wire protocol over
// /ws/{userId}/{sessionId}, answering chat frames with scripted persona
// responses and tool executions.
package agentsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/agentwire/internal/platform/timeouts"
	"github.com/louisbranch/agentwire/internal/wire"
)

// DefaultHeartbeatInterval paces the server-initiated keepalive pings.
const DefaultHeartbeatInterval = 30 * time.Second

const (
	maxMessageRunes        = 2000
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 5
	maxConversationFinals  = 100
)

// simulateErrorToken makes the simulator fail a request on purpose. Messages
// containing it are answered with an error frame, which drives the client's
// server-error path in demos and tests.
const simulateErrorToken = "[error]"

// Config defines the inputs for the simulator process.
type Config struct {
	HTTPAddr          string
	HeartbeatInterval time.Duration
	// ResponseDelay spaces out the scripted frames so interactive use feels
	// like a live agent. Zero answers immediately.
	ResponseDelay     time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the simulator HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// New builds a simulator server from config.
func New(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	httpServer := &http.Server{
		Addr: httpAddr,
		Handler: newHandler(handlerOptions{
			heartbeatInterval: config.HeartbeatInterval,
			responseDelay:     config.ResponseDelay,
		}),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run creates and serves a simulator until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := New(config)
	if err != nil {
		return fmt.Errorf("init agent simulator: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve agent simulator: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("agent simulator is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("agentsim listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

type handlerOptions struct {
	heartbeatInterval time.Duration
	responseDelay     time.Duration
}

// NewHandler builds the simulator routes with default behavior, for tests
// and embedded use.
func NewHandler() http.Handler {
	return newHandler(handlerOptions{heartbeatInterval: DefaultHeartbeatInterval})
}

func newHandler(opts handlerOptions) http.Handler {
	hub := newConversationHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, sessionID, ok := splitSessionPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		websocket.Handler(func(conn *websocket.Conn) {
			handleConn(conn, hub.conversation(userID, sessionID), opts)
		}).ServeHTTP(w, r)
	})

	return mux
}

// splitSessionPath extracts the user and session identifiers from a
// /ws/{userId}/{sessionId} path.
func splitSessionPath(path string) (userID, sessionID string, ok bool) {
	if !strings.HasPrefix(path, "/ws/") {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(path, "/ws/"), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	userID = strings.TrimSpace(parts[0])
	sessionID = strings.TrimSpace(parts[1])
	if userID == "" || sessionID == "" {
		return "", "", false
	}
	return userID, sessionID, true
}

// peer serializes frame writes because the responder, the heartbeat, and
// ping replies share one socket.
type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newPeer(encoder *json.Encoder) *peer {
	return &peer{encoder: encoder}
}

func (p *peer) writeFrame(frame wire.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

type conversationHub struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

func newConversationHub() *conversationHub {
	return &conversationHub{convs: make(map[string]*conversation)}
}

func (h *conversationHub) conversation(userID, sessionID string) *conversation {
	key := userID + "/" + sessionID
	h.mu.Lock()
	defer h.mu.Unlock()

	conv, ok := h.convs[key]
	if ok {
		return conv
	}
	conv = &conversation{
		userID:    userID,
		sessionID: sessionID,
		finals:    make(map[string]wire.Frame),
	}
	h.convs[key] = conv
	return conv
}

// conversation remembers the final answer per request id so a redelivered
// chat frame replays the same response instead of minting a new one.
type conversation struct {
	mu        sync.Mutex
	userID    string
	sessionID string
	finals    map[string]wire.Frame
	order     []string
}

func (c *conversation) recordFinal(requestID string, frame wire.Frame) {
	if strings.TrimSpace(requestID) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.finals[requestID]; !ok {
		c.order = append(c.order, requestID)
		if len(c.order) > maxConversationFinals {
			evict := c.order[0]
			c.order = c.order[1:]
			delete(c.finals, evict)
		}
	}
	c.finals[requestID] = frame
}

func (c *conversation) replay(requestID string) (wire.Frame, bool) {
	if strings.TrimSpace(requestID) == "" {
		return wire.Frame{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, ok := c.finals[requestID]
	return frame, ok
}

func handleConn(conn *websocket.Conn, conv *conversation, opts handlerOptions) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	pr := newPeer(json.NewEncoder(conn))

	_ = pr.writeFrame(wire.Frame{
		Type:      wire.KindConnectionStatus,
		Status:    "connected",
		Message:   "WebSocket connection established",
		UserID:    conv.userID,
		SessionID: conv.sessionID,
		Timestamp: time.Now().UnixMilli(),
	})

	done := make(chan struct{})
	defer close(done)
	if opts.heartbeatInterval > 0 {
		go heartbeatLoop(pr, opts.heartbeatInterval, done)
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wire.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeError(pr, "", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeError(pr, frame.RequestID, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "":
			handleChat(pr, conv, opts, frame)
		case wire.KindPing:
			_ = pr.writeFrame(wire.Pong(time.Now().UnixMilli()))
		case wire.KindPong:
			// Keepalive reply from the client, nothing to do.
		default:
			_ = writeError(pr, frame.RequestID, fmt.Sprintf("unsupported frame type %q", frame.Type))
		}
	}
}

func heartbeatLoop(pr *peer, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := pr.writeFrame(wire.Ping(time.Now().UnixMilli())); err != nil {
				return
			}
		}
	}
}

func handleChat(pr *peer, conv *conversation, opts handlerOptions, frame wire.Frame) {
	message := strings.TrimSpace(frame.Message)
	if message == "" {
		_ = writeError(pr, frame.RequestID, "message is required")
		return
	}
	if utf8.RuneCountInString(message) > maxMessageRunes {
		_ = writeError(pr, frame.RequestID, "message must be at most 2000 characters")
		return
	}

	_ = pr.writeFrame(wire.Frame{
		Type:      wire.KindAck,
		RequestID: frame.RequestID,
		Message:   "Message received, processing...",
		Timestamp: time.Now().UnixMilli(),
	})

	// Redelivered requests replay the recorded answer unchanged.
	if final, ok := conv.replay(frame.RequestID); ok {
		_ = pr.writeFrame(final)
		return
	}

	if strings.Contains(message, simulateErrorToken) {
		_ = writeError(pr, frame.RequestID, "I encountered an error processing your request. Please try again.")
		return
	}

	agent := LookupAgent(frame.Agent)
	pace(opts.responseDelay)
	_ = pr.writeFrame(wire.Frame{Type: wire.KindProcessingStart, RequestID: frame.RequestID})
	pace(opts.responseDelay)
	_ = pr.writeFrame(wire.Frame{Type: wire.KindAgentThinking, Message: fmt.Sprintf("%s is thinking...", agent.Name)})

	tool := toolFor(message)
	if tool != "" {
		executionID := fmt.Sprintf("%s-%d", tool, time.Now().UnixMilli())
		_ = pr.writeFrame(wire.Frame{
			Type:        wire.KindToolExecution,
			Tool:        tool,
			ExecutionID: executionID,
			Params:      mustJSON(map[string]string{"url": targetURL(message)}),
		})
		pace(opts.responseDelay)
		_ = pr.writeFrame(wire.Frame{
			Type:        wire.KindToolResult,
			Tool:        tool,
			ExecutionID: executionID,
			Result:      toolResult(tool, conv.sessionID),
		})
	}

	pace(opts.responseDelay)
	final := wire.Frame{
		Type:      wire.KindAgentResponse,
		RequestID: frame.RequestID,
		Agent:     agent.ID,
		Message:   replyText(agent, tool),
		Final:     true,
		Timestamp: time.Now().UnixMilli(),
	}
	conv.recordFinal(frame.RequestID, final)
	_ = pr.writeFrame(final)
}

func toolResult(tool, sessionID string) json.RawMessage {
	switch tool {
	case toolScreenshot:
		return mustJSON(map[string]any{"status": "success", "path": fmt.Sprintf("screenshots/%s.png", sessionID)})
	case toolFavicon:
		return mustJSON(map[string]any{"status": "success", "path": fmt.Sprintf("favicons/%s.ico", sessionID)})
	default:
		return mustJSON(map[string]any{"status": "success", "max_panels": 46, "yearly_energy_kwh": 12840})
	}
}

func writeError(pr *peer, requestID, message string) error {
	return pr.writeFrame(wire.Frame{
		Type:      wire.KindError,
		RequestID: requestID,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("agentsim: failed to marshal frame payload: %v", err)
		return nil
	}
	return b
}

func pace(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
