// Package console parses console command flags and runs the interactive
// terminal client: stdin lines become session requests, session events are
// printed, and finalized messages are persisted to the transcript store.
package console

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	entrypoint "github.com/louisbranch/agentwire/internal/platform/cmd"
	"github.com/louisbranch/agentwire/internal/platform/id"
	"github.com/louisbranch/agentwire/internal/platform/telemetry"
	"github.com/louisbranch/agentwire/internal/session"
	"github.com/louisbranch/agentwire/internal/storage"
	"github.com/louisbranch/agentwire/internal/storage/sqlite"
)

// Telemetry event kinds recorded per session.
const (
	eventStatusPrefix = "session_"
	eventLost         = "session_lost"
	eventRoundTrip    = "request_round_trip"
)

// Config holds console command configuration.
type Config struct {
	BaseURL   string `env:"AGENTWIRE_CONSOLE_BASE_URL"   envDefault:"http://localhost:8000"`
	UserID    string `env:"AGENTWIRE_CONSOLE_USER_ID"    envDefault:"local"`
	SessionID string `env:"AGENTWIRE_CONSOLE_SESSION_ID"`
	Agent     string `env:"AGENTWIRE_CONSOLE_AGENT"      envDefault:"presaleskb"`
	StorePath string `env:"AGENTWIRE_CONSOLE_STORE_PATH" envDefault:"agentwire.db"`
	Replay    bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "agent service base URL")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user identifier")
	fs.StringVar(&cfg.SessionID, "session", cfg.SessionID, "session identifier (generated when empty)")
	fs.StringVar(&cfg.Agent, "agent", cfg.Agent, "agent id requests are addressed to")
	fs.StringVar(&cfg.StorePath, "store", cfg.StorePath, "transcript database path (empty disables persistence)")
	fs.BoolVar(&cfg.Replay, "replay", cfg.Replay, "print the stored session transcript and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the transcript store and drives the interactive session until
// the context ends or the user quits.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceConsole, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.SessionID) == "" {
			generated, err := id.NewID()
			if err != nil {
				return fmt.Errorf("generate session id: %w", err)
			}
			cfg.SessionID = generated
		}

		var store storage.TranscriptStore
		if strings.TrimSpace(cfg.StorePath) != "" {
			opened, err := sqlite.Open(cfg.StorePath)
			if err != nil {
				return fmt.Errorf("open transcript store: %w", err)
			}
			defer func() {
				if err := opened.Close(); err != nil {
					log.Printf("console: close transcript store: %v", err)
				}
			}()
			store = opened
		}

		if cfg.Replay {
			return replay(ctx, os.Stdout, store, cfg.UserID, cfg.SessionID)
		}
		return interact(ctx, os.Stdin, os.Stdout, store, cfg)
	})
}

// replay prints the stored transcript for the configured session.
func replay(ctx context.Context, out io.Writer, store storage.TranscriptStore, userID, sessionID string) error {
	if store == nil {
		return errors.New("replay requires a transcript store")
	}
	messages, err := store.ListSessionMessages(ctx, userID, sessionID, 0)
	if err != nil {
		return fmt.Errorf("list session messages: %w", err)
	}
	if len(messages) == 0 {
		fmt.Fprintf(out, "no stored messages for session %s\n", sessionID)
		return nil
	}
	for _, msg := range messages {
		fmt.Fprintf(out, "[%s] %s> %s\n", msg.SentAt.Format("2006-01-02 15:04:05"), senderLabel(msg), msg.Body)
	}
	return nil
}

func senderLabel(msg storage.MessageRecord) string {
	if msg.Sender == storage.SenderUser {
		return "you"
	}
	if msg.Agent != "" {
		return msg.Agent
	}
	return "agent"
}

// interact connects a session, echoes its events to out, and feeds it lines
// read from in until /quit, EOF, or context cancellation.
func interact(ctx context.Context, in io.Reader, out io.Writer, store storage.TranscriptStore, cfg Config) error {
	c := &console{
		out:       out,
		store:     store,
		emitter:   telemetry.NewEmitter(store),
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		sentAt:    make(map[string]time.Time),
	}

	sess, err := session.New(session.Config{
		UserID:    cfg.UserID,
		SessionID: cfg.SessionID,
		BaseURL:   cfg.BaseURL,
		Agent:     cfg.Agent,
		Callbacks: c.callbacks(),
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("console: close session: %v", err)
		}
	}()

	if err := sess.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.printf("session %s at %s (/status for counters, /quit to leave)\n", cfg.SessionID, sess.Endpoint())

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-loopCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("console: read input: %v", err)
		}
	}()

	for {
		select {
		case <-loopCtx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handleLine(sess, line); quit {
				return nil
			}
		}
	}
}

// console fans session callbacks out to the terminal, the transcript store,
// and the telemetry emitter. Terminal writes are serialized because the
// prompt loop and the session read loop both print.
type console struct {
	out       io.Writer
	store     storage.TranscriptStore
	emitter   *telemetry.Emitter
	userID    string
	sessionID string

	mu     sync.Mutex
	sentAt map[string]time.Time
}

func (c *console) callbacks() session.Callbacks {
	return session.Callbacks{
		StatusChanged:   c.statusChanged,
		EntryAppended:   c.entryAppended,
		EntryReplaced:   c.entryReplaced,
		ActivityChanged: c.activityChanged,
		ToolUpdated:     c.toolUpdated,
		ConnectionLost:  c.connectionLost,
		Logf:            log.Printf,
	}
}

func (c *console) handleLine(sess *session.Session, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/status":
		c.printStats(sess.Stats(), sess.Activity(), len(sess.Tools()))
		return false
	}

	if _, err := sess.Send(line); err != nil {
		c.printf("! %v\n", err)
	}
	return false
}

func (c *console) statusChanged(status session.Status) {
	c.printf("* connection %s\n", status)
	c.emit(storage.TelemetryEvent{Kind: eventStatusPrefix + string(status)})
}

func (c *console) entryAppended(entry session.Entry) {
	c.printEntry(entry, false)
	c.trackRoundTrip(entry)
	c.persist(entry)
}

func (c *console) entryReplaced(entry session.Entry) {
	c.printEntry(entry, true)
	c.trackRoundTrip(entry)
	c.persist(entry)
}

func (c *console) activityChanged(activity string) {
	if activity != "" {
		c.printf("... %s\n", activity)
	}
}

func (c *console) toolUpdated(exec session.ToolExecution) {
	if exec.Error != "" {
		c.printf("* tool %s %s: %s\n", exec.ToolName, exec.Status, exec.Error)
		return
	}
	c.printf("* tool %s %s\n", exec.ToolName, exec.Status)
}

func (c *console) connectionLost(err error) {
	c.printf("! connection lost: %v\n", err)
	c.emit(storage.TelemetryEvent{Kind: eventLost})
}

func (c *console) printEntry(entry session.Entry, replaced bool) {
	suffix := ""
	if replaced {
		suffix = " (revised)"
	}
	switch entry.Kind {
	case session.EntryUser:
		c.printf("you> %s\n", entry.Text)
	case session.EntryAgent:
		agent := entry.Agent
		if agent == "" {
			agent = "agent"
		}
		c.printf("%s> %s%s\n", agent, entry.Text, suffix)
	case session.EntryError:
		c.printf("! %s\n", entry.Text)
	}
}

// trackRoundTrip measures user-message-to-final-response latency from the
// transcript entries themselves: the user entry opens a window keyed by
// request id and the agent entry closes it.
func (c *console) trackRoundTrip(entry session.Entry) {
	if entry.RequestID == "" {
		return
	}
	switch entry.Kind {
	case session.EntryUser:
		c.mu.Lock()
		c.sentAt[entry.RequestID] = entry.At
		c.mu.Unlock()
	case session.EntryAgent:
		c.mu.Lock()
		started, ok := c.sentAt[entry.RequestID]
		if ok {
			delete(c.sentAt, entry.RequestID)
		}
		c.mu.Unlock()
		if ok {
			c.emit(storage.TelemetryEvent{
				Kind:           eventRoundTrip,
				RequestID:      entry.RequestID,
				DurationMillis: entry.At.Sub(started).Milliseconds(),
			})
		}
	}
}

func (c *console) persist(entry session.Entry) {
	if c.store == nil || entry.RequestID == "" {
		return
	}
	var sender storage.Sender
	switch entry.Kind {
	case session.EntryUser:
		sender = storage.SenderUser
	case session.EntryAgent:
		sender = storage.SenderAgent
	default:
		return
	}

	recordID, err := id.NewID()
	if err != nil {
		log.Printf("console: generate message id: %v", err)
		return
	}
	err = c.store.SaveMessage(context.Background(), storage.MessageRecord{
		ID:        recordID,
		UserID:    c.userID,
		SessionID: c.sessionID,
		RequestID: entry.RequestID,
		Sender:    sender,
		Agent:     entry.Agent,
		Body:      entry.Text,
		SentAt:    entry.At,
	})
	if err != nil {
		log.Printf("console: save message: %v", err)
	}
}

func (c *console) emit(event storage.TelemetryEvent) {
	event.UserID = c.userID
	event.SessionID = c.sessionID
	if err := c.emitter.Emit(context.Background(), event); err != nil {
		log.Printf("console: emit telemetry: %v", err)
	}
}

func (c *console) printStats(stats session.Stats, activity string, tools int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "status: %s\n", stats.Status)
	fmt.Fprintf(c.out, "reconnect attempts: %d\n", stats.ReconnectAttempts)
	fmt.Fprintf(c.out, "frames received: %d\n", stats.FramesReceived)
	if stats.LastPongAt.IsZero() {
		fmt.Fprintf(c.out, "last pong: never\n")
	} else {
		fmt.Fprintf(c.out, "last pong: %s\n", stats.LastPongAt.Format(time.RFC3339))
	}
	if activity != "" {
		fmt.Fprintf(c.out, "activity: %s\n", activity)
	}
	fmt.Fprintf(c.out, "tools tracked: %d\n", tools)
	if len(stats.Faults) == 0 {
		fmt.Fprintf(c.out, "faults: none\n")
		return
	}
	kinds := make([]string, 0, len(stats.Faults))
	for kind := range stats.Faults {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, stats.Faults[session.ErrorKind(kind)]))
	}
	fmt.Fprintf(c.out, "faults: %s\n", strings.Join(parts, " "))
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
