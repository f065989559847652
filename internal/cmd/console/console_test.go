package console

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/agentwire/internal/agentsim"
	"github.com/louisbranch/agentwire/internal/storage"
	"github.com/louisbranch/agentwire/internal/storage/sqlite"
)

// syncBuffer lets the test read console output while session callbacks are
// still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestParseConfig(t *testing.T) {
	t.Setenv("AGENTWIRE_CONSOLE_BASE_URL", "http://agents.internal:9000")
	t.Setenv("AGENTWIRE_CONSOLE_USER_ID", "env-user")

	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-session", "sess-9", "-replay"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.BaseURL != "http://agents.internal:9000" {
		t.Fatalf("BaseURL = %q, want the env value", cfg.BaseURL)
	}
	if cfg.UserID != "env-user" {
		t.Fatalf("UserID = %q, want %q", cfg.UserID, "env-user")
	}
	if cfg.SessionID != "sess-9" {
		t.Fatalf("SessionID = %q, want the flag value", cfg.SessionID)
	}
	if !cfg.Replay {
		t.Fatal("Replay = false, want true from the flag")
	}
	if cfg.Agent != "presaleskb" {
		t.Fatalf("Agent = %q, want the default", cfg.Agent)
	}
	if cfg.StorePath != "agentwire.db" {
		t.Fatalf("StorePath = %q, want the default", cfg.StorePath)
	}
}

func TestInteractDrivesSessionAndPersists(t *testing.T) {
	srv := httptest.NewServer(agentsim.NewHandler())
	t.Cleanup(srv.Close)
	store := openTestStore(t)

	in, inw := io.Pipe()
	t.Cleanup(func() {
		_ = inw.Close()
	})
	out := &syncBuffer{}

	cfg := Config{
		BaseURL:   srv.URL,
		UserID:    "user-1",
		SessionID: "sess-console",
		Agent:     "presaleskb",
	}
	done := make(chan error, 1)
	go func() {
		done <- interact(context.Background(), in, out, store, cfg)
	}()

	if _, err := inw.Write([]byte("hello there\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "echoed user line", func() bool {
		return strings.Contains(out.String(), "you> hello there")
	})
	waitFor(t, "final agent reply", func() bool {
		return strings.Contains(out.String(), "presaleskb>")
	})

	if _, err := inw.Write([]byte("/status\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "status output", func() bool {
		return strings.Contains(out.String(), "status: connected")
	})

	if _, err := inw.Write([]byte("/quit\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("interact returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interact did not return after /quit")
	}

	messages, err := store.ListSessionMessages(context.Background(), "user-1", "sess-console", 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(messages))
	}
	if messages[0].Sender != storage.SenderUser || messages[0].Body != "hello there" {
		t.Fatalf("first record = %+v, want the user message", messages[0])
	}
	if messages[1].Sender != storage.SenderAgent || messages[1].Agent != "presaleskb" {
		t.Fatalf("second record = %+v, want the agent reply", messages[1])
	}
}

func TestInteractReturnsOnEOF(t *testing.T) {
	srv := httptest.NewServer(agentsim.NewHandler())
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:   srv.URL,
		UserID:    "user-1",
		SessionID: "sess-eof",
	}
	done := make(chan error, 1)
	go func() {
		done <- interact(context.Background(), strings.NewReader(""), &syncBuffer{}, nil, cfg)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("interact returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interact did not return on input EOF")
	}
}

func TestInteractReturnsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(agentsim.NewHandler())
	t.Cleanup(srv.Close)

	in, inw := io.Pipe()
	t.Cleanup(func() {
		_ = inw.Close()
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- interact(ctx, in, &syncBuffer{}, nil, Config{
			BaseURL:   srv.URL,
			UserID:    "user-1",
			SessionID: "sess-cancel",
		})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("interact returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interact did not return on cancellation")
	}
}

func TestReplayPrintsStoredTranscript(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := []storage.MessageRecord{
		{ID: "m1", UserID: "user-1", SessionID: "sess-r", RequestID: "req-1", Sender: storage.SenderUser, Body: "hi", SentAt: time.UnixMilli(1712000000000)},
		{ID: "m2", UserID: "user-1", SessionID: "sess-r", RequestID: "req-1", Sender: storage.SenderAgent, Agent: "presaleskb", Body: "hello back", SentAt: time.UnixMilli(1712000005000)},
	}
	for _, record := range seed {
		if err := store.SaveMessage(ctx, record); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	var out bytes.Buffer
	if err := replay(ctx, &out, store, "user-1", "sess-r"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("replay printed %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "you> hi") {
		t.Fatalf("first line = %q, want the user message", lines[0])
	}
	if !strings.Contains(lines[1], "presaleskb> hello back") {
		t.Fatalf("second line = %q, want the agent reply", lines[1])
	}

	out.Reset()
	if err := replay(ctx, &out, store, "user-1", "sess-unknown"); err != nil {
		t.Fatalf("replay empty session: %v", err)
	}
	if !strings.Contains(out.String(), "no stored messages") {
		t.Fatalf("replay output = %q, want the empty notice", out.String())
	}

	if err := replay(ctx, &out, nil, "user-1", "sess-r"); err == nil {
		t.Fatal("replay without a store succeeded, want an error")
	}
}
