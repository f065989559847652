package session

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestToolLogResolvesByExecutionID(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 10}
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ended := started.Add(2 * time.Second)

	log.begin("screenshot-1712000000", "screenshot", json.RawMessage(`{"url":"https://example.com"}`), started)
	got := log.resolve("screenshot-1712000000", "", json.RawMessage(`{"path":"shot.png"}`), "", ended)

	if got.Status != ToolComplete {
		t.Fatalf("status = %q, want %q", got.Status, ToolComplete)
	}
	if got.ToolName != "screenshot" {
		t.Fatalf("tool name = %q, want %q", got.ToolName, "screenshot")
	}
	if !got.EndedAt.Equal(ended) {
		t.Fatalf("ended at = %v, want %v", got.EndedAt, ended)
	}
	if entries := log.snapshot(); len(entries) != 1 || entries[0].Status != ToolComplete {
		t.Fatalf("snapshot = %+v, want one completed entry", entries)
	}
}

func TestToolLogFallsBackToNewestMatchingName(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 10}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	log.begin("analysis-1", "analysis", nil, at)
	log.begin("analysis-2", "analysis", nil, at.Add(time.Second))

	got := log.resolve("", "analysis", json.RawMessage(`{"score":42}`), "", at.Add(2*time.Second))
	if got.ExecutionID != "analysis-2" {
		t.Fatalf("resolved execution = %q, want the most recent executing match", got.ExecutionID)
	}

	entries := log.snapshot()
	if entries[0].Status != ToolExecuting {
		t.Fatalf("older execution status = %q, want still executing", entries[0].Status)
	}
	if entries[1].Status != ToolComplete {
		t.Fatalf("newer execution status = %q, want complete", entries[1].Status)
	}
}

func TestToolLogDerivesNameFromExecutionID(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 10}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	exec := log.begin("favicon-1712000001", "", nil, at)
	if exec.ToolName != "favicon" {
		t.Fatalf("derived tool name = %q, want %q", exec.ToolName, "favicon")
	}

	// A result with an unseen id still finds the execution through the
	// derived name.
	got := log.resolve("favicon-9999", "", json.RawMessage(`{"icon":"x.ico"}`), "", at.Add(time.Second))
	if got.ExecutionID != "favicon-1712000001" {
		t.Fatalf("resolved execution = %q, want the executing favicon entry", got.ExecutionID)
	}
	if len(log.snapshot()) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(log.snapshot()))
	}
}

func TestToolLogSynthesizesUnmatchedResult(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 10}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	got := log.resolve("solar-77", "", json.RawMessage(`{"panels":12}`), "", at)
	if got.Status != ToolComplete || got.ToolName != "solar" {
		t.Fatalf("synthesized entry = %+v, want completed solar entry", got)
	}
	if !got.StartedAt.Equal(at) || !got.EndedAt.Equal(at) {
		t.Fatalf("synthesized times = %v/%v, want both %v", got.StartedAt, got.EndedAt, at)
	}
	if len(log.snapshot()) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(log.snapshot()))
	}
}

func TestToolLogMarksErrorResults(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 10}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	log.begin("screenshot-5", "screenshot", nil, at)
	got := log.resolve("screenshot-5", "", nil, "navigation timed out", at.Add(time.Second))

	if got.Status != ToolError {
		t.Fatalf("status = %q, want %q", got.Status, ToolError)
	}
	if got.Error != "navigation timed out" {
		t.Fatalf("error = %q, want the server message", got.Error)
	}
}

func TestToolLogBoundsHistory(t *testing.T) {
	t.Parallel()
	log := toolLog{limit: 3}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		log.begin(fmt.Sprintf("screenshot-%d", i), "screenshot", nil, at)
	}

	entries := log.snapshot()
	if len(entries) != 3 {
		t.Fatalf("snapshot length = %d, want 3", len(entries))
	}
	if entries[0].ExecutionID != "screenshot-2" {
		t.Fatalf("oldest retained = %q, want screenshot-2", entries[0].ExecutionID)
	}
}
