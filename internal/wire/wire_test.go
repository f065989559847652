package wire

import (
	"encoding/json"
	"testing"
)

func TestChatFrameEncodesOnlyMessageAndRequestID(t *testing.T) {
	encoded, err := json.Marshal(Chat("hello", "req-1", ""))
	if err != nil {
		t.Fatalf("marshal chat frame: %v", err)
	}
	want := `{"requestId":"req-1","message":"hello"}`
	if string(encoded) != want {
		t.Fatalf("chat frame = %s, want %s", encoded, want)
	}
}

func TestChatFrameCarriesAgentWhenAddressed(t *testing.T) {
	encoded, err := json.Marshal(Chat("hello", "req-1", "presaleskb"))
	if err != nil {
		t.Fatalf("marshal chat frame: %v", err)
	}
	want := `{"requestId":"req-1","message":"hello","agent":"presaleskb"}`
	if string(encoded) != want {
		t.Fatalf("chat frame = %s, want %s", encoded, want)
	}
}

func TestPingFrameEncodesTypeAndTimestamp(t *testing.T) {
	encoded, err := json.Marshal(Ping(1700000000123))
	if err != nil {
		t.Fatalf("marshal ping frame: %v", err)
	}
	want := `{"type":"ping","timestamp":1700000000123}`
	if string(encoded) != want {
		t.Fatalf("ping frame = %s, want %s", encoded, want)
	}
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"typed frame", `{"type":"agent_response","final":true}`, KindAgentResponse},
		{"untyped chat", `{"message":"hi","requestId":"req-2"}`, KindChat},
		{"untyped empty", `{"requestId":"req-3"}`, ""},
		{"pong", `{"type":"pong","timestamp":12}`, KindPong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var frame Frame
			if err := json.Unmarshal([]byte(tc.input), &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := frame.Kind(); got != tc.want {
				t.Fatalf("Kind() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFinalDefaultsToFalseWhenAbsent(t *testing.T) {
	var frame Frame
	input := `{"type":"agent_response","requestId":"req-4","message":"partial"}`
	if err := json.Unmarshal([]byte(input), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Final {
		t.Fatal("expected absent final to decode as false")
	}
}

func TestToolFramesPreserveRawPayloads(t *testing.T) {
	input := `{"type":"tool_result","executionId":"shot-1","result":{"path":"/x.png"}}`
	var frame Frame
	if err := json.Unmarshal([]byte(input), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var result struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		t.Fatalf("unmarshal result payload: %v", err)
	}
	if result.Path != "/x.png" {
		t.Fatalf("result path = %q, want %q", result.Path, "/x.png")
	}
}
