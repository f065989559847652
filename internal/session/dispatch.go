package session

import (
	"encoding/json"
	"errors"

	"github.com/louisbranch/agentwire/internal/wire"
)

const (
	activityProcessing = "Processing your request..."
	activityThinking   = "Agent is thinking..."
)

// handleFrame routes one decoded server frame. It runs on the read loop
// goroutine and takes the session lock for the duration of the update.
func (s *Session) handleFrame(gen uint64, frame wire.Frame) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.framesReceived++

	switch frame.Kind() {
	case wire.KindAck:
		s.logf("session: server acknowledged request %s", frame.RequestID)

	case wire.KindConnectionStatus:
		s.logf("session: server status %q: %s", frame.Status, frame.Message)

	case wire.KindProcessingStart:
		s.setActivityLocked(activityProcessing)

	case wire.KindAgentThinking:
		if frame.Message != "" {
			s.setActivityLocked(frame.Message)
		} else {
			s.setActivityLocked(activityThinking)
		}

	case wire.KindAgentUpdate:
		if frame.Message != "" {
			s.setActivityLocked(frame.Message)
		}

	case wire.KindAgentResponse:
		s.handleAgentResponseLocked(frame)

	case wire.KindToolExecution:
		exec := s.tools.begin(frame.ExecutionID, frame.Tool, frame.Params, s.clock.Now())
		s.notifyToolLocked(exec)

	case wire.KindToolResult:
		exec := s.tools.resolve(frame.ExecutionID, frame.Tool, frame.Result, frame.Error, s.clock.Now())
		s.notifyToolLocked(exec)

	case wire.KindError:
		s.handleServerErrorLocked(frame)

	case wire.KindPing:
		conn := s.conn
		reply := wire.Pong(s.clock.Now().UnixMilli())
		s.mu.Unlock()
		if conn != nil {
			if err := conn.WriteJSON(reply); err != nil {
				s.transportLost(gen, err)
			}
		}
		return

	case wire.KindPong:
		s.lastPongAt = s.clock.Now()
		s.logf("session: keepalive pong received")

	default:
		s.logf("session: dropping frame with unknown type %q", frame.Type)
	}
	s.mu.Unlock()
}

// handleAgentResponseLocked applies a response frame. Non-final frames only
// refresh the activity line; the final frame settles the outstanding request
// and lands in the transcript, replacing an earlier answer for the same
// request id if the server revises it.
func (s *Session) handleAgentResponseLocked(frame wire.Frame) {
	if !frame.Final {
		if frame.Message != "" {
			s.setActivityLocked(frame.Message)
		}
		return
	}

	if s.pending != nil && s.pending.id == frame.RequestID {
		s.pending.timer.Stop()
		s.pending = nil
	}
	s.setActivityLocked("")
	s.upsertAgentEntryLocked(Entry{
		Kind:      EntryAgent,
		RequestID: frame.RequestID,
		Agent:     frame.Agent,
		Text:      frame.Message,
		At:        s.clock.Now(),
	})
}

// handleServerErrorLocked settles the outstanding request with a
// chat-visible error entry. An error frame without a request id is attributed
// to the request in flight.
func (s *Session) handleServerErrorLocked(frame wire.Frame) {
	text := frame.Message
	if text == "" {
		text = frame.Error
	}
	if text == "" {
		text = "The agent reported an error."
	}

	requestID := frame.RequestID
	if s.pending != nil && (requestID == "" || requestID == s.pending.id) {
		requestID = s.pending.id
		s.pending.timer.Stop()
		s.pending = nil
	}
	s.setActivityLocked("")
	s.noteFaultLocked(ErrorKindServerError)
	s.logf("session: server error for request %q: %s", requestID, text)
	s.appendEntryLocked(Entry{
		Kind:      EntryError,
		RequestID: requestID,
		Text:      text,
		ErrorKind: ErrorKindServerError,
		At:        s.clock.Now(),
	})
}

func (s *Session) notifyToolLocked(exec ToolExecution) {
	if s.cb.ToolUpdated != nil {
		s.cb.ToolUpdated(exec)
	}
}

// isDecodeError reports whether a read failed because of malformed JSON
// rather than a dead transport. Malformed frames are logged and dropped; the
// connection stays up.
func isDecodeError(err error) bool {
	var syntax *json.SyntaxError
	var unmarshal *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &unmarshal)
}

func (s *Session) noteDecodeError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.noteFaultLocked(ErrorKindDecodeError)
	s.logf("session: dropping undecodable frame: %v", err)
}
