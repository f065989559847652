package session

import (
	"encoding/json"
	"strings"
	"time"
)

// toolLog keeps the bounded, ordered history of server-reported tool
// executions. Callers hold the session lock.
type toolLog struct {
	limit   int
	entries []ToolExecution
}

// begin appends a new executing entry.
func (l *toolLog) begin(executionID, toolName string, params json.RawMessage, at time.Time) ToolExecution {
	exec := ToolExecution{
		ExecutionID: strings.TrimSpace(executionID),
		ToolName:    resolveToolName(toolName, executionID),
		Status:      ToolExecuting,
		Params:      params,
		StartedAt:   at,
	}
	l.entries = append(l.entries, exec)
	l.trim()
	return exec
}

// resolve matches a result to its invocation: by execution id first, then the
// most recent executing entry with the same tool name. When nothing matches a
// completed entry is synthesized so the result is not dropped.
func (l *toolLog) resolve(executionID, toolName string, result json.RawMessage, errMessage string, at time.Time) ToolExecution {
	executionID = strings.TrimSpace(executionID)
	status := ToolComplete
	if errMessage != "" {
		status = ToolError
	}

	if executionID != "" {
		for i := len(l.entries) - 1; i >= 0; i-- {
			if l.entries[i].ExecutionID == executionID {
				return l.completeAt(i, status, result, errMessage, at)
			}
		}
	}

	name := resolveToolName(toolName, executionID)
	if name != "" {
		for i := len(l.entries) - 1; i >= 0; i-- {
			if l.entries[i].Status == ToolExecuting && l.entries[i].ToolName == name {
				return l.completeAt(i, status, result, errMessage, at)
			}
		}
	}

	exec := ToolExecution{
		ExecutionID: executionID,
		ToolName:    name,
		Status:      status,
		Result:      result,
		Error:       errMessage,
		StartedAt:   at,
		EndedAt:     at,
	}
	l.entries = append(l.entries, exec)
	l.trim()
	return exec
}

func (l *toolLog) completeAt(i int, status ToolStatus, result json.RawMessage, errMessage string, at time.Time) ToolExecution {
	l.entries[i].Status = status
	l.entries[i].Result = result
	l.entries[i].Error = errMessage
	l.entries[i].EndedAt = at
	return l.entries[i]
}

func (l *toolLog) trim() {
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

func (l *toolLog) snapshot() []ToolExecution {
	out := make([]ToolExecution, len(l.entries))
	copy(out, l.entries)
	return out
}

// resolveToolName prefers the explicit name, deriving one from the execution
// id prefix ("screenshot-1712..." becomes "screenshot") when the server
// omits it.
func resolveToolName(toolName, executionID string) string {
	toolName = strings.TrimSpace(toolName)
	if toolName != "" {
		return toolName
	}
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return ""
	}
	name, _, _ := strings.Cut(executionID, "-")
	return name
}
