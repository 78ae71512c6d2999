package biz

// Session is the per-join bookkeeping of the normalizer. Every live-stream
// join gets its own session; only ManuallyEmittedState survives into the next
// join attempt of the same connection.
type Session struct {
	startedMessages  map[string]struct{}
	startedToolCalls map[string]struct{}

	ManuallyEmittedState map[string]any
	CurrentRunID         string
}

// NewSession creates a session for a join of runID, seeded with the state
// override carried from a previous attempt (may be nil).
func NewSession(runID string, carried map[string]any) *Session {
	return &Session{
		startedMessages:      make(map[string]struct{}),
		startedToolCalls:     make(map[string]struct{}),
		ManuallyEmittedState: carried,
		CurrentRunID:         runID,
	}
}

// startMessage records id and reports whether it was new.
func (s *Session) startMessage(id string) bool {
	if _, ok := s.startedMessages[id]; ok {
		return false
	}
	s.startedMessages[id] = struct{}{}
	return true
}

// startToolCall records id and reports whether it was new.
func (s *Session) startToolCall(id string) bool {
	if _, ok := s.startedToolCalls[id]; ok {
		return false
	}
	s.startedToolCalls[id] = struct{}{}
	return true
}

// MessageStarted reports whether a start event was already emitted for id.
func (s *Session) MessageStarted(id string) bool {
	_, ok := s.startedMessages[id]
	return ok
}

// ToolCallStarted reports whether a start event was already emitted for id.
func (s *Session) ToolCallStarted(id string) bool {
	_, ok := s.startedToolCalls[id]
	return ok
}
