package types

import "time"

// EventType UI 事件类型
type EventType string

// AG-UI event types emitted towards the UI consumer.
const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventMessagesSnapshot   EventType = "MESSAGES_SNAPSHOT"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventCustom             EventType = "CUSTOM"
)

// Reserved CUSTOM event names.
const (
	CustomInterrupt    = "on_interrupt"
	CustomPredictState = "PredictState"
	CustomExit         = "exit"
	CustomError        = "error"
	CustomFallback     = "custom_event"
)

// Event is implemented by every UI event.
type Event interface {
	EventType() EventType
	base() *BaseEvent
}

// BaseEvent 所有 UI 事件共有的字段
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	ThreadID  string    `json:"threadId"`
	RunID     string    `json:"runId"`
}

func (b *BaseEvent) EventType() EventType { return b.Type }

func (b *BaseEvent) base() *BaseEvent { return b }

// Stamp fills the envelope of e with the given identity and time in milliseconds.
func Stamp(e Event, threadID, runID string, at time.Time) Event {
	b := e.base()
	b.ThreadID = threadID
	b.RunID = runID
	b.Timestamp = at.UnixMilli()
	return e
}

// RunStarted 运行开始
type RunStarted struct {
	BaseEvent
}

// RunFinished 运行结束
type RunFinished struct {
	BaseEvent
}

// MessagesSnapshot carries the full reconstructed timeline.
type MessagesSnapshot struct {
	BaseEvent
	Messages []UIMessage `json:"messages"`
}

// StateSnapshot carries the auxiliary thread state.
type StateSnapshot struct {
	BaseEvent
	Snapshot map[string]any `json:"snapshot"`
}

type TextMessageStart struct {
	BaseEvent
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
}

type TextMessageContent struct {
	BaseEvent
	MessageID string `json:"messageId"`
	Delta     string `json:"delta"`
}

type TextMessageEnd struct {
	BaseEvent
	MessageID string `json:"messageId"`
}

type ToolCallStart struct {
	BaseEvent
	ToolCallID      string `json:"toolCallId"`
	ToolCallName    string `json:"toolCallName"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

type ToolCallArgs struct {
	BaseEvent
	ToolCallID string `json:"toolCallId"`
	Delta      string `json:"delta"`
}

type ToolCallEnd struct {
	BaseEvent
	ToolCallID string `json:"toolCallId"`
}

// Custom is the generic named signal used for interrupts, predicted state,
// pass-through of lifecycle events, exits and errors.
type Custom struct {
	BaseEvent
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func NewRunStarted() *RunStarted {
	return &RunStarted{BaseEvent{Type: EventRunStarted}}
}

func NewRunFinished() *RunFinished {
	return &RunFinished{BaseEvent{Type: EventRunFinished}}
}

// NewMessagesSnapshot never serializes a nil list as null.
func NewMessagesSnapshot(messages []UIMessage) *MessagesSnapshot {
	if messages == nil {
		messages = []UIMessage{}
	}
	return &MessagesSnapshot{BaseEvent: BaseEvent{Type: EventMessagesSnapshot}, Messages: messages}
}

func NewStateSnapshot(snapshot map[string]any) *StateSnapshot {
	return &StateSnapshot{BaseEvent: BaseEvent{Type: EventStateSnapshot}, Snapshot: snapshot}
}

func NewTextMessageStart(messageID, role string) *TextMessageStart {
	return &TextMessageStart{BaseEvent: BaseEvent{Type: EventTextMessageStart}, MessageID: messageID, Role: role}
}

func NewTextMessageContent(messageID, delta string) *TextMessageContent {
	return &TextMessageContent{BaseEvent: BaseEvent{Type: EventTextMessageContent}, MessageID: messageID, Delta: delta}
}

func NewTextMessageEnd(messageID string) *TextMessageEnd {
	return &TextMessageEnd{BaseEvent: BaseEvent{Type: EventTextMessageEnd}, MessageID: messageID}
}

func NewToolCallStart(toolCallID, name, parentMessageID string) *ToolCallStart {
	return &ToolCallStart{
		BaseEvent:       BaseEvent{Type: EventToolCallStart},
		ToolCallID:      toolCallID,
		ToolCallName:    name,
		ParentMessageID: parentMessageID,
	}
}

func NewToolCallArgs(toolCallID, delta string) *ToolCallArgs {
	return &ToolCallArgs{BaseEvent: BaseEvent{Type: EventToolCallArgs}, ToolCallID: toolCallID, Delta: delta}
}

func NewToolCallEnd(toolCallID string) *ToolCallEnd {
	return &ToolCallEnd{BaseEvent: BaseEvent{Type: EventToolCallEnd}, ToolCallID: toolCallID}
}

func NewCustom(name string, value any) *Custom {
	return &Custom{BaseEvent: BaseEvent{Type: EventCustom}, Name: name, Value: value}
}
