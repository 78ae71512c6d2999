package types

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"
)

// Backend message variants as they appear in the "type" field on the wire.
const (
	MessageTypeHuman  = "human"
	MessageTypeAI     = "ai"
	MessageTypeSystem = "system"
	MessageTypeTool   = "tool"
)

// UI roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// BackendMessage 执行后端持久化的一条消息记录
type BackendMessage struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Content    json.RawMessage   `json:"content,omitempty"`
	ToolCalls  []BackendToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// BackendToolCall AI 消息上携带的工具调用
type BackendToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// UIMessage is the role-tagged projection of a BackendMessage sent to the UI.
// Tool calls reuse the OpenAI wire shape: {id, type:"function", function:{name, arguments}}.
type UIMessage struct {
	ID         string            `json:"id"`
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []openai.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
}
