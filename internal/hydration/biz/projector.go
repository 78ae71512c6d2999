package biz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Projector converts backend message records into UI messages.
type Projector struct {
	logger *logger.Logger
	debug  bool
}

// NewProjector creates a projector. Dropped records are logged only when debug is set.
func NewProjector(log *logger.Logger, debug bool) *Projector {
	return &Projector{logger: log, debug: debug}
}

// Project maps one message. It returns false for unknown variants and for
// records that fail to project; the caller skips those.
func (p *Projector) Project(msg types.BackendMessage) (ui types.UIMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.dropped(msg, fmt.Errorf("panic: %v", r))
			ui, ok = types.UIMessage{}, false
		}
	}()

	content := ExtractContent(msg.Content)

	switch msg.Type {
	case types.MessageTypeHuman:
		return types.UIMessage{ID: msg.ID, Role: types.RoleUser, Content: content}, true

	case types.MessageTypeAI:
		calls, err := projectToolCalls(msg.ToolCalls)
		if err != nil {
			p.dropped(msg, err)
			return types.UIMessage{}, false
		}
		return types.UIMessage{ID: msg.ID, Role: types.RoleAssistant, Content: content, ToolCalls: calls}, true

	case types.MessageTypeSystem:
		return types.UIMessage{ID: msg.ID, Role: types.RoleSystem, Content: content}, true

	case types.MessageTypeTool:
		return types.UIMessage{ID: msg.ID, Role: types.RoleTool, Content: content, ToolCallID: msg.ToolCallID}, true

	default:
		p.dropped(msg, fmt.Errorf("unknown message type %q", msg.Type))
		return types.UIMessage{}, false
	}
}

func (p *Projector) dropped(msg types.BackendMessage, err error) {
	if !p.debug || p.logger == nil {
		return
	}
	p.logger.Debug("skipping unprojectable message",
		zap.String("message_id", msg.ID),
		zap.String("message_type", msg.Type),
		zap.Error(err))
}

func projectToolCalls(calls []types.BackendToolCall) ([]openai.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]openai.ToolCall, 0, len(calls))
	for _, call := range calls {
		args, err := encodeArgs(call.Args)
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", call.ID, err)
		}
		out = append(out, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return out, nil
}

// encodeArgs returns the compact JSON form of structured args, "{}" when absent.
func encodeArgs(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractContent flattens message content: a string is returned as-is, a list
// of blocks yields the non-empty text blocks joined by newlines, anything else
// yields "".
func ExtractContent(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return ""
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var block contentBlock
			if err := json.Unmarshal(item, &block); err != nil {
				continue
			}
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n")

	default:
		return ""
	}
}
