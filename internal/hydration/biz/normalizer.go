package biz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Lifecycle events nested inside an "events" chunk.
const (
	onChatModelStart  = "on_chat_model_start"
	onChatModelStream = "on_chat_model_stream"
	onChatModelEnd    = "on_chat_model_end"
	onToolStart       = "on_tool_start"
	onToolEnd         = "on_tool_end"
	onChainStart      = "on_chain_start"
	onChainEnd        = "on_chain_end"
)

// Names of custom chunks with dedicated handling.
const (
	customEmitMessage           = "manually_emit_message"
	customEmitToolCall          = "manually_emit_tool_call"
	customEmitIntermediateState = "manually_emit_intermediate_state"
)

var errMalformedChunk = errors.New("malformed chunk payload")

// Normalizer translates live execution chunks into UI events. It holds no
// per-stream state; everything stream-specific lives in the Session.
type Normalizer struct {
	logger *logger.Logger
	debug  bool
}

// NewNormalizer creates a normalizer. Dropped chunks are logged only when debug is set.
func NewNormalizer(log *logger.Logger, debug bool) *Normalizer {
	return &Normalizer{logger: log, debug: debug}
}

// Handle processes one chunk and returns the UI events it produces, in order.
// Events are returned unstamped. A chunk that fails to process yields nothing.
func (n *Normalizer) Handle(ctx context.Context, chunk types.StreamChunk, s *Session) (events []types.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.skip(ctx, chunk, fmt.Errorf("panic: %v", r))
			events = nil
		}
	}()

	if len(bytes.TrimSpace(chunk.Data)) > 0 && !gjson.ValidBytes(chunk.Data) {
		n.skip(ctx, chunk, errMalformedChunk)
		return nil
	}
	data := gjson.ParseBytes(chunk.Data)

	switch chunk.Event {
	case types.StreamMetadata:
		if runID := data.Get("run_id").String(); runID != "" {
			s.CurrentRunID = runID
		}
		return nil

	case types.StreamEvents:
		return n.handleLifecycle(data, s)

	case types.StreamUpdates, types.StreamValues:
		snapshot, ok := objectValue(data)
		if !ok {
			n.skip(ctx, chunk, errMalformedChunk)
			return nil
		}
		return []types.Event{types.NewStateSnapshot(snapshot)}

	case types.StreamCustom:
		return n.handleCustom(data, s)

	case types.StreamError:
		return []types.Event{types.NewCustom(types.CustomError, rawValue(data))}

	default:
		n.skip(ctx, chunk, fmt.Errorf("unknown stream category %q", chunk.Event))
		return nil
	}
}

func (n *Normalizer) handleLifecycle(data gjson.Result, s *Session) []types.Event {
	var out []types.Event

	inner := data.Get("event").String()
	id := data.Get("run_id").String()
	if id == "" {
		id = s.CurrentRunID
	}
	// Flags only suppress when explicitly false.
	emitMessages := data.Get("metadata.emit-messages").Type != gjson.False
	emitToolCalls := data.Get("metadata.emit-tool-calls").Type != gjson.False

	switch inner {
	case onChatModelStream:
		if predict, ok := predictState(data); ok {
			out = append(out, types.NewCustom(types.CustomPredictState, predict))
		}
		if !emitMessages {
			break
		}
		if delta := ExtractContent(json.RawMessage(data.Get("data.chunk.content").Raw)); delta != "" {
			out = n.startMessage(out, s, id)
			out = append(out, types.NewTextMessageContent(id, delta))
		}

	case onChatModelStart:
		if emitMessages {
			out = n.startMessage(out, s, id)
		}

	case onChatModelEnd:
		if emitMessages {
			out = n.startMessage(out, s, id)
			out = append(out, types.NewTextMessageEnd(id))
		}

	case onToolStart:
		if !emitToolCalls {
			break
		}
		out = n.startToolCall(out, s, id, data.Get("name").String(), parentMessageID(data))
		if input := data.Get("data.input"); input.Exists() {
			out = append(out, types.NewToolCallArgs(id, compactRaw(input.Raw)))
		}

	case onToolEnd:
		if emitToolCalls {
			out = n.startToolCall(out, s, id, data.Get("name").String(), parentMessageID(data))
			out = append(out, types.NewToolCallEnd(id))
		}

	case onChainStart, onChainEnd:
		// Pass-through only.

	default:
		// Unknown lifecycle events still reach generic observers below.
	}

	name := inner
	if name == "" {
		name = types.StreamEvents
	}
	return append(out, types.NewCustom(name, rawValue(data)))
}

func (n *Normalizer) handleCustom(data gjson.Result, s *Session) []types.Event {
	name := data.Get("name").String()
	value := data.Get("value")

	switch name {
	case customEmitMessage:
		id := firstString(value, "message_id", "id")
		if id == "" {
			id = s.CurrentRunID
		}
		role := value.Get("role").String()
		if role == "" {
			role = types.RoleAssistant
		}
		s.startMessage(id)
		return []types.Event{
			types.NewTextMessageStart(id, role),
			types.NewTextMessageContent(id, firstString(value, "message", "content")),
			types.NewTextMessageEnd(id),
		}

	case customEmitToolCall:
		id := firstString(value, "id", "tool_call_id")
		if id == "" {
			id = s.CurrentRunID
		}
		s.startToolCall(id)
		out := []types.Event{types.NewToolCallStart(id, value.Get("name").String(), value.Get("parent_message_id").String())}
		args := value.Get("args")
		delta := "{}"
		switch {
		case args.Type == gjson.String:
			delta = args.String()
		case args.Exists():
			delta = compactRaw(args.Raw)
		}
		out = append(out, types.NewToolCallArgs(id, delta), types.NewToolCallEnd(id))
		return out

	case customEmitIntermediateState:
		state, ok := objectValue(value)
		if !ok {
			return nil
		}
		s.ManuallyEmittedState = state
		return []types.Event{types.NewStateSnapshot(state)}

	case types.CustomExit:
		return []types.Event{types.NewCustom(types.CustomExit, rawValue(value))}

	case "":
		return []types.Event{types.NewCustom(types.CustomFallback, rawValue(data))}

	default:
		return []types.Event{types.NewCustom(name, rawValue(value))}
	}
}

// startMessage appends a TEXT_MESSAGE_START unless one was already emitted for id.
func (n *Normalizer) startMessage(out []types.Event, s *Session, id string) []types.Event {
	if s.startMessage(id) {
		out = append(out, types.NewTextMessageStart(id, types.RoleAssistant))
	}
	return out
}

// startToolCall appends a TOOL_CALL_START unless one was already emitted for id.
func (n *Normalizer) startToolCall(out []types.Event, s *Session, id, name, parent string) []types.Event {
	if s.startToolCall(id) {
		out = append(out, types.NewToolCallStart(id, name, parent))
	}
	return out
}

func (n *Normalizer) skip(ctx context.Context, chunk types.StreamChunk, err error) {
	if !n.debug || n.logger == nil {
		return
	}
	n.logger.WithContext(ctx).Debug("skipping stream chunk",
		zap.String("category", chunk.Event),
		zap.Int("size", len(chunk.Data)),
		zap.Error(err))
}

// predictState reports the intermediate-state descriptors of a model stream
// chunk whose tool call targets one of them.
func predictState(data gjson.Result) (json.RawMessage, bool) {
	descriptors := data.Get("metadata.emit-intermediate-state")
	if !descriptors.IsArray() {
		return nil, false
	}
	toolName := data.Get("data.chunk.tool_call_chunks.0.name").String()
	if toolName == "" {
		return nil, false
	}
	for _, d := range descriptors.Array() {
		if d.Get("tool").String() == toolName {
			return json.RawMessage(descriptors.Raw), true
		}
	}
	return nil, false
}

// parentMessageID is the innermost parent run of a lifecycle event.
func parentMessageID(data gjson.Result) string {
	parents := data.Get("parent_ids").Array()
	if len(parents) == 0 {
		return ""
	}
	return parents[len(parents)-1].String()
}

func objectValue(r gjson.Result) (map[string]any, bool) {
	if !r.IsObject() {
		return nil, false
	}
	m, ok := r.Value().(map[string]any)
	return m, ok
}

// rawValue keeps a JSON payload verbatim, or null when absent.
func rawValue(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Raw)
}

func compactRaw(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

func firstString(r gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := r.Get(key).String(); v != "" {
			return v
		}
	}
	return ""
}
