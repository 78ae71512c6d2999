package types

import (
	"encoding/json"
	"time"
)

// Run statuses reported by the execution backend.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Checkpoint 线程在某一时刻的执行快照
type Checkpoint struct {
	Values map[string]json.RawMessage `json:"values,omitempty"`
	Next   []string                   `json:"next,omitempty"`
	Tasks  []Task                     `json:"tasks,omitempty"`
}

// Task 检查点上的待执行任务
type Task struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Interrupts []Interrupt `json:"interrupts,omitempty"`
}

// Interrupt carries an opaque value raised by a paused task.
type Interrupt struct {
	Value json.RawMessage `json:"value"`
}

// Pending reports whether execution was still scheduled at this checkpoint.
func (c *Checkpoint) Pending() bool {
	return len(c.Next) > 0
}

// FirstInterrupt returns the first interrupt of the first task that has any.
func (c *Checkpoint) FirstInterrupt() (json.RawMessage, bool) {
	for _, task := range c.Tasks {
		if len(task.Interrupts) > 0 {
			return task.Interrupts[0].Value, true
		}
	}
	return nil, false
}

// Run 线程上的一次执行
type Run struct {
	RunID       string    `json:"run_id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Active reports whether the run is still executing or queued.
func (r *Run) Active() bool {
	return r.Status == RunStatusRunning || r.Status == RunStatusPending
}

// Stream categories of the live execution stream.
const (
	StreamMetadata = "metadata"
	StreamEvents   = "events"
	StreamUpdates  = "updates"
	StreamValues   = "values"
	StreamCustom   = "custom"
	StreamError    = "error"
)

// StreamChunk is one frame of the live execution stream. Err is set on the
// terminal chunk when the underlying transport failed.
type StreamChunk struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Err   error           `json:"-"`
}
