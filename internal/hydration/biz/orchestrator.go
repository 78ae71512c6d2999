package biz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"go.uber.org/zap"
)

// Orchestrator drives one connection: history snapshot, optional live join,
// completion. It is not reused across connections.
type Orchestrator struct {
	cfg        Config
	backend    Backend
	projector  *Projector
	normalizer *Normalizer
	logger     *logger.Logger
	now        func() time.Time
	newRunID   func() string
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunIDGenerator sets the generator for synthesized run ids.
func WithRunIDGenerator(gen func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newRunID = gen
	}
}

// NewOrchestrator creates an orchestrator bound to one backend client.
func NewOrchestrator(cfg Config, backend Backend, log *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	cfg = cfg.WithDefaults()
	o := &Orchestrator{
		cfg:        cfg,
		backend:    backend,
		projector:  NewProjector(log, cfg.Debug),
		normalizer: NewNormalizer(log, cfg.Debug),
		logger:     log,
		now:        time.Now,
		newRunID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// emitter stamps events and tracks which parts of the sequence were sent.
type emitter struct {
	sink     Sink
	threadID string
	runID    string
	now      func() time.Time

	started  bool
	snapshot bool
	finished bool
	err      error
}

func (e *emitter) emit(ctx context.Context, event types.Event) error {
	if e.err != nil {
		return e.err
	}
	if e.finished {
		return nil
	}
	types.Stamp(event, e.threadID, e.runID, e.now())
	if err := e.sink.Emit(ctx, event); err != nil {
		e.err = err
		return err
	}
	switch event.EventType() {
	case types.EventRunStarted:
		e.started = true
	case types.EventMessagesSnapshot:
		e.snapshot = true
	case types.EventRunFinished:
		e.finished = true
	}
	return nil
}

// Run hydrates threadID into sink. input is the optional connect input fed to
// the state extractor. It returns an error only when the sink stopped
// accepting events; backend failures degrade to a shorter valid sequence.
func (o *Orchestrator) Run(ctx context.Context, threadID string, input map[string]any, sink Sink) (err error) {
	em := &emitter{sink: sink, threadID: threadID, now: o.now}
	log := o.logger.WithContext(ctx).With(zap.String("thread_id", threadID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("hydration panicked", zap.Any("panic", r), zap.String("run_id", em.runID))
			err = o.finish(ctx, em, fmt.Errorf("panic: %v", r))
		}
	}()

	return o.finish(ctx, em, o.hydrate(ctx, em, threadID, input, log))
}

// Fallback emits the minimal well-formed sequence for a connection that
// cannot reach the backend at all.
func (o *Orchestrator) Fallback(ctx context.Context, threadID string, cause error, sink Sink) error {
	em := &emitter{sink: sink, threadID: threadID, now: o.now}
	return o.finish(ctx, em, cause)
}

// finish terminates the sequence. Any failure that left it unterminated is
// repaired with the missing RUN_STARTED, MESSAGES_SNAPSHOT and RUN_FINISHED.
func (o *Orchestrator) finish(ctx context.Context, em *emitter, cause error) error {
	if em.err == nil && !em.finished && ctx.Err() == nil {
		if cause != nil {
			o.logger.Warn("hydration degraded to fallback sequence",
				zap.String("thread_id", em.threadID),
				zap.String("run_id", em.runID),
				zap.Error(cause))
		}
		if em.runID == "" {
			em.runID = o.newRunID()
		}
		if !em.started {
			_ = em.emit(ctx, types.NewRunStarted())
		}
		if !em.snapshot {
			_ = em.emit(ctx, types.NewMessagesSnapshot(nil))
		}
		_ = em.emit(ctx, types.NewRunFinished())
	}

	switch {
	case em.err != nil:
		em.sink.Fail(em.err)
		return em.err
	case !em.finished:
		em.sink.Fail(ctx.Err())
		return nil
	default:
		em.sink.Complete()
		return nil
	}
}

func (o *Orchestrator) hydrate(ctx context.Context, em *emitter, threadID string, input map[string]any, log *logger.Logger) error {
	checkpoints, err := o.backend.FetchHistory(ctx, threadID, o.cfg.HistoryLimit)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("failed to fetch thread history", zap.Error(err))
		checkpoints = nil
	}
	if len(checkpoints) == 0 {
		em.runID = o.newRunID()
		for _, event := range []types.Event{types.NewRunStarted(), types.NewMessagesSnapshot(nil), types.NewRunFinished()} {
			if err := em.emit(ctx, event); err != nil {
				return err
			}
		}
		return nil
	}

	rec := Reconstruct(checkpoints, o.cfg.HistoryLimit, o.projector)

	runs, err := o.backend.ListRuns(ctx, threadID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("failed to list thread runs", zap.Error(err))
		runs = nil
	}
	em.runID = latestRunID(runs)
	if em.runID == "" {
		em.runID = o.newRunID()
	}
	log = log.With(zap.String("run_id", em.runID))

	if err := em.emit(ctx, types.NewRunStarted()); err != nil {
		return err
	}
	if err := em.emit(ctx, types.NewMessagesSnapshot(rec.Messages)); err != nil {
		return err
	}
	if state := o.mergeState(rec.LatestState, input); len(state) > 0 {
		if err := em.emit(ctx, types.NewStateSnapshot(state)); err != nil {
			return err
		}
	}
	if rec.HasInterrupt {
		if err := em.emit(ctx, types.NewCustom(types.CustomInterrupt, rec.Interrupt)); err != nil {
			return err
		}
	}

	if rec.ThreadBusy {
		if active, ok := activeRun(runs, o.cfg.GraphID); ok {
			if err := o.joinLive(ctx, em, threadID, active.RunID, log); err != nil {
				return err
			}
		} else {
			log.Info("thread busy but no active run found")
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if value, ok := o.pendingInterrupt(ctx, threadID, log); ok && !sameJSON(value, rec.Interrupt) {
		if err := em.emit(ctx, types.NewCustom(types.CustomInterrupt, value)); err != nil {
			return err
		}
	}
	return em.emit(ctx, types.NewRunFinished())
}

// joinLive streams the active run through the normalizer, rejoining after
// transport failures. It returns an error only when the sink failed.
func (o *Orchestrator) joinLive(ctx context.Context, em *emitter, threadID, runID string, log *logger.Logger) error {
	var carried map[string]any
	for attempt := 0; attempt <= o.cfg.JoinRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(o.cfg.JoinBackoff * time.Duration(attempt)):
			}
		}

		session := NewSession(runID, carried)
		if attempt > 0 && carried != nil {
			if err := em.emit(ctx, types.NewStateSnapshot(carried)); err != nil {
				return err
			}
		}

		err := o.stream(ctx, em, threadID, runID, session)
		carried = session.ManuallyEmittedState
		if em.err != nil {
			return em.err
		}
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNoActiveRun) {
			log.Info("run finished before join", zap.String("run_id", runID))
			return nil
		}
		log.Warn("live stream join failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", o.cfg.JoinRetries+1),
			zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) stream(ctx context.Context, em *emitter, threadID, runID string, session *Session) error {
	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := o.backend.JoinStream(joinCtx, threadID, runID, o.cfg.StreamModes)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			return chunk.Err
		}
		for _, event := range o.normalizer.Handle(joinCtx, chunk, session) {
			if err := em.emit(ctx, event); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) pendingInterrupt(ctx context.Context, threadID string, log *logger.Logger) (json.RawMessage, bool) {
	state, err := o.backend.GetState(ctx, threadID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("failed to re-check thread state", zap.Error(err))
		}
		return nil, false
	}
	if state == nil {
		return nil, false
	}
	return state.FirstInterrupt()
}

// mergeState overlays the extracted input state on the latest checkpoint values.
func (o *Orchestrator) mergeState(latest map[string]any, input map[string]any) map[string]any {
	if o.cfg.StateExtractor == nil || input == nil {
		return latest
	}
	extra := o.cfg.StateExtractor(input)
	if len(extra) == 0 {
		return latest
	}
	merged := make(map[string]any, len(latest)+len(extra))
	for k, v := range latest {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// latestRunID picks the most recently created run, or "" when there is none.
func latestRunID(runs []types.Run) string {
	var latest *types.Run
	for i := range runs {
		if latest == nil || runs[i].CreatedAt.After(latest.CreatedAt) {
			latest = &runs[i]
		}
	}
	if latest == nil {
		return ""
	}
	return latest.RunID
}

// activeRun finds a running or pending run, restricted to graphID when set.
func activeRun(runs []types.Run, graphID string) (types.Run, bool) {
	for _, run := range runs {
		if !run.Active() {
			continue
		}
		if graphID != "" && run.AssistantID != "" && run.AssistantID != graphID {
			continue
		}
		return run, true
	}
	return types.Run{}, false
}

func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
