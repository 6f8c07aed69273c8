// Package lattice implements the cognitive lattice: an append-only event
// log plus a task state machine, persisted to a session-scoped JSON file
// via write-temp-then-rename.
package lattice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/model"
)

// ErrNoActiveTask is returned when an operation requires an active task
// and none exists.
var ErrNoActiveTask = fmt.Errorf("lattice: no active task")

// saveTriggerEvents are the event types that force a persistence flush
// on AddEvent. Task mutations always save; only these high-signal event
// types also force a save, avoiding a disk write on every minor event.
var saveTriggerEvents = map[model.LatticeEventType]bool{
	model.EventTaskCompleted: true,
	model.EventError:         true,
	model.EventWebDecision:   true,
}

// Lattice is the in-memory, mutex-guarded session state. All mutation
// goes through its methods; callers never modify the embedded
// model.Lattice directly.
type Lattice struct {
	mu     sync.Mutex
	data   model.Lattice
	path   string
	logger zerolog.Logger
	store  *Store
}

// AttachStore wires an optional sqlite secondary index (see store.go):
// every event appended after this call is also indexed for cross-session
// querying. The JSON file remains authoritative; indexing failures are
// logged and never fail the calling operation.
func (l *Lattice) AttachStore(store *Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = store
}

// New creates a fresh Lattice with a new session id, persisted under
// dataDir/<session_id>.json.
func New(dataDir string, logger zerolog.Logger) (*Lattice, error) {
	sessionID := uuid.NewString()
	l := &Lattice{
		data: model.Lattice{
			SessionID:    sessionID,
			CreatedAt:    time.Now(),
			Nodes:        []model.Task{},
			EventLog:     []model.LatticeEvent{},
			MemoryChunks: []map[string]any{},
			LastUpdated:  time.Now(),
		},
		path:   filepath.Join(dataDir, sessionID+".json"),
		logger: logger,
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lattice: create data dir: %w", err)
	}
	return l, l.save()
}

// Load reopens a previously persisted Lattice file, resuming a session.
func Load(path string, logger zerolog.Logger) (*Lattice, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lattice: read %s: %w", path, err)
	}
	var data model.Lattice
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("lattice: parse %s: %w", path, err)
	}
	return &Lattice{data: data, path: path, logger: logger}, nil
}

// SessionID returns the immutable session identifier.
func (l *Lattice) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.SessionID
}

// Snapshot returns a deep-enough copy of the current lattice state for
// read-only inspection (debug artifacts, tests).
func (l *Lattice) Snapshot() model.Lattice {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := l.data
	cp.Nodes = append([]model.Task(nil), l.data.Nodes...)
	cp.EventLog = append([]model.LatticeEvent(nil), l.data.EventLog...)
	return cp
}

// save performs write-temp-then-rename persistence; the previous file
// version remains intact if the process crashes mid-write.
func (l *Lattice) save() error {
	l.data.LastUpdated = time.Now()
	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return fmt.Errorf("lattice: marshal: %w", err)
	}
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".lattice-*.tmp")
	if err != nil {
		l.logger.Warn().Err(err).Msg("lattice persistence error, continuing in-memory")
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		l.logger.Warn().Err(err).Msg("lattice persistence error, continuing in-memory")
		return err
	}
	if err := tmp.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("lattice persistence error, continuing in-memory")
		return err
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		l.logger.Warn().Err(err).Msg("lattice persistence error, continuing in-memory")
		return err
	}
	return nil
}

// Save exposes the persistence flush for callers (e.g. a final session
// flush) that need a guaranteed write outside the normal mutation paths.
func (l *Lattice) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save()
}

// --- task lifecycle ------------------------------------------------

// CreateNewTask inserts an active Task, first closing any malformed or
// incomplete existing active task so at most one task is ever active.
func (l *Lattice) CreateNewTask(query string, plan []string, domain string) (model.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, t := range l.data.Nodes {
		if t.Status == model.TaskActive {
			l.data.Nodes[i].Status = model.TaskAbandoned
		}
	}

	task := model.Task{
		TaskID:         uuid.NewString(),
		Query:          query,
		TaskPlan:       plan,
		CompletedSteps: []model.TaskStep{},
		Status:         model.TaskActive,
		Domain:         domain,
	}
	l.data.Nodes = append(l.data.Nodes, task)
	if err := l.save(); err != nil {
		return task, err
	}
	return task, nil
}

func (l *Lattice) activeTaskIndex() int {
	for i, t := range l.data.Nodes {
		if t.Status == model.TaskActive {
			return i
		}
	}
	return -1
}

// GetActiveTask returns the current active task, if any.
func (l *Lattice) GetActiveTask() (model.Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.activeTaskIndex()
	if idx < 0 {
		return model.Task{}, false
	}
	return l.data.Nodes[idx], true
}

// ExecuteStep appends a completed_steps entry for the active task,
// promoting any still-in_progress prior step to completed first.
func (l *Lattice) ExecuteStep(stepNumber int, description, userInput string, result map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.activeTaskIndex()
	if idx < 0 {
		return ErrNoActiveTask
	}
	steps := l.data.Nodes[idx].CompletedSteps
	for i := range steps {
		if steps[i].Status == model.StepInProgress {
			steps[i].Status = model.StepCompleted
		}
	}
	steps = append(steps, model.TaskStep{
		StepNumber:  stepNumber,
		Description: description,
		UserInput:   userInput,
		Result:      result,
		Status:      model.StepInProgress,
	})
	l.data.Nodes[idx].CompletedSteps = steps
	return l.save()
}

// MarkStepCompleted promotes a specific step number to completed.
func (l *Lattice) MarkStepCompleted(stepNumber int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.activeTaskIndex()
	if idx < 0 {
		return ErrNoActiveTask
	}
	for i := range l.data.Nodes[idx].CompletedSteps {
		if l.data.Nodes[idx].CompletedSteps[i].StepNumber == stepNumber {
			l.data.Nodes[idx].CompletedSteps[i].Status = model.StepCompleted
		}
	}
	return l.save()
}

// CompleteCurrentTask sets the active task to completed and fires a
// task_completed event.
func (l *Lattice) CompleteCurrentTask() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.activeTaskIndex()
	if idx < 0 {
		return ErrNoActiveTask
	}
	l.data.Nodes[idx].Status = model.TaskCompleted
	ev := model.LatticeEvent{
		Type:      model.EventTaskCompleted,
		Timestamp: time.Now(),
		Payload:   map[string]any{"task_id": l.data.Nodes[idx].TaskID},
	}
	l.appendEventLocked(ev)
	if l.store != nil {
		if err := l.store.IndexEvent(context.Background(), l.data.SessionID, ev); err != nil {
			l.logger.Warn().Err(err).Msg("lattice store index error, continuing without cross-session index")
		}
	}
	return l.save()
}

// GetTaskProgress returns (completed, total) for a task.
func GetTaskProgress(t model.Task) (completed, total int) {
	return t.Progress()
}

// --- event log -------------------------------------------------------

func (l *Lattice) appendEventLocked(ev model.LatticeEvent) {
	l.data.EventLog = append(l.data.EventLog, ev)
}

// AddEvent appends an event; high-signal event types force an immediate
// persistence flush (see saveTriggerEvents).
func (l *Lattice) AddEvent(eventType model.LatticeEventType, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := model.LatticeEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	l.appendEventLocked(ev)
	if l.store != nil {
		if err := l.store.IndexEvent(context.Background(), l.data.SessionID, ev); err != nil {
			l.logger.Warn().Err(err).Msg("lattice store index error, continuing without cross-session index")
		}
	}
	if saveTriggerEvents[eventType] {
		return l.save()
	}
	return nil
}

// GetRecentEvents returns the tail of the event log, up to limit.
func (l *Lattice) GetRecentEvents(limit int) []model.LatticeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.data.EventLog)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.LatticeEvent, limit)
	copy(out, l.data.EventLog[n-limit:])
	return out
}
