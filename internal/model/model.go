// Package model defines the shared data types that flow between the
// DOM processor, prompt builder, step executor, browser controller, and
// cognitive lattice. Types here carry no behavior beyond small helpers;
// components mutate them by producing new values, not by reaching into
// each other's state.
package model

import "time"

// Element is one interactive candidate found on a page.
type Element struct {
	Tag       string            `json:"tag"`
	Text      string            `json:"text"`
	Attrs     map[string]string `json:"attrs"`
	Selectors []string          `json:"selectors"`
	Score     float64           `json:"score"`
	// CandidateID is assigned immediately before prompt emission and is
	// the only handle the planner may use to reference this element.
	CandidateID int `json:"candidate_id"`
}

// TextMaxLen bounds Element.Text per the data model invariant.
const TextMaxLen = 120

// PrimarySelector returns the most-unique selector, or "" if none exist.
func (e Element) PrimarySelector() string {
	if len(e.Selectors) == 0 {
		return ""
	}
	return e.Selectors[0]
}

// LatticeRef is the memory-bridge subset of a PageContext: the prior
// lattice state a step can consult without importing the lattice package
// directly (avoids an import cycle between dom/prompt and lattice).
type LatticeRef struct {
	PlannedSteps       []string `json:"planned_steps"`
	CurrentStepIndex   int      `json:"current_step_index"`
	SuccessfulPatterns []string `json:"successful_patterns"`
}

// PageContext is one observation of browser state.
type PageContext struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Signature string `json:"signature"`
	Skeleton  string `json:"skeleton"`
	RawDOM    string `json:"raw_dom"`

	Interactive []Element `json:"interactive"`

	StepNumber      int    `json:"step_number"`
	TotalSteps      int    `json:"total_steps"`
	OverallGoal     string `json:"overall_goal"`
	CurrentStepGoal string `json:"current_step_goal"`

	RecentEvents      []RecentEvent `json:"recent_events"`
	PreviousSignature string        `json:"previous_signature"`
	LatticeState      LatticeRef    `json:"lattice_state"`
	Breadcrumbs       []string      `json:"breadcrumbs"`
}

// RecentEvent is the minimal slice of a LatticeEvent a PageContext needs
// for cycle-detection and recent-state prompting, without depending on
// the lattice package's full event type.
type RecentEvent struct {
	Type        string `json:"type"`
	CandidateID int    `json:"candidate_id,omitempty"`
	Selector    string `json:"selector,omitempty"`
	Changed     bool   `json:"changed"`
	Summary     string `json:"summary"`
}

// CommandType enumerates the atomic browser verbs a Command may carry.
type CommandType string

const (
	CommandNavigate CommandType = "navigate"
	CommandClick    CommandType = "click"
	CommandTypeText CommandType = "type"
	CommandPress    CommandType = "press"
	CommandWaitFor  CommandType = "wait_for"
	CommandNoop     CommandType = "noop"
)

// Command is one atomic browser verb. It references elements only by
// CandidateID, never by raw selector, per the hallucination-proof
// discipline: the executor resolves the id back to the Element via the
// PageContext that produced it.
type Command struct {
	Type            CommandType `json:"type"`
	CandidateID     int         `json:"candidate_id,omitempty"`
	Text            string      `json:"text,omitempty"`
	URL             string      `json:"url,omitempty"`
	Key             string      `json:"key,omitempty"`
	PressEnter      bool        `json:"press_enter,omitempty"`
	SignatureChange bool        `json:"signature_change,omitempty"`
	TimeoutMS       int         `json:"timeout_ms,omitempty"`
}

// CommandBatch is 1-3 Commands plus planner metadata.
type CommandBatch struct {
	Commands       []Command `json:"commands"`
	Confidence     float64   `json:"confidence"`
	Rationale      string    `json:"rationale"`
	Breadcrumb     string    `json:"breadcrumb"`
	OverrideReason string    `json:"override_reason,omitempty"`
}

// Evidence is the outcome of executing a CommandBatch.
type Evidence struct {
	Success         bool           `json:"success"`
	DOMBeforeSig    string         `json:"dom_before_sig"`
	DOMAfterSig     string         `json:"dom_after_sig"`
	Changed         bool           `json:"changed"`
	UsedCandidateID int            `json:"used_candidate_id"`
	Errors          []string       `json:"errors"`
	TimingMS        int64          `json:"timing_ms"`
	Findings        map[string]any `json:"findings"`
}

// NewEvidence returns a zero-value Evidence with initialized slices/maps
// so callers never need a nil check before appending.
func NewEvidence() Evidence {
	return Evidence{
		Errors:   []string{},
		Findings: map[string]any{},
	}
}

// LogicalSuccess is the coordinator's arbitration result, independent of
// Evidence.Success.
type LogicalSuccess int

const (
	LogicalUnknown LogicalSuccess = iota
	LogicalTrue
	LogicalFalse
)

func (l LogicalSuccess) String() string {
	switch l {
	case LogicalTrue:
		return "true"
	case LogicalFalse:
		return "false"
	default:
		return "unknown"
	}
}

// StepOutcome packages everything one step produced.
type StepOutcome struct {
	Batch          CommandBatch   `json:"batch"`
	Evidence       Evidence       `json:"evidence"`
	Confidence     float64        `json:"confidence"`
	Rationale      string         `json:"rationale"`
	Breadcrumb     string         `json:"breadcrumb"`
	LogicalSuccess LogicalSuccess `json:"logical_success"`
}

// LatticeEventType enumerates the append-only event kinds.
type LatticeEventType string

const (
	EventUserRequest      LatticeEventType = "user_request"
	EventPlanGenerated    LatticeEventType = "plan_generated"
	EventWebStepCompleted LatticeEventType = "web_step_completed"
	EventWebDecision      LatticeEventType = "web_decision"
	EventTaskCompleted    LatticeEventType = "task_completed"
	EventError            LatticeEventType = "error"
)

// LatticeEvent is an immutable append record.
type LatticeEvent struct {
	Type      LatticeEventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   map[string]any   `json:"payload"`
}

// TaskStepStatus enumerates a completed_steps entry's status.
type TaskStepStatus string

const (
	StepInProgress TaskStepStatus = "in_progress"
	StepCompleted  TaskStepStatus = "completed"
)

// TaskStep is one entry in Task.CompletedSteps.
type TaskStep struct {
	StepNumber  int            `json:"step_number"`
	Description string         `json:"description"`
	UserInput   string         `json:"user_input"`
	Result      map[string]any `json:"result"`
	Status      TaskStepStatus `json:"status"`
}

// TaskStatus enumerates a Task's lifecycle state.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskAbandoned TaskStatus = "abandoned"
)

// Task tracks one goal's decomposition and progress.
type Task struct {
	TaskID         string     `json:"task_id"`
	Query          string     `json:"query"`
	TaskPlan       []string   `json:"task_plan"`
	CompletedSteps []TaskStep `json:"completed_steps"`
	Status         TaskStatus `json:"status"`
	Domain         string     `json:"domain"`
}

// Progress returns (len(CompletedSteps), len(TaskPlan)).
func (t Task) Progress() (int, int) {
	return len(t.CompletedSteps), len(t.TaskPlan)
}

// Lattice is the session-scoped episodic memory.
type Lattice struct {
	SessionID    string           `json:"session_id"`
	CreatedAt    time.Time        `json:"created_at"`
	Nodes        []Task           `json:"nodes"`
	EventLog     []LatticeEvent   `json:"event_log"`
	MemoryChunks []map[string]any `json:"memory_chunks"`
	LastUpdated  time.Time        `json:"last_updated"`
}
