package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/lattice"
	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/model"
	"github.com/cognitivelattice/web-agent/internal/safety"
)

func TestLogicalSuccessExplicitCompleteFlag(t *testing.T) {
	c := &Coordinator{}
	outcome := model.StepOutcome{Evidence: model.Evidence{Findings: map[string]any{"complete": true}}}
	if got := c.logicalSuccess(outcome, PlannedStep{}, "https://example.com"); got != model.LogicalTrue {
		t.Fatalf("expected LogicalTrue, got %v", got)
	}

	outcome.Evidence.Findings["complete"] = false
	if got := c.logicalSuccess(outcome, PlannedStep{}, "https://example.com"); got != model.LogicalFalse {
		t.Fatalf("expected LogicalFalse, got %v", got)
	}
}

func TestLogicalSuccessVerificationRuleFindingKey(t *testing.T) {
	c := &Coordinator{}
	step := PlannedStep{Verify: &VerificationRule{FindingKey: "location_verified"}}
	outcome := model.StepOutcome{Evidence: model.Evidence{Findings: map[string]any{"location_verified": true}}}
	if got := c.logicalSuccess(outcome, step, "https://example.com/store/123"); got != model.LogicalTrue {
		t.Fatalf("expected LogicalTrue from finding key, got %v", got)
	}
}

func TestLogicalSuccessVerificationRuleURLPattern(t *testing.T) {
	c := &Coordinator{}
	step := PlannedStep{Verify: &VerificationRule{URLPattern: `zip=45305`, RequireSignatureChange: true}}
	outcome := model.StepOutcome{Evidence: model.Evidence{Changed: true, Findings: map[string]any{}}}
	if got := c.logicalSuccess(outcome, step, "https://example.com/stores?zip=45305"); got != model.LogicalTrue {
		t.Fatalf("expected LogicalTrue from URL pattern match, got %v", got)
	}

	outcome.Evidence.Changed = false
	if got := c.logicalSuccess(outcome, step, "https://example.com/stores?zip=45305"); got == model.LogicalTrue {
		t.Fatal("expected URL pattern signal to be gated on RequireSignatureChange")
	}
}

func TestLogicalSuccessKnownFalseNegativeError(t *testing.T) {
	c := &Coordinator{}
	outcome := model.StepOutcome{Evidence: model.Evidence{
		Changed:  true,
		Errors:   []string{"click: element outside viewport, retrying"},
		Findings: map[string]any{},
	}}
	if got := c.logicalSuccess(outcome, PlannedStep{}, "https://example.com"); got != model.LogicalTrue {
		t.Fatalf("expected a changed DOM plus a known false-negative error to count as success, got %v", got)
	}
}

func TestLogicalSuccessUnknownByDefault(t *testing.T) {
	c := &Coordinator{}
	outcome := model.StepOutcome{Evidence: model.Evidence{Findings: map[string]any{}}}
	if got := c.logicalSuccess(outcome, PlannedStep{}, "https://example.com"); got != model.LogicalUnknown {
		t.Fatalf("expected LogicalUnknown with no signal, got %v", got)
	}
}

// scriptedLLM replays canned replies, then repeats the last one.
type scriptedLLM struct {
	replies []string
	i       int
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.i < len(s.replies) {
		r := s.replies[s.i]
		s.i++
		return llm.Response{Text: r}, nil
	}
	return llm.Response{Text: s.replies[len(s.replies)-1]}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

// failingDOMController observes nothing: every GetCurrentDOM call fails
// the way a detached frame or mid-navigation read does.
type failingDOMController struct{ stubController }

func (f *failingDOMController) GetCurrentDOM(ctx context.Context) (string, string, string, error) {
	return "", "", "", errors.New("frame detached")
}

func TestExecuteWebTaskClosesWithFullStepAccounting(t *testing.T) {
	lat, err := lattice.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("lattice.New: %v", err)
	}
	client := &scriptedLLM{replies: []string{`{"steps":["open the results page","click the first result"]}`}}
	ctrl := &failingDOMController{}
	exec := NewExecutor(client, ctrl, safety.Config{}, safety.ModeAutonomous, nil, zerolog.Nop())
	coord := NewCoordinator(client, ctrl, lat, exec, nil, nil, zerolog.Nop(), "", "")

	ok, err := coord.ExecuteWebTask(context.Background(), "https://example.com", "find the thing", 0)
	if err != nil {
		t.Fatalf("ExecuteWebTask: %v", err)
	}
	if ok {
		t.Fatal("expected the run to miss the success threshold when no step could observe the page")
	}

	snap := lat.Snapshot()
	if len(snap.Nodes) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(snap.Nodes))
	}
	task := snap.Nodes[0]
	if task.Status != model.TaskCompleted {
		t.Fatalf("expected the task closed as completed, got %v", task.Status)
	}
	if len(task.CompletedSteps) != len(task.TaskPlan) {
		t.Fatalf("expected one completed_steps entry per plan entry at closure, got %d steps for a %d-step plan",
			len(task.CompletedSteps), len(task.TaskPlan))
	}
	for _, s := range task.CompletedSteps {
		if s.Status != model.StepCompleted {
			t.Fatalf("expected every recorded step completed at closure, got %+v", s)
		}
		if s.Result["error"] == nil {
			t.Fatalf("expected the DOM-fetch error recorded as the step's result, got %+v", s.Result)
		}
	}
}

func TestExecuteWebTaskCapsPlanAtMaxIterations(t *testing.T) {
	lat, err := lattice.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("lattice.New: %v", err)
	}
	client := &scriptedLLM{replies: []string{`{"steps":["first step","second step","third step"]}`}}
	ctrl := &failingDOMController{}
	exec := NewExecutor(client, ctrl, safety.Config{}, safety.ModeAutonomous, nil, zerolog.Nop())
	coord := NewCoordinator(client, ctrl, lat, exec, nil, nil, zerolog.Nop(), "", "")

	if _, err := coord.ExecuteWebTask(context.Background(), "https://example.com", "find the thing", 1); err != nil {
		t.Fatalf("ExecuteWebTask: %v", err)
	}

	task := lat.Snapshot().Nodes[0]
	if len(task.TaskPlan) != 1 {
		t.Fatalf("expected the recorded plan capped to 1 step, got %v", task.TaskPlan)
	}
	if len(task.CompletedSteps) != 1 {
		t.Fatalf("expected 1 completed step for the capped plan, got %d", len(task.CompletedSteps))
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://example.com/path?a=1"); got != "example.com" {
		t.Errorf("hostOf = %q, want example.com", got)
	}
	if got := hostOf("http://foo.com/%zz"); got != "" {
		t.Errorf("hostOf should return empty string for an unparseable URL (bad escape), got %q", got)
	}
}
