package agent

import (
	"context"
	"testing"

	"github.com/cognitivelattice/web-agent/internal/model"
)

type stubSubAgent struct {
	handle bool
	rule   *VerificationRule
}

func (s *stubSubAgent) Name() string                                      { return "stub" }
func (s *stubSubAgent) CanHandle(goal string) bool                        { return s.handle }
func (s *stubSubAgent) VerificationRuleFor(goal string) *VerificationRule { return s.rule }
func (s *stubSubAgent) Next(ctx context.Context, goal string, pctx model.PageContext, recent []model.RecentEvent) (model.CommandBatch, error) {
	return model.CommandBatch{}, nil
}

func TestClassifyStepKind(t *testing.T) {
	cases := map[string]StepKind{
		"click the search button":        StepAction,
		"type the zip code":              StepAction,
		"verify the order was placed":    StepObservation,
		"check that the cart is updated": StepObservation,
		"look for a confirmation banner": StepObservation,
		"report the final price":         StepObservation,
	}
	for desc, want := range cases {
		if got := classifyStepKind(desc); got != want {
			t.Errorf("classifyStepKind(%q) = %v, want %v", desc, got, want)
		}
	}
}

func TestStepKindString(t *testing.T) {
	if StepAction.String() != "action" {
		t.Errorf("StepAction.String() = %q, want action", StepAction.String())
	}
	if StepObservation.String() != "observation" {
		t.Errorf("StepObservation.String() = %q, want observation", StepObservation.String())
	}
}

func TestVerificationRuleCompiledURLPattern(t *testing.T) {
	var nilRule *VerificationRule
	if nilRule.compiledURLPattern() != nil {
		t.Fatal("expected nil rule to produce a nil pattern")
	}

	rule := &VerificationRule{URLPattern: "45305"}
	re := rule.compiledURLPattern()
	if re == nil || !re.MatchString("https://example.com?zip=45305") {
		t.Fatal("expected compiled pattern to match the zip substring")
	}

	bad := &VerificationRule{URLPattern: "(unterminated"}
	if bad.compiledURLPattern() != nil {
		t.Fatal("expected a malformed pattern to yield no compiled regex")
	}
}

func TestBuildPlannedStepsAttachesSubAgentRule(t *testing.T) {
	rule := &VerificationRule{FindingKey: "location_verified"}
	agents := []SubAgent{&stubSubAgent{handle: true, rule: rule}}

	steps := buildPlannedSteps([]string{"select the nearest store"}, agents)
	if len(steps) != 1 {
		t.Fatalf("expected 1 planned step, got %d", len(steps))
	}
	if steps[0].Verify != rule {
		t.Fatalf("expected the sub-agent's rule to be attached, got %+v", steps[0].Verify)
	}
}

func TestBuildPlannedStepsLeavesRuleNilWhenNoAgentHandles(t *testing.T) {
	agents := []SubAgent{&stubSubAgent{handle: false}}
	steps := buildPlannedSteps([]string{"click the continue button"}, agents)
	if steps[0].Verify != nil {
		t.Fatalf("expected no verification rule attached, got %+v", steps[0].Verify)
	}
	if steps[0].Kind != StepAction {
		t.Fatalf("expected StepAction, got %v", steps[0].Kind)
	}
}
