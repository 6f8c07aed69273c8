package prompt

import (
	"strings"
	"testing"

	"github.com/cognitivelattice/web-agent/internal/model"
)

func baseCtx() model.PageContext {
	return model.PageContext{
		URL:       "https://example.com/menu",
		Title:     "Menu",
		Signature: "abc123",
		Skeleton:  "<button id=\"go\">Go</button>",
		Interactive: []model.Element{
			{CandidateID: 1, Tag: "button", Text: "Go", Selectors: []string{"#go"}},
		},
		StepNumber: 1,
		TotalSteps: 3,
	}
}

func TestBuildReasoningPromptIsDeterministic(t *testing.T) {
	ctx := baseCtx()
	p1 := BuildReasoningPrompt("find a store", ctx, nil, nil)
	p2 := BuildReasoningPrompt("find a store", ctx, nil, nil)
	if p1 != p2 {
		t.Fatal("expected BuildReasoningPrompt to be a pure function of its inputs")
	}
}

func TestBuildReasoningPromptIncludesCoreSections(t *testing.T) {
	ctx := baseCtx()
	out := BuildReasoningPrompt("find a store near 45305", ctx, nil, []string{"clicked search"})
	for _, want := range []string{"GOAL: find a store near 45305", "SKELETON:", "CANDIDATES:", "RECENT BREADCRUMBS:", "RESPOND WITH JSON"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
	if !strings.Contains(out, "1 <button>") {
		t.Errorf("expected candidate line for id 1, got: %s", out)
	}
}

func TestBuildReasoningPromptAddsCycleWarning(t *testing.T) {
	ctx := baseCtx()
	recent := []model.RecentEvent{
		{Type: "click", CandidateID: 1, Changed: false},
		{Type: "click", CandidateID: 1, Changed: false},
	}
	out := BuildReasoningPrompt("find a store", ctx, recent, nil)
	if !strings.Contains(out, "CYCLE WARNING") {
		t.Fatalf("expected a cycle warning for a repeated candidate_id, got: %s", out)
	}
}

func TestBuildReasoningPromptCycleWarningIsDeterministicWithMultipleRepeats(t *testing.T) {
	ctx := baseCtx()
	recent := []model.RecentEvent{
		{Type: "click", CandidateID: 7, Changed: false},
		{Type: "click", CandidateID: 3, Changed: false},
		{Type: "click", CandidateID: 7, Changed: false},
		{Type: "click", CandidateID: 3, Changed: false},
		{Type: "click", CandidateID: 9, Changed: false},
		{Type: "click", CandidateID: 9, Changed: false},
	}
	var prompts []string
	for i := 0; i < 20; i++ {
		prompts = append(prompts, BuildReasoningPrompt("find a store", ctx, recent, nil))
	}
	// Only the last maxRecentEvents (5) events are counted: the first
	// click on 7 falls outside that window, leaving 3 and 9 as repeats.
	want := "CYCLE WARNING: candidate_id(s) [3 9] were used more than once"
	for i, p := range prompts {
		if !strings.Contains(p, want) {
			t.Fatalf("run %d: expected sorted cycle warning %q, got: %s", i, want, p)
		}
		if p != prompts[0] {
			t.Fatalf("run %d: expected identical prompts across repeated calls with the same inputs, got a divergent prompt", i)
		}
	}
}

func TestBuildReasoningPromptDeltaVerification(t *testing.T) {
	ctx := baseCtx()
	ctx.PreviousSignature = ctx.Signature
	out := BuildReasoningPrompt("goal", ctx, nil, nil)
	if !strings.Contains(out, "has not changed") {
		t.Fatalf("expected unchanged-signature delta note, got: %s", out)
	}

	ctx.PreviousSignature = "different"
	out2 := BuildReasoningPrompt("goal", ctx, nil, nil)
	if !strings.Contains(out2, "changed since the last observation") {
		t.Fatalf("expected changed-signature delta note, got: %s", out2)
	}
}

func TestBuildReasoningPromptAffordanceHints(t *testing.T) {
	ctx := baseCtx()
	out := BuildReasoningPrompt("find the nearest store location", ctx, nil, nil)
	if !strings.Contains(out, "location selection") {
		t.Fatalf("expected location hint, got: %s", out)
	}
}

func TestShapeCandidatesCapsAtMax(t *testing.T) {
	var els []model.Element
	for i := 0; i < maxCandidates+10; i++ {
		els = append(els, model.Element{CandidateID: i + 1})
	}
	ctx := model.PageContext{Interactive: els}
	shaped := shapeCandidates(ctx)
	if len(shaped) != maxCandidates {
		t.Fatalf("expected shapeCandidates to cap at %d, got %d", maxCandidates, len(shaped))
	}
}
