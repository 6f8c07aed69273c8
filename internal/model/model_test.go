package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementPrimarySelector(t *testing.T) {
	var empty Element
	if got := empty.PrimarySelector(); got != "" {
		t.Fatalf("expected empty selector, got %q", got)
	}

	el := Element{Selectors: []string{"#go", ".fallback"}}
	if got := el.PrimarySelector(); got != "#go" {
		t.Fatalf("expected #go, got %q", got)
	}
}

func TestNewEvidenceInitializesCollections(t *testing.T) {
	ev := NewEvidence()
	require.NotNil(t, ev.Errors)
	require.NotNil(t, ev.Findings)

	ev.Errors = append(ev.Errors, "boom")
	ev.Findings["complete"] = true

	assert.Equal(t, Evidence{
		Errors:   []string{"boom"},
		Findings: map[string]any{"complete": true},
	}, ev)
}

// TestPageContextEqualityAcrossRebuilds pins the multi-field equality a
// lattice replay depends on: two PageContext values built from the same
// inputs must compare equal field-for-field, including their nested
// Element/RecentEvent/LatticeRef slices.
func TestPageContextEqualityAcrossRebuilds(t *testing.T) {
	build := func() PageContext {
		return PageContext{
			URL:       "https://example.com/menu",
			Title:     "Menu",
			Signature: "abc123",
			Skeleton:  "<button id=\"go\">Go</button>",
			Interactive: []Element{
				{CandidateID: 1, Tag: "button", Text: "Go", Selectors: []string{"#go"}},
			},
			StepNumber:      1,
			TotalSteps:      3,
			OverallGoal:     "find a store",
			CurrentStepGoal: "click go",
			RecentEvents: []RecentEvent{
				{Type: "click", CandidateID: 1, Changed: true, Summary: "clicked go"},
			},
			PreviousSignature: "xyz789",
			LatticeState:      LatticeRef{PlannedSteps: []string{"open menu"}},
			Breadcrumbs:       []string{"opened menu"},
		}
	}

	a, b := build(), build()
	assert.Equal(t, a, b)

	b.Interactive[0].CandidateID = 2
	assert.NotEqual(t, a, b)
}

func TestLogicalSuccessString(t *testing.T) {
	cases := map[LogicalSuccess]string{
		LogicalUnknown: "unknown",
		LogicalTrue:    "true",
		LogicalFalse:   "false",
	}
	for in, want := range cases {
		if got := in.String(); got != want {
			t.Errorf("LogicalSuccess(%d).String() = %q, want %q", in, got, want)
		}
	}
}

func TestTaskProgress(t *testing.T) {
	task := Task{
		TaskPlan:       []string{"a", "b", "c"},
		CompletedSteps: []TaskStep{{StepNumber: 1}},
	}
	completed, total := task.Progress()
	if completed != 1 || total != 3 {
		t.Fatalf("Progress() = (%d, %d), want (1, 3)", completed, total)
	}
}
