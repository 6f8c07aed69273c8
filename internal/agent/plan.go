package agent

import (
	"regexp"
	"strings"
)

// StepKind distinguishes an action step (click, type, select) from an
// observation step (verify, confirm, look for, report). It is decided
// once at plan-parse time rather than re-derived at dispatch time on
// every iteration.
type StepKind int

const (
	StepAction StepKind = iota
	StepObservation
)

func (k StepKind) String() string {
	if k == StepObservation {
		return "observation"
	}
	return "action"
}

var observationKeywordRe = regexp.MustCompile(`(?i)\b(look for|verify|confirm|report|check|extract|display|observe)\b`)

// classifyStepKind tells an action step from an observation step by
// keyword.
func classifyStepKind(description string) StepKind {
	if observationKeywordRe.MatchString(description) {
		return StepObservation
	}
	return StepAction
}

// VerificationRule carries the domain-specific signal a step needs for
// logical-success arbitration, threaded through the step definition
// itself so the coordinator stays domain-agnostic: a SubAgent such as
// LocationAgent attaches a rule to the steps it recognizes, and generic
// steps simply carry a nil rule.
type VerificationRule struct {
	// URLPattern, if non-empty, is a regexp the post-step URL must match
	// for the step to count as logically successful via the URL signal.
	URLPattern string
	// FindingKey, if non-empty, names an Evidence.Findings boolean key
	// (e.g. "location_verified") that directly settles success when present.
	FindingKey string
	// RequireSignatureChange gates the URL-pattern signal on the DOM
	// having actually changed, avoiding a false positive from a stale
	// page that merely already matched the pattern.
	RequireSignatureChange bool
}

// compiledURLPattern compiles URLPattern on each call (nothing is
// cached); a malformed pattern is treated as "no pattern"
// rather than a fatal error, since VerificationRule is advisory.
func (r *VerificationRule) compiledURLPattern() *regexp.Regexp {
	if r == nil || strings.TrimSpace(r.URLPattern) == "" {
		return nil
	}
	re, err := regexp.Compile(r.URLPattern)
	if err != nil {
		return nil
	}
	return re
}

// PlannedStep is one entry of a Coordinator plan: a natural-language
// goal, its decided Kind, and an optional VerificationRule a SubAgent
// contributed when it recognized the goal.
type PlannedStep struct {
	Description string
	Kind        StepKind
	Verify      *VerificationRule
}

// buildPlannedSteps classifies each raw plan line and, when a SubAgent
// can handle it, attaches the rule it contributes.
func buildPlannedSteps(lines []string, agents []SubAgent) []PlannedStep {
	out := make([]PlannedStep, 0, len(lines))
	for _, line := range lines {
		step := PlannedStep{
			Description: strings.TrimSpace(line),
			Kind:        classifyStepKind(line),
		}
		for _, sa := range agents {
			if sa.CanHandle(line) {
				step.Verify = sa.VerificationRuleFor(line)
				break
			}
		}
		out = append(out, step)
	}
	return out
}
