// Package prompt assembles the structured prompts the planner consumes.
// Every function here is a pure function of its inputs; the builder
// never contacts the LLM.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cognitivelattice/web-agent/internal/model"
)

const (
	skeletonBudget  = 12000
	maxCandidates   = 40
	maxRecentEvents = 5
	maxBreadcrumbs  = 5
)

var systemPreamble = strings.TrimSpace(`
You are the planning component of an autonomous web-navigation agent.
You observe one page at a time and propose a small batch of commands to
move a goal forward. You may reference page elements only by their
candidate_id; you must never invent a CSS selector or guess at one that
is not listed below. Reply with a single JSON object matching the
response schema exactly, with no prose outside the object.
`)

// BuildReasoningPrompt assembles, in a fixed order, the full planning
// prompt: system instructions, goal statement, affordance hints, recent
// state with cycle detection, lattice guidance, delta-verification
// guidance, page identity, skeleton, ranked candidates, breadcrumbs,
// hard constraints, and the response schema. It is deterministic: equal
// inputs produce an identical string.
func BuildReasoningPrompt(goal string, ctx model.PageContext, recentActions []model.RecentEvent, breadcrumbs []string) string {
	var b strings.Builder

	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "GOAL: %s\n\n", goal)

	if hints := buildAffordanceHints(goal); hints != "" {
		b.WriteString(hints)
		b.WriteString("\n\n")
	}

	if recent := buildRecentStateContext(ctx, recentActions); recent != "" {
		b.WriteString(recent)
		b.WriteString("\n\n")
	}

	if guidance := buildLatticeGuidance(ctx); guidance != "" {
		b.WriteString(guidance)
		b.WriteString("\n\n")
	}

	if delta := buildDeltaVerification(ctx); delta != "" {
		b.WriteString(delta)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "PAGE: url=%s title=%q signature=%s step=%d/%d\n\n",
		ctx.URL, ctx.Title, ctx.Signature, ctx.StepNumber, ctx.TotalSteps)

	skel := ctx.Skeleton
	if len(skel) > skeletonBudget {
		skel = skel[:skeletonBudget]
	}
	b.WriteString("SKELETON:\n")
	b.WriteString(skel)
	b.WriteString("\n\n")

	b.WriteString("CANDIDATES:\n")
	for _, c := range shapeCandidates(ctx) {
		fmt.Fprintf(&b, "%d <%s> text=%q selectors=%v\n", c.CandidateID, c.Tag, c.Text, c.Selectors)
	}
	b.WriteString("\n")

	if len(breadcrumbs) > 0 {
		tail := breadcrumbs
		if len(tail) > maxBreadcrumbs {
			tail = tail[len(tail)-maxBreadcrumbs:]
		}
		b.WriteString("RECENT BREADCRUMBS:\n")
		for _, bc := range tail {
			b.WriteString("- ")
			b.WriteString(bc)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(hardConstraints)
	b.WriteString("\n")
	b.WriteString(responseSchema)

	return b.String()
}

const hardConstraints = `CONSTRAINTS:
- Choose a candidate_id that exists in the CANDIDATES list above; never reference a selector directly.
- Prefer the top 10 candidates by list order; choosing outside the top 5 requires override_reason citing at least 2 signals.
- Do not repeat a candidate_id that failed in the last 3 events unless override_reason explains the retry.
- Avoid login or marketing interactions unless the goal requires them.
- Stop (return commands: []) if the goal is already achieved or is impossible from this page.`

const responseSchema = `RESPOND WITH JSON:
{"commands": [{"type": "navigate|click|type|press|wait_for|noop", "candidate_id": 0, "text": "", "url": "", "key": ""}], "confidence": 0.0, "rationale": "", "breadcrumb": "", "override_reason": ""}`

func shapeCandidates(ctx model.PageContext) []model.Element {
	if len(ctx.Interactive) > maxCandidates {
		return ctx.Interactive[:maxCandidates]
	}
	return ctx.Interactive
}

var (
	locationPatternRe = regexp.MustCompile(`(?i)\b(location|store|zip|postal|address)\b`)
	searchPatternRe   = regexp.MustCompile(`(?i)\bsearch\b`)
	navPatternRe      = regexp.MustCompile(`(?i)\b(navigate|go to|visit)\b`)
)

func buildAffordanceHints(goal string) string {
	switch {
	case locationPatternRe.MatchString(goal):
		return "HINT: this goal involves location selection; prefer inputs/containers carrying store or zip affordances."
	case searchPatternRe.MatchString(goal):
		return "HINT: this goal involves a search action; locate a search input and submit with Enter."
	case navPatternRe.MatchString(goal):
		return "HINT: this goal is navigational; a direct URL navigation may be the fastest path."
	default:
		return ""
	}
}

// buildRecentStateContext summarizes the last ≤5 lattice events with
// cycle detection: selectors/candidate_ids clicked more than once are
// explicitly warned against.
func buildRecentStateContext(ctx model.PageContext, recentActions []model.RecentEvent) string {
	events := recentActions
	if events == nil {
		events = ctx.RecentEvents
	}
	if len(events) == 0 {
		return ""
	}
	if len(events) > maxRecentEvents {
		events = events[len(events)-maxRecentEvents:]
	}

	counts := map[int]int{}
	var b strings.Builder
	b.WriteString("RECENT EVENTS:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- %s candidate_id=%d changed=%v %s\n", e.Type, e.CandidateID, e.Changed, e.Summary)
		if e.CandidateID != 0 {
			counts[e.CandidateID]++
		}
	}

	var repeated []int
	for id, n := range counts {
		if n > 1 {
			repeated = append(repeated, id)
		}
	}
	sort.Ints(repeated)
	if len(repeated) > 0 {
		fmt.Fprintf(&b, "CYCLE WARNING: candidate_id(s) %v were used more than once recently without effect; do not repeat without override_reason.\n", repeated)
	}
	return b.String()
}

// buildLatticeGuidance surfaces the planner's own prior plan and the
// current step's planned description.
func buildLatticeGuidance(ctx model.PageContext) string {
	if len(ctx.LatticeState.PlannedSteps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("PLAN CONTEXT:\n")
	idx := ctx.LatticeState.CurrentStepIndex
	for i, step := range ctx.LatticeState.PlannedSteps {
		marker := "  "
		if i == idx {
			marker = "->"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", marker, i+1, step)
	}
	if len(ctx.LatticeState.SuccessfulPatterns) > 0 {
		fmt.Fprintf(&b, "Patterns that have worked so far: %s\n", strings.Join(ctx.LatticeState.SuccessfulPatterns, "; "))
	}
	return b.String()
}

// buildDeltaVerification explains how to interpret signature changes.
func buildDeltaVerification(ctx model.PageContext) string {
	if ctx.PreviousSignature == "" {
		return ""
	}
	if ctx.PreviousSignature == ctx.Signature {
		return "DELTA: the page signature has not changed since the last observation; the prior action may not have taken effect."
	}
	return "DELTA: the page signature changed since the last observation; the prior action likely had an effect."
}
