package dom

import "github.com/cognitivelattice/web-agent/internal/model"

// CtxInput carries the memory-bridge fields ctx_from_page needs beyond
// the raw page itself.
type CtxInput struct {
	URL               string
	Title             string
	RawDOM            string
	Goal              string
	StepNumber        int
	TotalSteps        int
	OverallGoal       string
	PreviousSignature string
	RecentEvents      []model.RecentEvent
	LatticeState      model.LatticeRef
	Breadcrumbs       []string
}

// CtxFromPage composes compress/signature/skeleton/extract/score into a
// PageContext, assigning sequential candidate_id values 1..N to the top
// ≤ cfg.InteractiveMaxItems scored elements.
func CtxFromPage(in CtxInput, cfg *Config) model.PageContext {
	c := resolveConfig(cfg)

	compressed := Compress(in.RawDOM, in.Goal, cfg)
	sig := Signature(compressed)
	skel := Skeleton(compressed)

	// Elements are extracted from the full, uncompressed DOM so that an
	// interactive element past the compression size budget is still a
	// scoring candidate.
	elements := Extract(in.RawDOM, cfg)
	scored := Score(elements, in.Goal)

	if len(scored) > c.InteractiveMaxItems {
		scored = scored[:c.InteractiveMaxItems]
	}
	for i := range scored {
		scored[i].CandidateID = i + 1
		if len(scored[i].Text) > c.InteractiveIncludeTextMax {
			scored[i].Text = scored[i].Text[:c.InteractiveIncludeTextMax]
		}
	}

	return model.PageContext{
		URL:               in.URL,
		Title:             in.Title,
		Signature:         sig,
		Skeleton:          skel,
		RawDOM:            compressed,
		Interactive:       scored,
		StepNumber:        in.StepNumber,
		TotalSteps:        in.TotalSteps,
		OverallGoal:       in.OverallGoal,
		CurrentStepGoal:   in.Goal,
		RecentEvents:      in.RecentEvents,
		PreviousSignature: in.PreviousSignature,
		LatticeState:      in.LatticeState,
		Breadcrumbs:       in.Breadcrumbs,
	}
}

// ResolveCandidate looks up an Element by candidate_id within a
// PageContext, the only lookup the executor is allowed to perform when
// resolving a planner-chosen candidate back to selectors.
func ResolveCandidate(ctx model.PageContext, candidateID int) (model.Element, bool) {
	for _, el := range ctx.Interactive {
		if el.CandidateID == candidateID {
			return el, true
		}
	}
	return model.Element{}, false
}
