package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/model"
	"github.com/cognitivelattice/web-agent/internal/prompt"
)

// SubAgent specializes a step's reasoning for a domain it knows well:
// it recognizes goals it has extra knowledge about, proposes a
// CommandBatch for them, and can attach a VerificationRule so the
// coordinator's logical-success arbitration stays domain-agnostic.
type SubAgent interface {
	CanHandle(goal string) bool
	VerificationRuleFor(goal string) *VerificationRule
	Next(ctx context.Context, goal string, pctx model.PageContext, recentActions []model.RecentEvent) (model.CommandBatch, error)
	Name() string
}

// LocationAgent specializes in store/location selection goals: "find a
// store near <zip>", "select the <city> location", "choose pickup at
// <address>".
type LocationAgent struct {
	llm llm.Client
}

func NewLocationAgent(client llm.Client) SubAgent {
	return &LocationAgent{llm: client}
}

func (a *LocationAgent) Name() string { return "LocationAgent" }

var locationKeywordRe = regexp.MustCompile(`(?i)\b(store|location|zip|postal|address|pickup|nearest|branch)\b`)

func (a *LocationAgent) CanHandle(goal string) bool {
	return locationKeywordRe.MatchString(goal)
}

// zipRe picks a 5-digit US zip out of a goal string for the
// verification rule's URL pattern; goals without one fall back to a
// generic location-query pattern.
var zipRe = regexp.MustCompile(`\b\d{5}\b`)

// VerificationRuleFor builds the domain-specific success signal: the
// resulting URL carrying the target zip (or a generic location/store
// query parameter), settled by location_verified when the step executor
// or an observation step fills in that finding directly.
func (a *LocationAgent) VerificationRuleFor(goal string) *VerificationRule {
	pattern := `(?i)(location|store|zip|postal)`
	if zip := zipRe.FindString(goal); zip != "" {
		pattern = regexp.QuoteMeta(zip)
	}
	return &VerificationRule{
		URLPattern:             pattern,
		FindingKey:             "location_verified",
		RequireSignatureChange: true,
	}
}

const locationHint = `HINT: this is a store/location selection goal. Prefer a
candidate whose text or attributes carry an address, zip/postal code, or a
"use this location"/"select store" affordance over generic navigation
links. If a zip or postal input is present and a target postal code
appears in the goal, type it into that field.`

// Next builds a reasoning prompt augmented with location-specific
// guidance and parses the reply the same tolerant way the general
// executor does, returning a bare CommandBatch for the coordinator to
// run through Executor.FinishStep.
func (a *LocationAgent) Next(ctx context.Context, goal string, pctx model.PageContext, recentActions []model.RecentEvent) (model.CommandBatch, error) {
	base := prompt.BuildReasoningPrompt(goal, pctx, recentActions, nil)
	reqPrompt := strings.Replace(base, "GOAL: "+goal, "GOAL: "+goal+"\n\n"+locationHint, 1)

	resp, err := a.llm.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: reqPrompt}},
		Temperature: 0.2,
		MaxTokens:   900,
	})
	if err != nil {
		return noopBatch("LocationAgent: llm transport error: " + err.Error()), nil
	}

	return parseCommandBatch(resp.Text, pctx, recentActions), nil
}

// parseCommandBatch is the package-level, Executor-independent form of
// the tolerant-parse-and-coerce logic so both the default executor path
// and a SubAgent can share it without one depending on the other's
// state (logger aside, which SubAgents don't carry).
func parseCommandBatch(raw string, pctx model.PageContext, recentActions []model.RecentEvent) model.CommandBatch {
	e := &Executor{logger: zerolog.Nop()}
	return e.parseAndCoerce(raw, nil, pctx, recentActions)
}
