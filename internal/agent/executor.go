package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/browser"
	"github.com/cognitivelattice/web-agent/internal/diff"
	"github.com/cognitivelattice/web-agent/internal/dom"
	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/model"
	"github.com/cognitivelattice/web-agent/internal/prompt"
	"github.com/cognitivelattice/web-agent/internal/safety"
)

const maxCommandsPerBatch = 3

// recentFailureWindow bounds how many trailing recent events are
// consulted when checking whether a candidate_id already failed to
// change the DOM.
const recentFailureWindow = 3

// topCandidateWindow is how deep into the score-ordered candidate list
// the planner may reach without justifying the choice; a click/type on
// a lower-ranked candidate needs a non-empty override_reason.
const topCandidateWindow = 5

// ConfirmFunc asks an operator (or an autonomous policy) to approve a
// batch the safety classifier flagged as confirm-worthy. A nil
// ConfirmFunc means no approval is ever granted.
type ConfirmFunc func(ctx context.Context, batch model.CommandBatch, result safety.Result) bool

// Executor runs one planning-and-execution cycle per step, turning an
// LLM reply into a safety-checked, executed StepOutcome.
type Executor struct {
	llm       llm.Client
	ctrl      browser.Controller
	safetyCfg safety.Config
	mode      safety.Mode
	confirm   ConfirmFunc
	logger    zerolog.Logger

	// lastPrompt/lastResponse record the most recent reasoning exchange
	// for optional debug-artifact dumping; safe because the session
	// keeps at most one LLM call in flight.
	lastPrompt   string
	lastResponse string
}

// LastExchange returns the most recent prompt/response pair built by
// ReasonAndAct or Observe, for a coordinator's debug artifact writer.
func (e *Executor) LastExchange() (prompt, response string) {
	return e.lastPrompt, e.lastResponse
}

func NewExecutor(client llm.Client, ctrl browser.Controller, safetyCfg safety.Config, mode safety.Mode, confirm ConfirmFunc, logger zerolog.Logger) *Executor {
	return &Executor{llm: client, ctrl: ctrl, safetyCfg: safetyCfg, mode: mode, confirm: confirm, logger: logger}
}

// ReasonAndAct builds the reasoning prompt, calls the LLM, coerces the
// reply into a CommandBatch, and hands it to FinishStep.
func (e *Executor) ReasonAndAct(ctx context.Context, goal string, pctx model.PageContext, recentActions []model.RecentEvent, breadcrumbs []string) (model.StepOutcome, error) {
	reqPrompt := prompt.BuildReasoningPrompt(goal, pctx, recentActions, breadcrumbs)

	raw, genErr := e.generateWithOneRetry(ctx, reqPrompt)
	e.lastPrompt, e.lastResponse = reqPrompt, raw
	batch := e.parseAndCoerce(raw, genErr, pctx, recentActions)

	return e.FinishStep(ctx, batch, pctx)
}

// FinishStep runs the back half of a step (auto-enter, cap, safety
// check, execute, package) against an already-built CommandBatch. It is
// exposed so a SubAgent can supply the batch itself (a specialized
// prompt and parse) while still going through the same safety-checked
// execution pipeline every other step uses.
func (e *Executor) FinishStep(ctx context.Context, batch model.CommandBatch, pctx model.PageContext) (model.StepOutcome, error) {
	applyAutoEnter(&batch, pctx)

	if len(batch.Commands) > maxCommandsPerBatch {
		batch.Commands = batch.Commands[:maxCommandsPerBatch]
	}

	verdict := safety.Classify(batch, pctx, e.mode, batch.Confidence, e.safetyCfg)
	if verdict.Verdict != safety.Auto {
		approved := verdict.Verdict == safety.Confirm && e.confirm != nil && e.confirm(ctx, batch, verdict)
		if !approved {
			ev := model.NewEvidence()
			ev.Findings["pause_reasons"] = verdict.Reasons
			return model.StepOutcome{
				Batch:          batch,
				Evidence:       ev,
				Confidence:     batch.Confidence,
				Rationale:      batch.Rationale,
				Breadcrumb:     batch.Breadcrumb,
				LogicalSuccess: model.LogicalUnknown,
			}, nil
		}
	}

	ev, err := e.ctrl.ExecuteActionBatch(ctx, batch, pctx)
	if err != nil {
		return model.StepOutcome{}, fmt.Errorf("reason_and_act: execute batch: %w", err)
	}

	return model.StepOutcome{
		Batch:          batch,
		Evidence:       ev,
		Confidence:     batch.Confidence,
		Rationale:      batch.Rationale,
		Breadcrumb:     batch.Breadcrumb,
		LogicalSuccess: model.LogicalUnknown,
	}, nil
}

// Observe issues the observation-step prompt and reports the
// verification result as a StepOutcome without touching the browser.
func (e *Executor) Observe(ctx context.Context, goal string, before, after model.PageContext, attempted model.CommandBatch) (model.StepOutcome, error) {
	reqPrompt := prompt.BuildVerificationPrompt(goal, before, after, attempted)
	resp, err := e.llm.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: reqPrompt}},
		Temperature: 0.1,
		MaxTokens:   400,
	})
	e.lastPrompt, e.lastResponse = reqPrompt, resp.Text

	var result prompt.VerificationResult
	if err == nil {
		jsonStr, extractErr := extractJSON(resp.Text)
		if extractErr == nil {
			_ = json.Unmarshal([]byte(jsonStr), &result)
		}
	} else {
		e.logger.Warn().Err(err).Msg("observation LLM call failed")
	}

	ev := model.NewEvidence()
	ev.DOMBeforeSig = before.Signature
	ev.DOMAfterSig = after.Signature
	ev.Changed = before.Signature != after.Signature
	ev.Success = result.Complete
	ev.Findings["complete"] = result.Complete
	ev.Findings["confidence"] = result.Confidence
	if result.Evidence != "" {
		ev.Findings["evidence"] = result.Evidence
	}
	if diff.ShouldDiff("observation", goal) && before.RawDOM != "" && after.RawDOM != "" {
		ev.Findings["dom_diff"] = diff.AnalyzeChanges(before.RawDOM, after.RawDOM)
	}

	logical := model.LogicalUnknown
	if result.Complete {
		logical = model.LogicalTrue
	}

	breadcrumb := "Observed: " + result.Evidence
	if result.Evidence == "" {
		breadcrumb = "Observed: no structured findings returned"
	}

	return model.StepOutcome{
		Batch:          model.CommandBatch{},
		Evidence:       ev,
		Confidence:     result.Confidence,
		Rationale:      result.Evidence,
		Breadcrumb:     breadcrumb,
		LogicalSuccess: logical,
	}, nil
}

// generateWithOneRetry gives a failed LLM call one more chance; after
// that the caller falls back to a synthesized noop.
func (e *Executor) generateWithOneRetry(ctx context.Context, reqPrompt string) (string, error) {
	req := llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: reqPrompt}},
		Temperature: 0.2,
		MaxTokens:   900,
	}
	resp, err := e.llm.Generate(ctx, req)
	if err == nil {
		return resp.Text, nil
	}
	e.logger.Warn().Err(err).Msg("planning LLM call failed, retrying once")
	resp, err = e.llm.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// rawCommandBatch mirrors the response schema in internal/prompt, kept
// separate from model.CommandBatch so unknown/malformed fields never
// reach the typed model without passing through coercion.
type rawCommandBatch struct {
	Commands []struct {
		Type            string `json:"type"`
		CandidateID     int    `json:"candidate_id"`
		Text            string `json:"text"`
		URL             string `json:"url"`
		Key             string `json:"key"`
		SignatureChange bool   `json:"signature_change"`
		TimeoutMS       int    `json:"timeout_ms"`
	} `json:"commands"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
	Breadcrumb     string  `json:"breadcrumb"`
	OverrideReason string  `json:"override_reason"`
}

var knownCommandTypes = map[string]model.CommandType{
	"navigate": model.CommandNavigate,
	"click":    model.CommandClick,
	"type":     model.CommandTypeText,
	"press":    model.CommandPress,
	"wait_for": model.CommandWaitFor,
	"noop":     model.CommandNoop,
}

// parseAndCoerce tries a strict parse, then balanced-brace extraction,
// then a noop fallback; surviving raw fields are coerced into a
// CommandBatch, dropping unknown types and unresolved candidate_ids.
func (e *Executor) parseAndCoerce(raw string, genErr error, pctx model.PageContext, recentActions []model.RecentEvent) model.CommandBatch {
	if genErr != nil {
		return noopBatch(fmt.Sprintf("llm transport error: %v", genErr))
	}

	var parsed rawCommandBatch
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		jsonStr, extractErr := extractJSON(raw)
		if extractErr != nil {
			return noopBatch(fmt.Sprintf("llm reply was not valid JSON: %v", err))
		}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			return noopBatch(fmt.Sprintf("llm reply JSON did not match schema: %v", err))
		}
	}

	batch := model.CommandBatch{
		Confidence:     parsed.Confidence,
		Rationale:      parsed.Rationale,
		Breadcrumb:     parsed.Breadcrumb,
		OverrideReason: parsed.OverrideReason,
	}
	for _, rc := range parsed.Commands {
		ct, known := knownCommandTypes[strings.ToLower(strings.TrimSpace(rc.Type))]
		if !known {
			e.logger.Debug().Str("type", rc.Type).Msg("dropping command of unknown type")
			continue
		}
		if ct == model.CommandClick || ct == model.CommandTypeText {
			if _, ok := dom.ResolveCandidate(pctx, rc.CandidateID); !ok {
				e.logger.Debug().Int("candidate_id", rc.CandidateID).Msg("dropping command: candidate_id did not resolve")
				continue
			}
			if rank := candidateRank(pctx, rc.CandidateID); rank > topCandidateWindow && strings.TrimSpace(parsed.OverrideReason) == "" {
				e.logger.Debug().Int("candidate_id", rc.CandidateID).Int("rank", rank).Msg("dropping command: candidate outside the top ranks without override_reason")
				continue
			}
			if failedRecently(recentActions, rc.CandidateID) && strings.TrimSpace(parsed.OverrideReason) == "" {
				e.logger.Debug().Int("candidate_id", rc.CandidateID).Msg("dropping command: candidate_id failed in recent events without override_reason")
				continue
			}
		}
		batch.Commands = append(batch.Commands, model.Command{
			Type:            ct,
			CandidateID:     rc.CandidateID,
			Text:            rc.Text,
			URL:             rc.URL,
			Key:             rc.Key,
			SignatureChange: rc.SignatureChange,
			TimeoutMS:       rc.TimeoutMS,
		})
	}

	if len(batch.Commands) == 0 {
		batch.Commands = []model.Command{{Type: model.CommandNoop}}
		if batch.Rationale == "" {
			batch.Rationale = "no executable commands remained after coercion"
		}
	}
	return batch
}

// candidateRank returns the 1-based position of candidateID in the
// score-ordered interactive list, or 0 when it is absent.
func candidateRank(pctx model.PageContext, candidateID int) int {
	for i, el := range pctx.Interactive {
		if el.CandidateID == candidateID {
			return i + 1
		}
	}
	return 0
}

// failedRecently reports whether candidateID appears, with Changed
// false, among the last recentFailureWindow entries of recentActions. A
// command repeating a candidate_id that already failed to change the
// DOM is dropped unless the planner supplies an override_reason.
func failedRecently(recentActions []model.RecentEvent, candidateID int) bool {
	if candidateID == 0 {
		return false
	}
	events := recentActions
	if len(events) > recentFailureWindow {
		events = events[len(events)-recentFailureWindow:]
	}
	for _, e := range events {
		if e.CandidateID == candidateID && !e.Changed {
			return true
		}
	}
	return false
}

func noopBatch(reason string) model.CommandBatch {
	return model.CommandBatch{
		Commands:   []model.Command{{Type: model.CommandNoop}},
		Confidence: 0,
		Rationale:  reason,
	}
}

var (
	searchFieldRe = regexp.MustCompile(`(?i)(search|zip|postal|query|location)`)
	piiGuessRe    = regexp.MustCompile(`(?i)\b(ssn|password|credit card|cvv)\b`)
)

// applyAutoEnter sets PressEnter on a type command that targets a
// search-like field, so a typed query actually submits.
func applyAutoEnter(batch *model.CommandBatch, pctx model.PageContext) {
	for i := range batch.Commands {
		cmd := &batch.Commands[i]
		if cmd.Type != model.CommandTypeText {
			continue
		}
		el, ok := dom.ResolveCandidate(pctx, cmd.CandidateID)
		if !ok {
			continue
		}
		if looksLikeSearchField(el) && !piiGuessRe.MatchString(cmd.Text) {
			cmd.PressEnter = true
		}
	}
}

func looksLikeSearchField(el model.Element) bool {
	if searchFieldRe.MatchString(el.PrimarySelector()) {
		return true
	}
	if ph, ok := el.Attrs["placeholder"]; ok && searchFieldRe.MatchString(ph) {
		return true
	}
	return len(el.Text) < 50
}

// extractJSON finds the first balanced {...} substring in text and
// strips // and /* */ comments from it, tolerating the prose-wrapped or
// commented JSON real LLM providers occasionally emit.
func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return removeJSONComments(text[start : i+1]), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no balanced json object found")
}

// removeJSONComments strips // and /* */ comments outside string
// literals.
func removeJSONComments(s string) string {
	var b strings.Builder
	inStr := false
	esc := false
	i := 0
	for i < len(s) {
		ch := s[i]
		if esc {
			b.WriteByte(ch)
			esc = false
			i++
			continue
		}
		if ch == '\\' && inStr {
			b.WriteByte(ch)
			esc = true
			i++
			continue
		}
		if ch == '"' {
			inStr = !inStr
			b.WriteByte(ch)
			i++
			continue
		}
		if !inStr {
			if i < len(s)-1 && s[i] == '/' && s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
				continue
			}
			if i < len(s)-1 && s[i] == '/' && s[i+1] == '*' {
				i += 2
				for i < len(s)-1 {
					if s[i] == '*' && s[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}
		b.WriteByte(ch)
		i++
	}
	return b.String()
}
