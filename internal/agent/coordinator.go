package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/browser"
	"github.com/cognitivelattice/web-agent/internal/dom"
	"github.com/cognitivelattice/web-agent/internal/lattice"
	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/model"
)

const (
	maxRecentEventsCarried = 5
	maxBreadcrumbsCarried  = 5
	interStepSleep         = 500 * time.Millisecond
)

// knownFalseNegativeErrorRe matches driver error substrings the
// coordinator treats as non-authoritative for logical-success
// arbitration: viewport/retry/timeout noise that a changed DOM often
// contradicts.
var knownFalseNegativeErrorRe = regexp.MustCompile(`(?i)(viewport|retry|retrying|timeout|timed out)`)

// Coordinator drives a whole episode: planning, per-step dispatch to
// the step executor (or a recognizing SubAgent), logical-success
// arbitration, and lattice bookkeeping.
type Coordinator struct {
	llm      llm.Client
	ctrl     browser.Controller
	lat      *lattice.Lattice
	exec     *Executor
	domCfg   *dom.Config
	agents   []SubAgent
	logger   zerolog.Logger
	debugDir string
	savePath string
}

// NewCoordinator wires the pieces ExecuteWebTask drives. debugDir, if
// non-empty, turns on the per-run audit artifacts; savePath, if
// non-empty, is where Close persists browser storage state.
func NewCoordinator(client llm.Client, ctrl browser.Controller, lat *lattice.Lattice, exec *Executor, domCfg *dom.Config, agents []SubAgent, logger zerolog.Logger, debugDir, savePath string) *Coordinator {
	return &Coordinator{llm: client, ctrl: ctrl, lat: lat, exec: exec, domCfg: domCfg, agents: agents, logger: logger, debugDir: debugDir, savePath: savePath}
}

type planResponse struct {
	Steps []string `json:"steps"`
}

// CreateWebAutomationPlan asks the LLM for an ordered list of
// natural-language steps, threading in prior lattice progress when
// resuming a task, and falls back to a trivial two-step plan on any
// LLM failure.
func (c *Coordinator) CreateWebAutomationPlan(ctx context.Context, goal, targetURL string) ([]string, error) {
	var resumeNote string
	if task, ok := c.lat.GetActiveTask(); ok && len(task.CompletedSteps) > 0 {
		done := make([]string, 0, len(task.CompletedSteps))
		for _, s := range task.CompletedSteps {
			done = append(done, s.Description)
		}
		resumeNote = fmt.Sprintf("\n\nThis task resumes a prior session. Steps already completed:\n- %s\nDo not re-plan those; continue from where they left off.\n", strings.Join(done, "\n- "))
	}

	reqPrompt := fmt.Sprintf(`You are planning a web automation task.

GOAL: %s
STARTING URL: %s
%s
Decompose the goal into an ordered list of short, natural-language steps.
Distinguish action steps (click, type, select) from observation steps
(verify, confirm, look for, report) by wording them plainly. Do not
reference selectors or candidate ids, only goals a page-reading agent
could act on.

RESPOND WITH JSON:
{"steps": ["first step", "second step", "..."]}`, goal, targetURL, resumeNote)

	resp, err := c.llm.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: reqPrompt}},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("plan generation failed, falling back to trivial plan")
		return fallbackPlan(goal, targetURL), nil
	}

	jsonStr, extractErr := extractJSON(resp.Text)
	if extractErr != nil {
		c.logger.Warn().Msg("plan response had no JSON, falling back to trivial plan")
		return fallbackPlan(goal, targetURL), nil
	}
	var parsed planResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil || len(parsed.Steps) == 0 {
		c.logger.Warn().Msg("plan response did not match schema, falling back to trivial plan")
		return fallbackPlan(goal, targetURL), nil
	}
	return parsed.Steps, nil
}

func fallbackPlan(goal, targetURL string) []string {
	return []string{
		fmt.Sprintf("Navigate to %s", targetURL),
		fmt.Sprintf("Complete: %s", goal),
	}
}

// ExecuteWebTask plans the goal, walks the planned steps one at a time,
// and reports overall success (at least half of the planned steps
// logically or driver-level successful).
func (c *Coordinator) ExecuteWebTask(ctx context.Context, targetURL, objectives string, maxIterations int) (bool, error) {
	_ = c.lat.AddEvent(model.EventUserRequest, map[string]any{"goal": objectives, "url": targetURL})

	plan, err := c.CreateWebAutomationPlan(ctx, objectives, targetURL)
	if err != nil {
		return false, fmt.Errorf("execute_web_task: plan: %w", err)
	}

	// Cap the plan before it is recorded on the task, so the task plan
	// and the steps actually executed stay the same length and the task
	// closes with one completed_steps entry per plan entry.
	steps := buildPlannedSteps(plan, c.agents)
	if maxIterations > 0 && maxIterations < len(steps) {
		steps = steps[:maxIterations]
		plan = plan[:maxIterations]
	}

	domain := hostOf(targetURL)
	if _, err := c.lat.CreateNewTask(objectives, plan, domain); err != nil {
		return false, fmt.Errorf("execute_web_task: create task: %w", err)
	}
	_ = c.lat.AddEvent(model.EventPlanGenerated, map[string]any{"plan": plan, "url": targetURL})

	if err := c.ctrl.Navigate(ctx, targetURL); err != nil {
		_ = c.lat.AddEvent(model.EventError, map[string]any{"phase": "initial_navigate", "error": err.Error()})
		_ = c.ctrl.Close(ctx, c.savePath)
		return false, fmt.Errorf("execute_web_task: initial navigate: %w", err)
	}

	var (
		breadcrumbs    []string
		recentEvents   []model.RecentEvent
		previousSig    string
		previousRawDOM string
		successCount   int
	)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			c.handleCancellation(err)
			return false, err
		}

		html, title, pageURL, err := c.ctrl.GetCurrentDOM(ctx)
		if err != nil {
			// The step still gets its accounting entry: a task must
			// close with one completed_steps entry per plan entry even
			// when the page could not be observed for this step.
			_ = c.lat.AddEvent(model.EventError, map[string]any{"phase": "get_current_dom", "step": i + 1, "error": err.Error()})
			_ = c.lat.ExecuteStep(i+1, step.Description, "", map[string]any{"error": err.Error()})
			_ = c.lat.MarkStepCompleted(i + 1)
			continue
		}

		pctx := dom.CtxFromPage(dom.CtxInput{
			URL:               pageURL,
			Title:             title,
			RawDOM:            html,
			Goal:              step.Description,
			StepNumber:        i + 1,
			TotalSteps:        len(steps),
			OverallGoal:       objectives,
			PreviousSignature: previousSig,
			RecentEvents:      recentEvents,
			LatticeState: model.LatticeRef{
				PlannedSteps:     plan,
				CurrentStepIndex: i,
			},
			Breadcrumbs: breadcrumbs,
		}, c.domCfg)

		_ = c.lat.ExecuteStep(i+1, step.Description, "", nil)

		outcome, stepErr := c.runStep(ctx, step, pctx, recentEvents, breadcrumbs, previousRawDOM)
		previousRawDOM = html
		if stepErr != nil {
			_ = c.lat.AddEvent(model.EventError, map[string]any{"phase": "run_step", "step": i + 1, "error": stepErr.Error()})
			_ = c.lat.MarkStepCompleted(i + 1)
			c.dumpDebug(i+1, step.Kind, pctx, "", "", outcome)
			continue
		}

		outcome.LogicalSuccess = c.logicalSuccess(outcome, step, pctx.URL)
		stepSucceeded := outcome.Evidence.Success
		if outcome.LogicalSuccess != model.LogicalUnknown {
			stepSucceeded = outcome.LogicalSuccess == model.LogicalTrue
		}
		if stepSucceeded {
			successCount++
		}

		_ = c.lat.MarkStepCompleted(i + 1)
		_ = c.lat.AddEvent(model.EventWebDecision, outcomeToPayload(i+1, outcome))
		_ = c.lat.AddEvent(model.EventWebStepCompleted, outcomeToPayload(i+1, outcome))

		rp, rr := c.exec.LastExchange()
		c.dumpDebug(i+1, step.Kind, pctx, rp, rr, outcome)

		if outcome.Breadcrumb != "" {
			breadcrumbs = append(breadcrumbs, outcome.Breadcrumb)
			if len(breadcrumbs) > maxBreadcrumbsCarried {
				breadcrumbs = breadcrumbs[len(breadcrumbs)-maxBreadcrumbsCarried:]
			}
		}
		recentEvents = append(recentEvents, toRecentEvent(outcome))
		if len(recentEvents) > maxRecentEventsCarried {
			recentEvents = recentEvents[len(recentEvents)-maxRecentEventsCarried:]
		}
		if outcome.Evidence.DOMAfterSig != "" {
			previousSig = outcome.Evidence.DOMAfterSig
		} else {
			previousSig = pctx.Signature
		}

		select {
		case <-time.After(interStepSleep):
		case <-ctx.Done():
			c.handleCancellation(ctx.Err())
			return false, ctx.Err()
		}
	}

	if err := c.ctrl.Close(ctx, c.savePath); err != nil {
		c.logger.Warn().Err(err).Msg("browser close error")
	}

	overall := len(steps) > 0 && float64(successCount)/float64(len(steps)) >= 0.5
	if err := c.lat.CompleteCurrentTask(); err != nil {
		c.logger.Warn().Err(err).Msg("complete_current_task failed")
	}
	c.writeAuditSummary(len(steps), successCount, overall)

	return overall, nil
}

// runStep dispatches a step to either an observation pass or the
// step executor, routing through a recognizing SubAgent's proposed
// batch when one claims the step.
func (c *Coordinator) runStep(ctx context.Context, step PlannedStep, pctx model.PageContext, recentEvents []model.RecentEvent, breadcrumbs []string, previousRawDOM string) (model.StepOutcome, error) {
	if step.Kind == StepObservation {
		before := pctx
		if previousRawDOM != "" {
			before.RawDOM = previousRawDOM
		}
		return c.exec.Observe(ctx, step.Description, before, pctx, model.CommandBatch{})
	}

	for _, sa := range c.agents {
		if !sa.CanHandle(step.Description) {
			continue
		}
		batch, err := sa.Next(ctx, step.Description, pctx, recentEvents)
		if err != nil {
			c.logger.Warn().Err(err).Str("subagent", sa.Name()).Msg("subagent failed, falling back to general executor")
			break
		}
		return c.exec.FinishStep(ctx, batch, pctx)
	}

	return c.exec.ReasonAndAct(ctx, step.Description, pctx, recentEvents, breadcrumbs)
}

// logicalSuccess arbitrates whether a step's goal was achieved
// independent of the driver's success flag: explicit verification, a
// SubAgent-attached VerificationRule, or a known-false-negative driver
// error combined with a changed DOM.
func (c *Coordinator) logicalSuccess(outcome model.StepOutcome, step PlannedStep, currentURL string) model.LogicalSuccess {
	if v, ok := outcome.Evidence.Findings["complete"].(bool); ok {
		if v {
			return model.LogicalTrue
		}
		return model.LogicalFalse
	}

	if step.Verify != nil {
		if step.Verify.FindingKey != "" {
			if v, ok := outcome.Evidence.Findings[step.Verify.FindingKey].(bool); ok {
				if v {
					return model.LogicalTrue
				}
				return model.LogicalFalse
			}
		}
		if re := step.Verify.compiledURLPattern(); re != nil {
			if (!step.Verify.RequireSignatureChange || outcome.Evidence.Changed) && re.MatchString(currentURL) {
				return model.LogicalTrue
			}
		}
	}

	if outcome.Evidence.Changed && hasKnownFalseNegativeError(outcome.Evidence.Errors) {
		return model.LogicalTrue
	}

	return model.LogicalUnknown
}

func hasKnownFalseNegativeError(errs []string) bool {
	for _, e := range errs {
		if knownFalseNegativeErrorRe.MatchString(e) {
			return true
		}
	}
	return false
}

func (c *Coordinator) handleCancellation(cause error) {
	_ = c.lat.AddEvent(model.EventError, map[string]any{"phase": "cancellation", "error": cause.Error()})
	_ = c.ctrl.Close(context.Background(), c.savePath)
	_ = c.lat.Save()
}

func toRecentEvent(outcome model.StepOutcome) model.RecentEvent {
	var candidateID int
	var evType string
	if len(outcome.Batch.Commands) > 0 {
		candidateID = outcome.Batch.Commands[0].CandidateID
		evType = string(outcome.Batch.Commands[0].Type)
	} else {
		evType = "observation"
	}
	return model.RecentEvent{
		Type:        evType,
		CandidateID: candidateID,
		Changed:     outcome.Evidence.Changed,
		Summary:     outcome.Breadcrumb,
	}
}

func outcomeToPayload(step int, outcome model.StepOutcome) map[string]any {
	return map[string]any{
		"step":            step,
		"breadcrumb":      outcome.Breadcrumb,
		"confidence":      outcome.Confidence,
		"logical_success": outcome.LogicalSuccess.String(),
		"changed":         outcome.Evidence.Changed,
		"driver_success":  outcome.Evidence.Success,
		"errors":          outcome.Evidence.Errors,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// dumpDebug writes the per-run audit artifacts when debugDir is
// configured; it is a best-effort convenience, never fatal to the run.
func (c *Coordinator) dumpDebug(step int, kind StepKind, pctx model.PageContext, promptText, responseText string, outcome model.StepOutcome) {
	if c.debugDir == "" {
		return
	}
	if err := os.MkdirAll(c.debugDir, 0o755); err != nil {
		return
	}
	ts := pctx.Signature
	promptName, responseName := "web_prompt", "web_response"
	if kind == StepObservation {
		promptName, responseName = "observation_prompt", "observation_response"
	}
	if promptText != "" {
		_ = os.WriteFile(filepath.Join(c.debugDir, fmt.Sprintf("%s_step%d_%s.txt", promptName, step, ts)), []byte(promptText), 0o644)
	}
	if responseText != "" {
		_ = os.WriteFile(filepath.Join(c.debugDir, fmt.Sprintf("%s_step%d_%s.txt", responseName, step, ts)), []byte(responseText), 0o644)
	}
	candidates := dom.ExtractFromSkeleton(pctx.Skeleton, c.domCfg)
	if b, err := json.MarshalIndent(candidates, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(c.debugDir, fmt.Sprintf("dom_debug_step%d_%s.txt", step, ts)), b, 0o644)
	}
	pageState := fmt.Sprintf("url=%s title=%q signature=%s step=%d/%d\n", pctx.URL, pctx.Title, pctx.Signature, pctx.StepNumber, pctx.TotalSteps)
	_ = os.WriteFile(filepath.Join(c.debugDir, fmt.Sprintf("page_state_step%d_%s.txt", step, ts)), []byte(pageState), 0o644)

	snap := c.lat.Snapshot()
	if b, err := json.MarshalIndent(snap, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(c.debugDir, fmt.Sprintf("lattice_state_after_step%d.json", step)), b, 0o644)
	}
}

func (c *Coordinator) writeAuditSummary(total, succeeded int, overall bool) {
	if c.debugDir == "" {
		return
	}
	snap := c.lat.Snapshot()
	if b, err := json.MarshalIndent(snap, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(c.debugDir, "final_lattice_state.json"), b, 0o644)
	}
	summary := fmt.Sprintf("# Run Summary Audit Trail\n\nSession: %s\nSteps: %d\nSucceeded: %d\nOverall success: %v\n",
		snap.SessionID, total, succeeded, overall)
	_ = os.WriteFile(filepath.Join(c.debugDir, "RUN_SUMMARY_AUDIT_TRAIL.md"), []byte(summary), 0o644)
}
