package prompt

import (
	"fmt"
	"strings"

	"github.com/cognitivelattice/web-agent/internal/model"
)

// VerificationResponseSchema is the response contract for observation
// steps, a JSON schema on par with the action-step schema so both paths
// parse the same tolerant way.
const VerificationResponseSchema = `RESPOND WITH JSON:
{"complete": false, "evidence": "", "confidence": 0.0}`

// BuildVerificationPrompt asks the LLM to compare before/after page
// observations for an observation-kind step and report structured
// findings, rather than issuing commands.
func BuildVerificationPrompt(goal string, ctxBefore, ctxAfter model.PageContext, attempted model.CommandBatch) string {
	var b strings.Builder

	b.WriteString(systemPreamble)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "OBSERVATION GOAL: %s\n\n", goal)

	fmt.Fprintf(&b, "BEFORE: url=%s title=%q signature=%s\n", ctxBefore.URL, ctxBefore.Title, ctxBefore.Signature)
	fmt.Fprintf(&b, "AFTER:  url=%s title=%q signature=%s\n\n", ctxAfter.URL, ctxAfter.Title, ctxAfter.Signature)

	if len(attempted.Commands) > 0 {
		b.WriteString("COMMANDS ATTEMPTED:\n")
		for _, c := range attempted.Commands {
			fmt.Fprintf(&b, "- %s candidate_id=%d text=%q\n", c.Type, c.CandidateID, c.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("CURRENT PAGE INTERACTIVE SUMMARY:\n")
	for _, c := range shapeCandidates(ctxAfter) {
		fmt.Fprintf(&b, "%d <%s> text=%q\n", c.CandidateID, c.Tag, c.Text)
	}
	b.WriteString("\n")

	b.WriteString("Report whether the observation goal is satisfied by what is visible now. Do not propose commands.\n\n")
	b.WriteString(VerificationResponseSchema)

	return b.String()
}

// VerificationResult is the parsed form of the schema above.
type VerificationResult struct {
	Complete   bool    `json:"complete"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}
