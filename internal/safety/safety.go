// Package safety classifies a command batch before it reaches the
// browser. Thresholds and host lists are configurable rather than
// hard-coded; DefaultConfig supplies the built-in keyword list.
package safety

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cognitivelattice/web-agent/internal/model"
)

// Verdict enumerates the classifier's decision.
type Verdict string

const (
	Auto    Verdict = "auto"
	Confirm Verdict = "confirm"
	Deny    Verdict = "deny"
)

// Mode selects how a confirm verdict resolves when no operator answers.
type Mode string

const (
	ModeAutonomous  Mode = "autonomous"
	ModeInteractive Mode = "interactive"
)

// Config carries externally configured thresholds and host lists,
// loaded from agent.toml by internal/config, or the defaults below when
// no file is present.
type Config struct {
	AllowedHosts          []string
	ForbiddenHostPatterns []string
	ConfirmThreshold      int
	DestructiveKeywords   []string
}

// DefaultConfig carries a bilingual destructive keyword list and a
// conservative confirm threshold.
func DefaultConfig() Config {
	return Config{
		ConfirmThreshold: 3,
		DestructiveKeywords: []string{
			"delete", "remove", "cancel", "unsubscribe", "удалить",
			"отменить", "purchase", "buy now", "place order", "pay",
			"submit payment", "transfer funds",
		},
		ForbiddenHostPatterns: []string{
			`(?i)\.onion$`,
		},
	}
}

// Result is the classifier's output.
type Result struct {
	Verdict Verdict
	Reasons []string
}

var piiLikeRe = regexp.MustCompile(`(?i)\b(ssn|social security|credit card|cvv|password)\b`)

// Classify inspects command types, URL targets, payment/PII text, mode,
// and confidence to decide auto/confirm/deny.
func Classify(batch model.CommandBatch, ctx model.PageContext, mode Mode, confidence float64, cfg Config) Result {
	def := DefaultConfig()
	if cfg.ConfirmThreshold == 0 {
		cfg.ConfirmThreshold = def.ConfirmThreshold
	}
	if len(cfg.DestructiveKeywords) == 0 {
		cfg.DestructiveKeywords = def.DestructiveKeywords
	}
	if len(cfg.ForbiddenHostPatterns) == 0 {
		cfg.ForbiddenHostPatterns = def.ForbiddenHostPatterns
	}
	var reasons []string

	for _, cmd := range batch.Commands {
		switch cmd.Type {
		case model.CommandNavigate:
			if reason, denied := checkHost(cmd.URL, cfg); reason != "" {
				reasons = append(reasons, reason)
				if denied {
					return Result{Verdict: Deny, Reasons: reasons}
				}
			}
		case model.CommandTypeText:
			if piiLikeRe.MatchString(cmd.Text) {
				reasons = append(reasons, "typed text resembles payment or PII data")
			}
			for _, kw := range cfg.DestructiveKeywords {
				if strings.Contains(strings.ToLower(cmd.Text), kw) {
					reasons = append(reasons, "typed text contains destructive keyword: "+kw)
				}
			}
		}
	}

	for _, el := range candidatesTargeted(batch, ctx) {
		lowerText := strings.ToLower(el.Text)
		lowerClass := strings.ToLower(el.Attrs["class"])
		for _, kw := range cfg.DestructiveKeywords {
			if strings.Contains(lowerText, kw) || strings.Contains(lowerClass, kw) {
				reasons = append(reasons, "target candidate matches destructive keyword: "+kw)
			}
		}
	}

	if confidence < 0.35 {
		reasons = append(reasons, "low planner confidence")
	}

	if len(reasons) == 0 {
		return Result{Verdict: Auto}
	}
	if len(reasons) >= cfg.ConfirmThreshold {
		if mode == ModeAutonomous {
			return Result{Verdict: Deny, Reasons: reasons}
		}
		return Result{Verdict: Confirm, Reasons: reasons}
	}
	return Result{Verdict: Auto, Reasons: reasons}
}

func candidatesTargeted(batch model.CommandBatch, ctx model.PageContext) []model.Element {
	var out []model.Element
	for _, cmd := range batch.Commands {
		if cmd.CandidateID == 0 {
			continue
		}
		for _, el := range ctx.Interactive {
			if el.CandidateID == cmd.CandidateID {
				out = append(out, el)
			}
		}
	}
	return out
}

// checkHost returns a human-readable reason (possibly empty) and
// whether the match is an outright deny (forbidden pattern) rather than
// a soft confirm-raising signal (outside the allowed host set).
func checkHost(rawURL string, cfg Config) (reason string, denied bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "navigation target is not a well-formed URL", false
	}
	for _, pat := range cfg.ForbiddenHostPatterns {
		re, err := regexp.Compile(pat)
		if err == nil && re.MatchString(u.Host) {
			return "navigation target host matches a forbidden pattern", true
		}
	}
	if len(cfg.AllowedHosts) == 0 {
		return "", false
	}
	for _, h := range cfg.AllowedHosts {
		if strings.EqualFold(h, u.Host) {
			return "", false
		}
	}
	return "navigation target host is outside the approved host set", false
}
