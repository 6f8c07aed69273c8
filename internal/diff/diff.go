// Package diff reports structured changes between two DOM snapshots.
// It is consulted for observation steps and for action goals whose
// wording benefits from a before/after report, enriching
// Evidence.findings without altering the signature-based changed flag.
package diff

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChangeSummary is the structured report analyze produces.
type ChangeSummary struct {
	NewElements     []string `json:"new_elements"`
	RemovedElements []string `json:"removed_elements"`
	ContentPatterns []string `json:"content_patterns"`
	Summary         string   `json:"summary"`
}

var interactiveSelector = "a,button,input,select,textarea,[role],[onclick]"

func elementSignatures(htmlStr string) map[string]*goquery.Selection {
	out := map[string]*goquery.Selection{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return out
	}
	doc.Find(interactiveSelector).Each(func(_ int, s *goquery.Selection) {
		out[generateSelector(s)] = s
	})
	return out
}

func generateSelector(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok && id != "" {
		return fmt.Sprintf("%s#%s", tag, id)
	}
	if class, ok := s.Attr("class"); ok && class != "" {
		return fmt.Sprintf("%s.%s", tag, strings.Join(strings.Fields(class), "."))
	}
	return fmt.Sprintf("%s:%s", tag, strings.TrimSpace(s.Text()))
}

func isInteractiveElement(s *goquery.Selection) bool {
	tag := goquery.NodeName(s)
	switch tag {
	case "a", "button", "input", "select", "textarea":
		return true
	}
	if _, ok := s.Attr("role"); ok {
		return true
	}
	if _, ok := s.Attr("onclick"); ok {
		return true
	}
	return false
}

// FindNewElements returns selectors present in after but not before.
func FindNewElements(before, after string) []string {
	beforeSigs := elementSignatures(before)
	afterSigs := elementSignatures(after)
	var out []string
	for sel, s := range afterSigs {
		if _, ok := beforeSigs[sel]; !ok && isInteractiveElement(s) {
			out = append(out, sel)
		}
	}
	sort.Strings(out)
	return out
}

// FindRemovedElements returns selectors present in before but not after.
func FindRemovedElements(before, after string) []string {
	beforeSigs := elementSignatures(before)
	afterSigs := elementSignatures(after)
	var out []string
	for sel, s := range beforeSigs {
		if _, ok := afterSigs[sel]; !ok && isInteractiveElement(s) {
			out = append(out, sel)
		}
	}
	sort.Strings(out)
	return out
}

var contentPatternRes = map[string]*regexp.Regexp{
	"price_change":  regexp.MustCompile(`(?i)[$€£]\s?\d+\.\d{2}`),
	"cart_update":   regexp.MustCompile(`(?i)\b(cart|bag)\b.*\b\d+\b`),
	"error_message": regexp.MustCompile(`(?i)\b(error|invalid|required)\b`),
	"confirmation":  regexp.MustCompile(`(?i)\b(thank you|confirmed|success|order placed)\b`),
}

func detectContentPatterns(htmlStr string) []string {
	var found []string
	for name, re := range contentPatternRes {
		if re.MatchString(htmlStr) {
			found = append(found, name)
		}
	}
	sort.Strings(found)
	return found
}

// AnalyzeChanges produces the full structured report between two DOM
// snapshots.
func AnalyzeChanges(before, after string) ChangeSummary {
	newEls := FindNewElements(before, after)
	removed := FindRemovedElements(before, after)
	patterns := detectContentPatterns(after)
	return ChangeSummary{
		NewElements:     newEls,
		RemovedElements: removed,
		ContentPatterns: patterns,
		Summary:         summarizeChanges(newEls, removed, patterns),
	}
}

func summarizeChanges(newEls, removed, patterns []string) string {
	var parts []string
	if len(newEls) > 0 {
		parts = append(parts, fmt.Sprintf("%d new element(s)", len(newEls)))
	}
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("%d removed element(s)", len(removed)))
	}
	if len(patterns) > 0 {
		parts = append(parts, "patterns: "+strings.Join(patterns, ", "))
	}
	if len(parts) == 0 {
		return "no significant structural change"
	}
	return strings.Join(parts, "; ")
}

var diffGoalRe = regexp.MustCompile(`(?i)\b(what changed|did the|updated|confirm|verify)\b`)

// ShouldDiff reports whether a structured diff is worth computing for a
// given action type and goal, ported from should_use_dom_diff.
func ShouldDiff(actionType, goal string) bool {
	if actionType == "observation" {
		return true
	}
	return diffGoalRe.MatchString(goal)
}
