package dom

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cognitivelattice/web-agent/internal/model"
)

var imperativeVerbs = map[string]bool{
	"select": true, "choose": true, "click": true, "pick": true,
	"tap": true, "press": true, "open": true, "go": true, "find": true,
	"search": true, "enter": true, "type": true, "add": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "for": true,
	"of": true, "in": true, "on": true, "at": true, "near": true,
	"with": true, "and": true, "or": true, "is": true, "it": true,
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9']+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// goalLexicon splits a goal into imperative verbs and target nouns.
func goalLexicon(goal string) (verbs, nouns []string) {
	for _, tok := range tokenize(goal) {
		if stopWords[tok] {
			continue
		}
		if imperativeVerbs[tok] {
			verbs = append(verbs, tok)
			continue
		}
		nouns = append(nouns, tok)
	}
	return
}

var highValueDataAttrPrefixes = []string{"data-qa-", "data-menu-", "data-testid"}

func hasHighValueDataAttr(attrs map[string]string, token string) bool {
	for k, v := range attrs {
		for _, p := range highValueDataAttrPrefixes {
			if strings.HasPrefix(k, p) && strings.Contains(strings.ToLower(v), token) {
				return true
			}
		}
	}
	return false
}

var (
	locationGoalTermRe = regexp.MustCompile(`(?i)\b(location|store|restaurant|zip|postal|address)\b`)
	menuSelectGoalRe   = regexp.MustCompile(`(?i)^select\s+(.+)$`)
	zipAffordanceRe    = regexp.MustCompile(`(?i)\b(zip|postal|address)\b`)
	allLocationsRe     = regexp.MustCompile(`(?i)\b(all locations|view all)\b`)
)

// Score returns elements reordered by descending compositional score.
// Ties are broken by extraction order (stable sort), and the
// input slice index is used as that tiebreaker key rather than mutating
// in place.
func Score(elements []model.Element, goal string) []model.Element {
	out := make([]model.Element, len(elements))
	copy(out, elements)

	verbs, nouns := goalLexicon(goal)
	strippedGoal := strings.ToLower(strings.TrimSpace(goal))
	isLocationGoal := locationGoalTermRe.MatchString(goal)
	menuNoun := ""
	if m := menuSelectGoalRe.FindStringSubmatch(strings.TrimSpace(goal)); m != nil {
		menuNoun = strings.ToLower(strings.TrimSpace(m[1]))
	}

	for i := range out {
		out[i].Score = scoreElement(out[i], verbs, nouns, strippedGoal, isLocationGoal, menuNoun)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func scoreElement(el model.Element, verbs, nouns []string, strippedGoal string, isLocationGoal bool, menuNoun string) float64 {
	var score float64
	lowerText := strings.ToLower(el.Text)
	lowerClass := strings.ToLower(el.Attrs["class"])

	// 1. Tag/role base weight.
	if interactiveTags[el.Tag] {
		score += 1.0
	}
	if role, ok := el.Attrs["role"]; ok && interactiveRoles[strings.ToLower(role)] {
		score += 0.5
	}

	// 2. Goal-lexicon match.
	for _, v := range verbs {
		if strings.Contains(lowerText, v) {
			score += 0.5
		}
	}
	for _, n := range nouns {
		if len(n) < 2 {
			continue
		}
		matched := strings.Contains(lowerText, n)
		if matched {
			boost := 3.0
			if hasHighValueDataAttr(el.Attrs, n) {
				boost *= 3
			}
			score += boost
		} else if hasHighValueDataAttr(el.Attrs, n) {
			score += 3.0
		}
	}

	// 3. Exact multi-word phrase match.
	if strippedGoal != "" && len(strings.Fields(strippedGoal)) > 1 && strings.Contains(lowerText, strippedGoal) {
		score += 5.0
	}

	// 4. Affordance-class boosts.
	for _, kw := range keywordBoost {
		if strings.Contains(lowerClass, kw) {
			if kw == "checkout" {
				score += 3.0
			} else {
				score += 2.0
			}
			break
		}
	}

	// 5. Location-goal specialization.
	if isLocationGoal {
		if hasHighValueDataAttr(el.Attrs, "store") || hasHighValueDataAttr(el.Attrs, "restaurant") {
			score += 8.0
		} else if looksLikeAddress(lowerText) {
			score += 4.0
		}
		if allLocationsRe.MatchString(el.Text) {
			score -= 0.9
		}
	}

	// 6. Menu-selection specialization.
	if menuNoun != "" && lowerText == menuNoun {
		score += 6.0
	}

	// 7. Input-field specialization for location/ZIP goals.
	if isLocationGoal && el.Tag == "input" {
		if zipAffordanceRe.MatchString(el.Attrs["placeholder"]) || zipAffordanceRe.MatchString(el.Attrs["name"]) {
			score += 2.0
		}
		if t := strings.ToLower(el.Attrs["type"]); t == "text" || t == "search" {
			score += 0.8
		}
	}

	return score
}

var addressHintRe = regexp.MustCompile(`\d{3,5}\s+\w+|\b[a-z]{2}\s+\d{5}\b`)

func looksLikeAddress(lowerText string) bool {
	return addressHintRe.MatchString(lowerText)
}
