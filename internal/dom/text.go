package dom

import (
	"regexp"
	"strings"

	"github.com/cognitivelattice/web-agent/internal/model"
)

var (
	priceRe      = regexp.MustCompile(`[$€£]\s?\d`)
	alnumRe      = regexp.MustCompile(`[A-Za-z0-9]`)
	noiseRe      = regexp.MustCompile(`\s+`)
	sentenceEnds = regexp.MustCompile(`[.!?\n]`)

	qaNameAttrs = []string{"data-qa-item-name", "data-testid", "data-qa-group-name", "data-qa"}
)

// normText collapses internal whitespace and trims.
func normText(t string) string {
	t = noiseRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func alnumRatio(s string) float64 {
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			n++
		}
	}
	return float64(n) / float64(len([]rune(s)))
}

// extractMeaningfulText chooses an Element's label in priority order:
// recognized data-attribute, short clean visible text, leading words of
// longer text with noise stripped.
func extractMeaningfulText(rawText string, attrs map[string]string) string {
	for _, a := range qaNameAttrs {
		if v, ok := attrs[a]; ok && strings.TrimSpace(v) != "" {
			return truncateText(normText(v))
		}
	}

	clean := normText(rawText)
	if clean == "" {
		if label, ok := attrs["aria-label"]; ok && strings.TrimSpace(label) != "" {
			return truncateText(normText(label))
		}
		if ph, ok := attrs["placeholder"]; ok && strings.TrimSpace(ph) != "" {
			return truncateText(normText(ph))
		}
		return ""
	}

	if len(clean) <= 50 && alnumRatio(clean) > 0.7 && !priceRe.MatchString(clean) {
		return truncateText(clean)
	}

	if loc := sentenceEnds.FindStringIndex(clean); loc != nil && loc[0] > 0 {
		return truncateText(clean[:loc[0]])
	}

	words := strings.Fields(clean)
	if len(words) > 3 {
		words = words[:3]
	}
	return truncateText(strings.Join(words, " "))
}

func truncateText(s string) string {
	if len(s) <= model.TextMaxLen {
		return s
	}
	return s[:model.TextMaxLen]
}
