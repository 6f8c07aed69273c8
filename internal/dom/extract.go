package dom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cognitivelattice/web-agent/internal/model"
)

// Extract parses rawHTML into an ordered sequence of candidate Elements.
// Parsing is goquery-based first; when parsing fails or the goquery pass
// finds no candidates it falls back to a two-pass regex scan (a, button,
// input and select tags, then div/span/li containers). Never returns an error: a
// failed extraction degrades to an empty slice, and the caller still
// builds a PageContext around it.
func Extract(rawHTML string, cfg *Config) []model.Element {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil || doc == nil {
		return extractRegex(rawHTML, cfg)
	}

	var elements []model.Element
	seen := map[string]bool{}

	doc.Find("a,button,input,select,textarea,option").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		attrs := collectAttrs(s)
		text := extractMeaningfulText(s.Text(), attrs)
		if text == "" && !hasAffordance(attrs) {
			return
		}
		el := buildElement(tag, attrs, text)
		key := dedupKey(el)
		if seen[key] {
			return
		}
		seen[key] = true
		elements = append(elements, el)
	})

	doc.Find("div,span,li").Each(func(_ int, s *goquery.Selection) {
		attrs := collectAttrs(s)
		text := normText(s.Text())
		if !isClickableDiv(attrs, text) {
			return
		}
		meaningful := extractMeaningfulText(text, attrs)
		if meaningful == "" && !hasAffordance(attrs) {
			return
		}
		tag := goquery.NodeName(s)
		el := buildElement(tag, attrs, meaningful)
		key := dedupKey(el)
		if seen[key] {
			return
		}
		seen[key] = true
		elements = append(elements, el)
	})

	if len(elements) == 0 {
		return extractRegex(rawHTML, cfg)
	}
	return elements
}

func hasAffordance(attrs map[string]string) bool {
	if _, ok := attrs["onclick"]; ok {
		return true
	}
	for k := range attrs {
		if isDataOrAriaAttr(k) {
			return true
		}
	}
	return false
}

func collectAttrs(s *goquery.Selection) map[string]string {
	out := map[string]string{}
	if s.Length() == 0 {
		return out
	}
	node := s.Get(0)
	for _, a := range node.Attr {
		name := strings.ToLower(a.Key)
		if attrWhitelist[name] || isDataOrAriaAttr(name) {
			out[name] = a.Val
		}
	}
	return out
}

func buildElement(tag string, attrs map[string]string, text string) model.Element {
	return model.Element{
		Tag:       strings.ToLower(tag),
		Text:      text,
		Attrs:     attrs,
		Selectors: candidateSelectors(strings.ToLower(tag), attrs, text),
	}
}

func classSignature(attrs map[string]string) string {
	return safeGetClassString(attrs)
}

// safeGetClassString normalizes the class attribute for dedup keying,
// tolerating a missing or non-string class value.
func safeGetClassString(attrs map[string]string) string {
	c, ok := attrs["class"]
	if !ok {
		return ""
	}
	fields := strings.Fields(c)
	return strings.Join(fields, " ")
}

func dedupKey(el model.Element) string {
	text := el.Text
	if len(text) > 30 {
		text = text[:30]
	}
	return fmt.Sprintf("%s|%s|%s", el.Tag, classSignature(el.Attrs), text)
}

// --- regex fallback path -----------------------------------------------

var (
	interactiveTagRe = regexp.MustCompile(`(?is)<(a|button|input|select)\b([^>]*)/?>`)
	containerTagRe   = regexp.MustCompile(`(?is)<(div|span|li)\b([^>]*)>(.*?)</(?:div|span|li)>`)
	attrPairRe       = regexp.MustCompile(`([a-zA-Z0-9_:-]+)\s*=\s*"([^"]*)"|([a-zA-Z0-9_:-]+)\s*=\s*'([^']*)'`)
	tagStripRe       = regexp.MustCompile(`(?s)<[^>]*>`)
)

// extractAttrs parses an attribute string from a regex-captured opening
// tag into a whitelisted attribute map.
func extractAttrs(attrStr string) map[string]string {
	out := map[string]string{}
	for _, m := range attrPairRe.FindAllStringSubmatch(attrStr, -1) {
		var name, val string
		if m[1] != "" {
			name, val = strings.ToLower(m[1]), m[2]
		} else {
			name, val = strings.ToLower(m[3]), m[4]
		}
		if attrWhitelist[name] || isDataOrAriaAttr(name) {
			out[name] = val
		}
	}
	// data-qa-item-name sometimes sits outside the normal attr grammar
	// (framework-emitted artifacts with unusual quoting); re-scan for it
	// specifically.
	if _, ok := out["data-qa-item-name"]; !ok {
		if loc := regexp.MustCompile(`data-qa-item-name=["']([^"']*)["']`).FindStringSubmatch(attrStr); loc != nil {
			out["data-qa-item-name"] = loc[1]
		}
	}
	return out
}

// extractRegex is the fallback path used when goquery fails to parse the
// document (malformed fragments, truncated mid-tag content from an
// upstream truncation pass).
func extractRegex(rawHTML string, cfg *Config) []model.Element {
	var elements []model.Element
	seen := map[string]bool{}

	for _, m := range interactiveTagRe.FindAllStringSubmatchIndex(rawHTML, -1) {
		tag := strings.ToLower(rawHTML[m[2]:m[3]])
		attrs := extractAttrs(rawHTML[m[4]:m[5]])
		// a/button/select carry their label as inner text up to the
		// matching close tag; input is a void element with none.
		innerText := ""
		if tag != "input" {
			rest := rawHTML[m[1]:]
			if end := regexp.MustCompile(`(?i)</` + tag + `\s*>`).FindStringIndex(rest); end != nil {
				innerText = normText(tagStripRe.ReplaceAllString(rest[:end[0]], " "))
			}
		}
		text := extractMeaningfulText(innerText, attrs)
		el := buildElement(tag, attrs, text)
		if el.Text == "" && !hasAffordance(attrs) {
			continue
		}
		key := dedupKey(el)
		if seen[key] {
			continue
		}
		seen[key] = true
		elements = append(elements, el)
	}

	for _, m := range containerTagRe.FindAllStringSubmatch(rawHTML, -1) {
		tag := strings.ToLower(m[1])
		attrs := extractAttrs(m[2])
		innerText := normText(tagStripRe.ReplaceAllString(m[3], " "))
		if !isClickableDiv(attrs, innerText) {
			continue
		}
		text := extractMeaningfulText(innerText, attrs)
		if text == "" && !hasAffordance(attrs) {
			continue
		}
		nested := extractNestedDivs(m[3], 0, 2)
		el := buildElement(tag, attrs, text)
		key := dedupKey(el)
		if !seen[key] {
			seen[key] = true
			elements = append(elements, el)
		}
		for _, n := range nested {
			nk := dedupKey(n)
			if seen[nk] {
				continue
			}
			seen[nk] = true
			elements = append(elements, n)
		}
	}

	return elements
}

// extractNestedDivs recurses into a clickable container's inner HTML up
// to maxDepth, repairing truncated tags by only matching complete
// open/close pairs the regex can find (a truncated element simply yields
// no match rather than a malformed Element).
func extractNestedDivs(htmlContent string, depth, maxDepth int) []model.Element {
	if depth >= maxDepth {
		return nil
	}
	var out []model.Element
	for _, m := range containerTagRe.FindAllStringSubmatch(htmlContent, -1) {
		tag := strings.ToLower(m[1])
		attrs := extractAttrs(m[2])
		inner := normText(tagStripRe.ReplaceAllString(m[3], " "))
		if !isClickableDiv(attrs, inner) {
			continue
		}
		text := extractMeaningfulText(inner, attrs)
		if text == "" && !hasAffordance(attrs) {
			continue
		}
		out = append(out, buildElement(tag, attrs, text))
		out = append(out, extractNestedDivs(m[3], depth+1, maxDepth)...)
	}
	return out
}
