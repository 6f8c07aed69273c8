package dom

import (
	"fmt"
	"strings"
)

const maxSelectors = 5

func escSelectorValue(v string, limit int) string {
	v = strings.TrimSpace(v)
	if len(v) > limit {
		v = v[:limit]
	}
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

// candidateSelectors builds an ordered, deduplicated, top-5 list of CSS
// selectors for one element, most-unique first: data-qa-* attribute >
// #id > tag.class > [role](+text) > aria-label > name > placeholder >
// href (anchors only) > text-contains.
func candidateSelectors(tag string, attrs map[string]string, text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(sel string) {
		if sel == "" || seen[sel] {
			return
		}
		seen[sel] = true
		out = append(out, sel)
	}

	for _, a := range qaNameAttrs {
		if v, ok := attrs[a]; ok && v != "" {
			add(fmt.Sprintf(`%s[%s="%s"]`, tag, a, escSelectorValue(v, 24)))
		}
	}
	if id, ok := attrs["id"]; ok && id != "" {
		add("#" + escSelectorValue(id, 40))
	}
	if class, ok := attrs["class"]; ok && class != "" {
		classes := strings.Fields(class)
		if len(classes) > 0 {
			add(tag + "." + strings.Join(classes, "."))
		}
	}
	if role, ok := attrs["role"]; ok && role != "" {
		if text != "" {
			add(fmt.Sprintf(`[role="%s"]:has-text("%s")`, escSelectorValue(role, 24), escSelectorValue(text, 30)))
		} else {
			add(fmt.Sprintf(`[role="%s"]`, escSelectorValue(role, 24)))
		}
	}
	if label, ok := attrs["aria-label"]; ok && label != "" {
		add(fmt.Sprintf(`[aria-label="%s"]`, escSelectorValue(label, 40)))
	}
	if name, ok := attrs["name"]; ok && name != "" {
		add(fmt.Sprintf(`%s[name="%s"]`, tag, escSelectorValue(name, 40)))
	}
	if ph, ok := attrs["placeholder"]; ok && ph != "" {
		add(fmt.Sprintf(`%s[placeholder="%s"]`, tag, escSelectorValue(ph, 40)))
	}
	if tag == "a" {
		if href, ok := attrs["href"]; ok && href != "" {
			add(fmt.Sprintf(`a[href="%s"]`, escSelectorValue(href, 60)))
		}
	}
	if text != "" {
		add(fmt.Sprintf(`%s:has-text("%s")`, tag, escSelectorValue(text, 30)))
	}

	if len(out) > maxSelectors {
		out = out[:maxSelectors]
	}
	return out
}

// isClickableDiv classifies a non-semantic container (div/span/li) as
// interactive via a priority cascade of affordance heuristics.
func isClickableDiv(attrs map[string]string, text string) bool {
	if role, ok := attrs["role"]; ok && interactiveRoles[strings.ToLower(role)] {
		return true
	}
	if _, ok := attrs["onclick"]; ok {
		return true
	}
	if tabindex, ok := attrs["tabindex"]; ok && tabindex != "-1" {
		return true
	}
	for k := range attrs {
		if strings.HasPrefix(k, "data-qa") || strings.HasPrefix(k, "data-testid") || strings.HasPrefix(k, "data-menu") {
			return true
		}
	}
	class := strings.ToLower(attrs["class"])
	for _, kw := range keywordBoost {
		if strings.Contains(class, kw) {
			return true
		}
	}
	if strings.Contains(class, "clickable") || strings.Contains(class, "selectable") || strings.Contains(class, "option") {
		return true
	}
	if id := strings.ToLower(attrs["id"]); strings.Contains(id, "btn") || strings.Contains(id, "button") {
		return true
	}
	if text != "" && len(text) < 40 && alnumRatio(text) > 0.7 {
		// Short, clean, standalone text inside a div is a weak signal on
		// its own; only treat it as clickable alongside a cursor-style
		// class, handled above. Bare text is not enough.
		return false
	}
	return false
}
