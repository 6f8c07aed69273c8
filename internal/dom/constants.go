package dom

// Size budgets and limits, overridable via the WEB_AGENT_DOM_* and
// WEB_AGENT_INTERACTIVE_* env vars loaded by internal/config.
const (
	DefaultTruncateChars         = 50000
	DefaultTruncateCharsLocation = 100000
	DefaultTruncateCharsAction   = 150000

	DefaultInteractiveMaxItems       = 200
	DefaultInteractiveIncludeTextMax = 80
)

// interactiveTags are the element tags treated as interactive without
// further heuristics.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true,
	"textarea": true, "option": true,
}

// interactiveRoles are ARIA roles treated as interactive.
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "menuitem": true, "option": true,
	"tab": true, "checkbox": true, "radio": true, "combobox": true,
	"textbox": true, "searchbox": true,
}

// keywordBoost lists affordance-class fragments that earn a scoring boost
// when present in an element's class attribute.
var keywordBoost = []string{
	"add-to-bag", "add-to-cart", "addtocart", "btn", "button", "checkout",
	"submit", "select", "menu-item", "product", "item",
}

// attrWhitelist is the retained subset of HTML attributes per the data
// model invariant.
var attrWhitelist = map[string]bool{
	"id": true, "class": true, "role": true, "name": true,
	"placeholder": true, "href": true, "onclick": true, "tabindex": true,
	"type": true, "value": true, "aria-label": true, "aria-labelledby": true,
}

func isDataOrAriaAttr(name string) bool {
	return len(name) > 5 && (name[:5] == "data-" || name[:5] == "aria-")
}
