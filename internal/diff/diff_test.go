package diff

import "testing"

func TestFindNewAndRemovedElements(t *testing.T) {
	before := `<html><body><button id="add">Add</button></body></html>`
	after := `<html><body><button id="add">Add</button><button id="confirm">Confirm</button></body></html>`

	newEls := FindNewElements(before, after)
	if len(newEls) != 1 || newEls[0] != "button#confirm" {
		t.Fatalf("expected [button#confirm], got %v", newEls)
	}

	removed := FindRemovedElements(after, before)
	if len(removed) != 1 || removed[0] != "button#confirm" {
		t.Fatalf("expected [button#confirm] removed, got %v", removed)
	}
}

func TestFindNewElementsIgnoresNonInteractive(t *testing.T) {
	before := `<html><body><p>hello</p></body></html>`
	after := `<html><body><p>hello</p><p>world</p></body></html>`

	if got := FindNewElements(before, after); len(got) != 0 {
		t.Fatalf("expected no interactive new elements for plain <p> tags, got %v", got)
	}
}

func TestAnalyzeChangesDetectsContentPatterns(t *testing.T) {
	before := `<html><body><div id="cart">Cart: 0 items</div></body></html>`
	after := `<html><body><div id="cart">Cart: 1 items</div><div>Price: $19.99</div></body></html>`

	summary := AnalyzeChanges(before, after)
	if len(summary.ContentPatterns) == 0 {
		t.Fatalf("expected at least one content pattern detected, got %+v", summary)
	}
	found := map[string]bool{}
	for _, p := range summary.ContentPatterns {
		found[p] = true
	}
	if !found["price_change"] {
		t.Errorf("expected price_change pattern, got %v", summary.ContentPatterns)
	}
	if summary.Summary == "" {
		t.Error("expected a non-empty human-readable summary")
	}
}

func TestAnalyzeChangesNoStructuralChange(t *testing.T) {
	html := `<html><body><p>static</p></body></html>`
	summary := AnalyzeChanges(html, html)
	if summary.Summary != "no significant structural change" {
		t.Errorf("expected no-change summary, got %q", summary.Summary)
	}
	if len(summary.NewElements) != 0 || len(summary.RemovedElements) != 0 {
		t.Errorf("expected no new/removed elements for identical DOMs, got %+v", summary)
	}
}

func TestShouldDiff(t *testing.T) {
	if !ShouldDiff("observation", "anything") {
		t.Error("observation steps should always be diffed")
	}
	if !ShouldDiff("action", "verify the cart updated") {
		t.Error("expected a verification-flavored action goal to be diffed")
	}
	if ShouldDiff("action", "click the add to bag button") {
		t.Error("expected a plain action goal not to trigger a diff")
	}
}
