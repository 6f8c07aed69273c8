package dom

import "testing"

func TestExtractFindsInteractiveElements(t *testing.T) {
	raw := `<html><body>
		<button id="submit-btn" class="btn primary">Submit Order</button>
		<input type="text" name="zip" placeholder="Enter ZIP code">
		<a href="/stores">Find a store</a>
		<div>just some text, not interactive</div>
	</body></html>`

	els := Extract(raw, nil)
	if len(els) < 3 {
		t.Fatalf("expected at least 3 interactive elements, got %d: %+v", len(els), els)
	}

	var sawButton, sawInput, sawAnchor bool
	for _, el := range els {
		switch el.Tag {
		case "button":
			sawButton = true
			if el.Text != "Submit Order" {
				t.Errorf("button text = %q, want %q", el.Text, "Submit Order")
			}
		case "input":
			sawInput = true
		case "a":
			sawAnchor = true
		}
	}
	if !sawButton || !sawInput || !sawAnchor {
		t.Fatalf("missing expected tags: button=%v input=%v a=%v", sawButton, sawInput, sawAnchor)
	}
}

func TestExtractDedupesRepeatedElements(t *testing.T) {
	raw := `<html><body>
		<button class="btn">Go</button>
		<button class="btn">Go</button>
	</body></html>`
	els := Extract(raw, nil)
	count := 0
	for _, el := range els {
		if el.Tag == "button" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected dedup to collapse identical buttons, got %d", count)
	}
}

func TestExtractClickableDivByDataAttribute(t *testing.T) {
	raw := `<html><body><div data-qa-item-name="Store Locator" class="location-card">123 Main St</div></body></html>`
	els := Extract(raw, nil)
	if len(els) != 1 {
		t.Fatalf("expected the data-qa div to be extracted as a candidate, got %d: %+v", len(els), els)
	}
	if els[0].Text != "Store Locator" {
		t.Fatalf("expected data-qa-item-name to win as label, got %q", els[0].Text)
	}
}

func TestExtractFallsBackToRegexOnMalformedHTML(t *testing.T) {
	raw := `<butt0n class="btn">broken tag soup<inpu`
	els := extractRegex(raw, nil)
	if len(els) != 0 {
		t.Fatalf("malformed fragment with no recognizable tags should yield nothing, got %+v", els)
	}

	// The button is labelled by its inner text; the input has no label and
	// no affordance attribute, so it is dropped, as on the goquery path.
	raw2 := `text before <button class="btn">Click</button> text after <input name="q">`
	els2 := extractRegex(raw2, nil)
	if len(els2) != 1 {
		t.Fatalf("expected regex fallback to find 1 element, got %d: %+v", len(els2), els2)
	}
}
