package dom

import "testing"

func TestExtractMeaningfulTextPrefersDataAttribute(t *testing.T) {
	attrs := map[string]string{"data-qa-item-name": "Cheeseburger Deluxe"}
	got := extractMeaningfulText("something else entirely", attrs)
	if got != "Cheeseburger Deluxe" {
		t.Fatalf("expected data-qa-item-name to win, got %q", got)
	}
}

func TestExtractMeaningfulTextFallsBackToAriaLabel(t *testing.T) {
	attrs := map[string]string{"aria-label": "Close dialog"}
	got := extractMeaningfulText("", attrs)
	if got != "Close dialog" {
		t.Fatalf("expected aria-label fallback, got %q", got)
	}
}

func TestExtractMeaningfulTextTruncatesLongSentences(t *testing.T) {
	long := "This is a very long run-on sentence that goes on and on without any punctuation to break it up at all"
	got := extractMeaningfulText(long, nil)
	words := len([]byte(got))
	if words == 0 {
		t.Fatal("expected non-empty truncated text")
	}
	if got == long {
		t.Fatalf("expected long text to be shortened, got identical output")
	}
}

func TestAlnumRatio(t *testing.T) {
	if r := alnumRatio(""); r != 0 {
		t.Fatalf("alnumRatio(\"\") = %v, want 0", r)
	}
	if r := alnumRatio("abc123"); r != 1 {
		t.Fatalf("alnumRatio(\"abc123\") = %v, want 1", r)
	}
	if r := alnumRatio("a b"); r >= 1 {
		t.Fatalf("alnumRatio(\"a b\") = %v, want < 1", r)
	}
}
