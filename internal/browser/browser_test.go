package browser

import (
	"errors"
	"testing"

	"github.com/cognitivelattice/web-agent/internal/model"
)

func TestWrapNilPassesThrough(t *testing.T) {
	if err := wrap(nil); err != nil {
		t.Fatalf("expected wrap(nil) to return nil, got %v", err)
	}
}

func TestWrapAnnotatesError(t *testing.T) {
	cause := errors.New("boom")
	err := wrap(cause)
	if err == nil {
		t.Fatal("expected a non-nil wrapped error")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause, got %v", err)
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"0", true, false},
		{"garbage", true, true},
	}
	for _, tc := range cases {
		t.Setenv("TEST_BOOL_ENV", tc.val)
		if got := parseBoolEnv("TEST_BOOL_ENV", tc.def); got != tc.want {
			t.Errorf("parseBoolEnv(%q, %v) = %v, want %v", tc.val, tc.def, got, tc.want)
		}
	}
}

func TestResolveAndDoMissingCandidateErrors(t *testing.T) {
	c := &controller{}
	pctx := model.PageContext{Interactive: []model.Element{{CandidateID: 1}}}

	called := false
	err := c.resolveAndDo(pctx, 99, func(sel string) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for an unresolved candidate id")
	}
	if called {
		t.Fatal("expected fn to never be called for an unresolved candidate")
	}
}

func TestResolveAndDoTriesEachSelectorUntilSuccess(t *testing.T) {
	c := &controller{}
	pctx := model.PageContext{Interactive: []model.Element{
		{CandidateID: 1, Selectors: []string{"#bad", "#also-bad", "#good"}},
	}}

	var tried []string
	err := c.resolveAndDo(pctx, 1, func(sel string) error {
		tried = append(tried, sel)
		if sel == "#good" {
			return nil
		}
		return errors.New("selector failed")
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(tried) != 3 {
		t.Fatalf("expected all 3 selectors to be attempted in order, got %v", tried)
	}
}

func TestResolveAndDoNoSelectorsErrors(t *testing.T) {
	c := &controller{}
	pctx := model.PageContext{Interactive: []model.Element{{CandidateID: 1}}}
	err := c.resolveAndDo(pctx, 1, func(sel string) error { return nil })
	if err == nil {
		t.Fatal("expected an error when the resolved element has no selectors")
	}
}
