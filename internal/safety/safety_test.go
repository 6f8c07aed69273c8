package safety

import (
	"testing"

	"github.com/cognitivelattice/web-agent/internal/model"
)

func TestClassifyAutoApprovesBenignBatch(t *testing.T) {
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandClick, CandidateID: 1}}}
	ctx := model.PageContext{Interactive: []model.Element{{CandidateID: 1, Text: "Continue"}}}
	res := Classify(batch, ctx, ModeAutonomous, 0.9, DefaultConfig())
	if res.Verdict != Auto {
		t.Fatalf("expected Auto verdict, got %v (%v)", res.Verdict, res.Reasons)
	}
}

func TestClassifyDeniesForbiddenHost(t *testing.T) {
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandNavigate, URL: "http://evil.onion"}}}
	res := Classify(batch, model.PageContext{}, ModeAutonomous, 0.9, DefaultConfig())
	if res.Verdict != Deny {
		t.Fatalf("expected Deny for forbidden host, got %v", res.Verdict)
	}
}

func TestClassifyFlagsDestructiveTypedText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmThreshold = 1
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandTypeText, Text: "please delete my account"}}}
	res := Classify(batch, model.PageContext{}, ModeInteractive, 0.9, cfg)
	if res.Verdict != Confirm {
		t.Fatalf("expected Confirm for destructive keyword over threshold, got %v (%v)", res.Verdict, res.Reasons)
	}
}

func TestClassifyDeniesDestructiveBatchInAutonomousMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmThreshold = 1
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandTypeText, Text: "cancel my subscription"}}}
	res := Classify(batch, model.PageContext{}, ModeAutonomous, 0.9, cfg)
	if res.Verdict != Deny {
		t.Fatalf("expected Deny in autonomous mode once threshold met, got %v", res.Verdict)
	}
}

func TestClassifyFlagsLowConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmThreshold = 1
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandClick, CandidateID: 1}}}
	res := Classify(batch, model.PageContext{}, ModeInteractive, 0.1, cfg)
	if res.Verdict != Confirm {
		t.Fatalf("expected low confidence to raise a Confirm verdict, got %v (%v)", res.Verdict, res.Reasons)
	}
}

func TestClassifyFlagsPIILikeText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmThreshold = 1
	batch := model.CommandBatch{Commands: []model.Command{{Type: model.CommandTypeText, Text: "my credit card is 4111..."}}}
	res := Classify(batch, model.PageContext{}, ModeInteractive, 0.9, cfg)
	if res.Verdict != Confirm {
		t.Fatalf("expected Confirm for PII-like text, got %v (%v)", res.Verdict, res.Reasons)
	}
}

func TestCheckHostOutsideAllowedSet(t *testing.T) {
	cfg := Config{AllowedHosts: []string{"example.com"}}
	reason, denied := checkHost("https://other.com/path", cfg)
	if denied {
		t.Fatal("expected a soft confirm signal, not an outright deny")
	}
	if reason == "" {
		t.Fatal("expected a non-empty reason for an out-of-allowlist host")
	}

	reason2, denied2 := checkHost("https://example.com/path", cfg)
	if denied2 || reason2 != "" {
		t.Fatalf("expected no reason for an allowed host, got reason=%q denied=%v", reason2, denied2)
	}
}

func TestCheckHostMalformedURL(t *testing.T) {
	reason, denied := checkHost("http://[::1", DefaultConfig())
	if denied {
		t.Fatal("malformed URL should not be an outright deny")
	}
	if reason == "" {
		t.Fatal("expected a reason for a malformed navigation URL")
	}
}
