// Package webagent is the single-call surface for running one cognitive
// web task end to end: plan the goal, drive a real browser through the
// planned steps, persist the episode into the caller's lattice, and
// report the outcome. Callers needing finer-grained wiring (custom
// confirmation callbacks, storage-state resumption, sub-agent sets)
// compose the internal packages directly the way cmd/agent does.
package webagent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognitivelattice/web-agent/internal/agent"
	"github.com/cognitivelattice/web-agent/internal/browser"
	"github.com/cognitivelattice/web-agent/internal/config"
	"github.com/cognitivelattice/web-agent/internal/lattice"
	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/safety"
)

// Result is what a completed task run reports back.
type Result struct {
	Success   bool      `json:"success"`
	Goal      string    `json:"goal"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Client and Lattice alias the internal types so callers outside this
// module can hold and pass them.
type (
	Client  = llm.Client
	Lattice = lattice.Lattice
)

// NewClientFromEnv builds an LLM client from LLM_PROVIDER and the
// matching API-key environment variable.
func NewClientFromEnv() (Client, error) {
	return llm.NewClientFromEnv()
}

// NewLattice creates a fresh session lattice persisted under dataDir.
func NewLattice(dataDir string, logger zerolog.Logger) (*Lattice, error) {
	return lattice.New(dataDir, logger)
}

// OpenLattice reopens a persisted lattice file to resume its task.
func OpenLattice(path string, logger zerolog.Logger) (*Lattice, error) {
	return lattice.Load(path, logger)
}

// ExecuteCognitiveWebTask runs one goal against one starting URL with
// default configuration: autonomous safety mode, no confirmation
// callback, environment-derived DOM budgets, and the built-in
// location sub-agent. The browser is launched and closed inside the
// call; the full episode (plan, per-step events, task state) lands in
// lat, which remains usable after return.
func ExecuteCognitiveWebTask(ctx context.Context, goal, targetURL string, client Client, lat *Lattice) (Result, error) {
	res := Result{Goal: goal, URL: targetURL, Timestamp: time.Now()}

	cfg, err := config.Load("")
	if err != nil {
		return res, err
	}

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		return res, err
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, "")
	if err != nil {
		return res, err
	}

	var debugDir string
	if cfg.Debug {
		debugDir = filepath.Join(cfg.DataDir, "debug", lat.SessionID())
	}

	logger := zerolog.Nop()
	exec := agent.NewExecutor(client, ctrl, cfg.Safety, safety.ModeAutonomous, nil, logger)
	coord := agent.NewCoordinator(client, ctrl, lat, exec, &cfg.DOM,
		[]agent.SubAgent{agent.NewLocationAgent(client)}, logger, debugDir, "")

	ok, err := coord.ExecuteWebTask(ctx, targetURL, goal, 0)
	res.Success = ok
	res.Timestamp = time.Now()
	return res, err
}
