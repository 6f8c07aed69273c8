package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cognitivelattice/web-agent/internal/agent"
	"github.com/cognitivelattice/web-agent/internal/browser"
	"github.com/cognitivelattice/web-agent/internal/config"
	"github.com/cognitivelattice/web-agent/internal/lattice"
	"github.com/cognitivelattice/web-agent/internal/llm"
	"github.com/cognitivelattice/web-agent/internal/model"
	"github.com/cognitivelattice/web-agent/internal/safety"
)

type cliOptions struct {
	goal        string
	url         string
	storage     string
	saveState   string
	maxSteps    int
	tomlConfig  string
	interactive bool
}

func main() {
	opts := parseFlags()
	if opts.goal == "" {
		goal, cancelled, err := promptGoal()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt goal failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.goal = goal
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if opts.url == "" {
		log.Fatal().Msg("missing -url flag")
	}

	cfg, err := config.Load(opts.tomlConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient, err := newLLMClient(cfg.LLMProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}

	lat, err := lattice.New(cfg.DataDir, log.With().Str("comp", "lattice").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("lattice init")
	}
	if store, err := lattice.OpenStore(filepath.Join(cfg.DataDir, "lattice-index.db")); err != nil {
		log.Warn().Err(err).Msg("lattice index store unavailable, continuing without cross-session query support")
	} else {
		lat.AttachStore(store)
		defer store.Close()
	}

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, opts.storage)
	if err != nil {
		log.Fatal().Err(err).Msg("browser controller")
	}

	mode := safety.ModeAutonomous
	var confirm agent.ConfirmFunc
	if opts.interactive {
		mode = safety.ModeInteractive
		confirm = terminalConfirm()
	}

	executor := agent.NewExecutor(llmClient, ctrl, cfg.Safety, mode, confirm, log.With().Str("comp", "executor").Logger())
	locationAgent := agent.NewLocationAgent(llmClient)

	var debugDir string
	if cfg.Debug {
		debugDir = filepath.Join(cfg.DataDir, "debug", lat.SessionID())
	}

	coord := agent.NewCoordinator(llmClient, ctrl, lat, executor, &cfg.DOM, []agent.SubAgent{locationAgent},
		log.With().Str("comp", "coordinator").Logger(), debugDir, opts.saveState)

	fmt.Println("Starting task...")
	ok, err := coord.ExecuteWebTask(ctx, opts.url, opts.goal, opts.maxSteps)
	if err != nil {
		log.Error().Err(err).Msg("run finished with error")
		os.Exit(1)
	}
	if ok {
		fmt.Println("Task completed successfully.")
	} else {
		fmt.Println("Task finished without reaching the success threshold.")
	}
}

func newLLMClient(provider string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return llm.NewOpenAIWithLogger(log.With().Str("comp", "llm").Logger())
	default:
		return llm.NewAnthropicWithLogger(log.With().Str("comp", "llm").Logger())
	}
}

func parseFlags() cliOptions {
	goal := flag.String("goal", "", "Task goal, e.g. \"find stores near 45305\"")
	url := flag.String("url", "", "Starting URL")
	storage := flag.String("storage", "", "Path to Playwright storage state to resume")
	save := flag.String("save-state", "", "Path to save updated storage state on close")
	maxSteps := flag.Int("max-steps", 20, "Max planned steps to execute")
	tomlConfig := flag.String("config", "agent.toml", "Path to optional agent.toml")
	interactive := flag.Bool("interactive", false, "Require confirmation for confirm-verdict batches")
	flag.Parse()
	return cliOptions{
		goal:        strings.TrimSpace(*goal),
		url:         strings.TrimSpace(*url),
		storage:     strings.TrimSpace(*storage),
		saveState:   strings.TrimSpace(*save),
		maxSteps:    *maxSteps,
		tomlConfig:  strings.TrimSpace(*tomlConfig),
		interactive: *interactive,
	}
}

func promptGoal() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter goal (leave empty to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxGoalLength = 2000
	if len(line) > maxGoalLength {
		fmt.Printf("Goal too long (max %d characters), truncated\n", maxGoalLength)
		line = line[:maxGoalLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}
	return sanitized.String(), false, nil
}

func terminalConfirm() agent.ConfirmFunc {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, batch model.CommandBatch, result safety.Result) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		fmt.Printf("\n=== Confirmation required ===\nRationale: %s\nReasons: %v\nApprove? [y/N] ", batch.Rationale, result.Reasons)
		text, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(text), "y")
	}
}
