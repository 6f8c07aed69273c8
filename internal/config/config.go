// Package config loads the ambient configuration the agent needs at
// startup: environment variables (via godotenv) and an optional
// agent.toml file for structured settings (safety thresholds, DOM
// budgets) that would be unwieldy as one env var per field.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/cognitivelattice/web-agent/internal/dom"
	"github.com/cognitivelattice/web-agent/internal/safety"
)

// Config is the fully resolved ambient configuration.
type Config struct {
	Debug bool

	DOM    dom.Config
	Safety safety.Config

	LLMProvider string
	DataDir     string
}

// fileConfig mirrors the optional agent.toml structure.
type fileConfig struct {
	Safety struct {
		AllowedHosts          []string `toml:"allowed_hosts"`
		ForbiddenHostPatterns []string `toml:"forbidden_host_patterns"`
		ConfirmThreshold      int      `toml:"confirm_threshold"`
		DestructiveKeywords   []string `toml:"destructive_keywords"`
	} `toml:"safety"`
	DOM struct {
		TruncateChars             int `toml:"truncate_chars"`
		TruncateCharsLocation     int `toml:"truncate_chars_location"`
		TruncateCharsAction       int `toml:"truncate_chars_action"`
		InteractiveMaxItems       int `toml:"interactive_max_items"`
		InteractiveIncludeTextMax int `toml:"interactive_include_text_max"`
	} `toml:"dom"`
}

// Load reads .env (if present), environment variables, and an optional
// TOML file at tomlPath (ignored if it doesn't exist) into a Config.
func Load(tomlPath string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Debug:       envBool("WEB_AGENT_DEBUG"),
		LLMProvider: envOr("LLM_PROVIDER", "anthropic"),
		DataDir:     envOr("WEB_AGENT_DATA_DIR", "./agent-data"),
		DOM: dom.Config{
			TruncateChars:             envInt("WEB_AGENT_DOM_TRUNCATE_CHARS", dom.DefaultTruncateChars),
			TruncateCharsLocation:     envInt("WEB_AGENT_DOM_TRUNCATE_CHARS_LOCATION", dom.DefaultTruncateCharsLocation),
			TruncateCharsAction:       envInt("WEB_AGENT_DOM_TRUNCATE_CHARS_ACTION", dom.DefaultTruncateCharsAction),
			InteractiveMaxItems:       envInt("WEB_AGENT_INTERACTIVE_MAX_ITEMS", dom.DefaultInteractiveMaxItems),
			InteractiveIncludeTextMax: envInt("WEB_AGENT_INTERACTIVE_INCLUDE_TEXT_MAX", dom.DefaultInteractiveIncludeTextMax),
		},
		Safety: safety.DefaultConfig(),
	}

	if tomlPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		return cfg, nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(tomlPath, &fc); err != nil {
		return cfg, err
	}

	if len(fc.Safety.AllowedHosts) > 0 {
		cfg.Safety.AllowedHosts = fc.Safety.AllowedHosts
	}
	if len(fc.Safety.ForbiddenHostPatterns) > 0 {
		cfg.Safety.ForbiddenHostPatterns = fc.Safety.ForbiddenHostPatterns
	}
	if fc.Safety.ConfirmThreshold > 0 {
		cfg.Safety.ConfirmThreshold = fc.Safety.ConfirmThreshold
	}
	if len(fc.Safety.DestructiveKeywords) > 0 {
		cfg.Safety.DestructiveKeywords = fc.Safety.DestructiveKeywords
	}
	if fc.DOM.TruncateChars > 0 {
		cfg.DOM.TruncateChars = fc.DOM.TruncateChars
	}
	if fc.DOM.TruncateCharsLocation > 0 {
		cfg.DOM.TruncateCharsLocation = fc.DOM.TruncateCharsLocation
	}
	if fc.DOM.TruncateCharsAction > 0 {
		cfg.DOM.TruncateCharsAction = fc.DOM.TruncateCharsAction
	}
	if fc.DOM.InteractiveMaxItems > 0 {
		cfg.DOM.InteractiveMaxItems = fc.DOM.InteractiveMaxItems
	}
	if fc.DOM.InteractiveIncludeTextMax > 0 {
		cfg.DOM.InteractiveIncludeTextMax = fc.DOM.InteractiveIncludeTextMax
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
