package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus where it came from, so `larder stats`
// and error messages can say which layer won.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Int parses the value as an integer, falling back when empty or malformed.
func (v ResolvedValue) Int(fallback int) int {
	s := strings.TrimSpace(v.Value)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Float parses the value as a float, falling back when empty or malformed.
func (v ResolvedValue) Float(fallback float64) float64 {
	s := strings.TrimSpace(v.Value)
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// ResolveOptions carries the CLI-flag layer, the highest-precedence one.
type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIDBPath  string
}

// ResolvedConfig is the merged view: config file, then environment, then
// CLI flags, each layer overriding the previous.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath   ResolvedValue `json:"db_path"`
	LLMModel ResolvedValue `json:"llm_model"`

	MaxPerDay    ResolvedValue `json:"max_per_day"`
	MaxItems     ResolvedValue `json:"max_items"`
	MaxChars     ResolvedValue `json:"max_chars"`
	BatchTimeout ResolvedValue `json:"batch_timeout_secs"`
	LLMQPS       ResolvedValue `json:"llm_qps"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		TimeoutSecs int     `yaml:"timeout_secs"`
		QPS         float64 `yaml:"qps"`
	} `yaml:"llm"`
	Limits struct {
		MaxPerDay int `yaml:"max_per_day"`
		MaxItems  int `yaml:"max_items"`
		MaxChars  int `yaml:"max_chars"`
	} `yaml:"limits"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".larder", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMModel, cfg.LLM.Model, SourceConfig, path)
		applyInt(&out.MaxPerDay, cfg.Limits.MaxPerDay, SourceConfig, path)
		applyInt(&out.MaxItems, cfg.Limits.MaxItems, SourceConfig, path)
		applyInt(&out.MaxChars, cfg.Limits.MaxChars, SourceConfig, path)
		applyInt(&out.BatchTimeout, cfg.LLM.TimeoutSecs, SourceConfig, path)
		if cfg.LLM.QPS > 0 {
			out.LLMQPS = ResolvedValue{Value: strconv.FormatFloat(cfg.LLM.QPS, 'f', -1, 64), Source: SourceConfig, From: path}
		}

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Model)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "LARDER_DB")
	applyEnv(&out.DBPath, "LARDER_DB_PATH")
	applyEnv(&out.LLMModel, "LARDER_LLM")
	applyEnv(&out.MaxPerDay, "LARDER_MAX_PER_DAY")
	applyEnv(&out.MaxItems, "LARDER_MAX_ITEMS")
	applyEnv(&out.MaxChars, "LARDER_MAX_CHARS")
	applyEnv(&out.BatchTimeout, "LARDER_LLM_TIMEOUT")
	applyEnv(&out.LLMQPS, "LARDER_LLM_QPS")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMModel, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// APIKeyForProvider returns the key for a "provider/model" string, falling
// back to the config file's untagged key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyInt(dst *ResolvedValue, n int, source ValueSource, from string) {
	if n <= 0 {
		return
	}
	*dst = ResolvedValue{Value: strconv.Itoa(n), Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
