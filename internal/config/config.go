// Package config provides YAML-based configuration loading for fieldnote.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fieldnote configuration, loaded from fieldnote.yaml.
type Config struct {
	Student       string              `yaml:"student"`
	Database      DatabaseConfig      `yaml:"database"`
	Session       SessionConfig       `yaml:"session"`
	Voice         VoiceConfig         `yaml:"voice"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	API           APIConfig           `yaml:"api"`
	Goals         []GoalConfig        `yaml:"goals"`
}

// DatabaseConfig selects and locates the session store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// SessionConfig tunes the live session.
type SessionConfig struct {
	TickSeconds     int    `yaml:"tick_seconds"`
	FrequencyWindow int    `yaml:"frequency_window"`
	Autosave        string `yaml:"autosave"` // cron expression; empty disables
}

// VoiceConfig controls the voice command dispatcher.
type VoiceConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxRestarts    int  `yaml:"max_restarts"`
	RestartBaseMs  int  `yaml:"restart_base_ms"`
	RestartMaxMs   int  `yaml:"restart_max_ms"`
	PromptTerminal bool `yaml:"prompt_terminal"`
}

// AudioConfig selects the capture device.
type AudioConfig struct {
	Device  string   `yaml:"device"` // file or command
	Path    string   `yaml:"path"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	MIME    string   `yaml:"mime"`
}

// TranscriptionConfig selects the speech-to-text backend.
type TranscriptionConfig struct {
	Provider       string   `yaml:"provider"` // http or command
	URL            string   `yaml:"url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	Model          string   `yaml:"model"`
	Language       string   `yaml:"language"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GoalConfig seeds one goal bank entry.
type GoalConfig struct {
	ID       string      `yaml:"id"`
	Title    string      `yaml:"title"`
	Category string      `yaml:"category"`
	DataType string      `yaml:"data_type"`
	Prompts  []string    `yaml:"prompts"`
	Status   string      `yaml:"status"`
	Plan     *PlanConfig `yaml:"plan"`
}

// PlanConfig is a behavior support plan attached to an abc-data goal.
type PlanConfig struct {
	BehaviorDefinition   string   `yaml:"behavior_definition"`
	Function             string   `yaml:"function"`
	PreventionStrategies []string `yaml:"prevention_strategies"`
	ReplacementBehaviors []string `yaml:"replacement_behaviors"`
	ResponseStrategies   []string `yaml:"response_strategies"`
	CreatedBy            string   `yaml:"created_by"`
}

var (
	dataTypes     = []string{"prompt-levels", "task-analysis", "duration", "abc-data", "frequency"}
	goalStatuses  = []string{"active", "completed", "on-hold"}
	planFunctions = []string{"attention", "escape", "access", "automatic"}
)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "fieldnote.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "fieldnote"
		}
	}
	if c.Session.TickSeconds == 0 {
		c.Session.TickSeconds = 1
	}
	if c.Session.FrequencyWindow == 0 {
		c.Session.FrequencyWindow = 10
	}
	if c.Voice.MaxRestarts == 0 {
		c.Voice.MaxRestarts = 10
	}
	if c.Voice.RestartBaseMs == 0 {
		c.Voice.RestartBaseMs = 250
	}
	if c.Voice.RestartMaxMs == 0 {
		c.Voice.RestartMaxMs = 30000
	}
	if c.Audio.Device == "" {
		c.Audio.Device = "command"
	}
	if c.Audio.Device == "command" && c.Audio.Command == "" {
		c.Audio.Command = "sox"
		c.Audio.Args = []string{"-d", "-t", "wav", "-"}
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "http"
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = 60
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8742
	}
	for i := range c.Goals {
		if c.Goals[i].Status == "" {
			c.Goals[i].Status = "active"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Student == "" {
		errs = append(errs, "student is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Session.TickSeconds < 0 {
		errs = append(errs, "session.tick_seconds must not be negative")
	}
	if c.Voice.RestartMaxMs < c.Voice.RestartBaseMs {
		errs = append(errs, "voice.restart_max_ms must be at least voice.restart_base_ms")
	}
	switch c.Audio.Device {
	case "file":
		if c.Audio.Path == "" {
			errs = append(errs, "audio.path is required for the file device")
		}
	case "command":
	default:
		errs = append(errs, fmt.Sprintf("audio.device %q must be file or command", c.Audio.Device))
	}
	switch c.Transcription.Provider {
	case "http":
		if c.Transcription.URL == "" {
			errs = append(errs, "transcription.url is required for the http provider")
		}
	case "command":
		if c.Transcription.Command == "" {
			errs = append(errs, "transcription.command is required for the command provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("transcription.provider %q must be http or command", c.Transcription.Provider))
	}

	seen := make(map[string]bool)
	for i, g := range c.Goals {
		if g.ID == "" {
			errs = append(errs, fmt.Sprintf("goals[%d].id is required", i))
		} else if seen[g.ID] {
			errs = append(errs, fmt.Sprintf("goals[%d].id %q is duplicated", i, g.ID))
		}
		seen[g.ID] = true
		if g.Title == "" {
			errs = append(errs, fmt.Sprintf("goals[%d].title is required", i))
		}
		if !contains(dataTypes, g.DataType) {
			errs = append(errs, fmt.Sprintf("goals[%d].data_type %q must be one of %s", i, g.DataType, strings.Join(dataTypes, ", ")))
		}
		if !contains(goalStatuses, g.Status) {
			errs = append(errs, fmt.Sprintf("goals[%d].status %q must be one of %s", i, g.Status, strings.Join(goalStatuses, ", ")))
		}
		if g.Plan != nil {
			if g.DataType != "abc-data" {
				errs = append(errs, fmt.Sprintf("goals[%d].plan is only allowed for abc-data goals", i))
			}
			if g.Plan.Function != "" && !contains(planFunctions, g.Plan.Function) {
				errs = append(errs, fmt.Sprintf("goals[%d].plan.function %q must be one of %s", i, g.Plan.Function, strings.Join(planFunctions, ", ")))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tick returns the session clock interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Session.TickSeconds) * time.Second
}

// APIKey reads the transcription API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	if c.Transcription.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Transcription.APIKeyEnv)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
