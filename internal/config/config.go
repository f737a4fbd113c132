package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from environment variables.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DefaultProvider string `env:"DEFAULT_PROVIDER" envDefault:"openai"`
	DefaultModel    string `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OllamaHost      string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`

	HostPrompt     string `env:"HOST_PROMPT" envDefault:"You are the exuberant host of a live improv game show. React to performances with warmth and wit, in 2-3 short sentences. Never break character."`
	ScenarioSource string `env:"SCENARIO_SOURCE" envDefault:"deck"` // "deck" or "llm"
	ScenarioTheme  string `env:"SCENARIO_THEME"`

	MaxRounds     int           `env:"MAX_ROUNDS" envDefault:"3"`
	MaxUtterances int           `env:"MAX_UTTERANCES" envDefault:"6"`
	TurnCeiling   time.Duration `env:"TURN_CEILING" envDefault:"45s"`
	GenTimeout    time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"15s"`
	SessionGrace  time.Duration `env:"SESSION_GRACE" envDefault:"2m"`

	EndCues     []string `env:"END_CUES" envSeparator:"," envDefault:"end scene,okay done,that's my scene"`
	HandoffCues []string `env:"HANDOFF_CUES" envSeparator:"," envDefault:"passing it on,over to you,take it away"`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"true"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"./sceneshow-results.txt"`
	LogFile       string `env:"LOG_FILE"`
	TelemetryDir  string `env:"TELEMETRY_DIR" envDefault:"logs"`
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
