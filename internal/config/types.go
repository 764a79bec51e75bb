package config

// Limits bound a single run.
type Limits struct {
	MaxIterations int `yaml:"max_iterations"`
	MaxRetries    int `yaml:"max_retries"`
}

// Server describes how to reach the opencode server.
type Server struct {
	URL    string `yaml:"url"`
	Spawn  bool   `yaml:"spawn"`  // start `opencode serve` instead of connecting
	Binary string `yaml:"binary"` // used with Spawn
	Port   int    `yaml:"port"`   // used with Spawn
}

// Agent selects the model and agent for prompts. Empty fields defer to the
// server's own defaults.
type Agent struct {
	Model string `yaml:"model"` // provider/model
	Name  string `yaml:"name"`
}

// Log configures diagnostic logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Config represents the .loop/config.yaml file.
type Config struct {
	Limits     Limits `yaml:"limits"`
	Server     Server `yaml:"server"`
	Agent      Agent  `yaml:"agent"`
	StatusTool string `yaml:"status_tool"`
	Log        Log    `yaml:"log"`
}

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)
