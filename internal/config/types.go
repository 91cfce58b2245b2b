package config

// Engine configures the interpreter for every run started by this host.
type Engine struct {
	OutputBuffer    int `yaml:"output_buffer" toml:"output_buffer"`
	MaxProgramBytes int `yaml:"max_program_bytes" toml:"max_program_bytes"`

	// MaxMemoryBytes bounds program, tape and output buffer together.
	// Zero means no limit.
	MaxMemoryBytes int `yaml:"max_memory_bytes" toml:"max_memory_bytes"`
}

// Debug selects which debug log categories are emitted. Interpreter and
// Output only apply when Basic is set.
type Debug struct {
	Basic       bool `yaml:"basic" toml:"basic"`
	Interpreter bool `yaml:"interpreter" toml:"interpreter"`
	Output      bool `yaml:"output" toml:"output"`
}

// ServerConfig configures the run server.
type ServerConfig struct {
	Port         int    `yaml:"port" toml:"port"`
	PasswordHash string `yaml:"password_hash,omitempty" toml:"password_hash,omitempty"`
}

// Config represents the .bfi/config.yaml (or config.toml) file.
type Config struct {
	Engine Engine        `yaml:"engine" toml:"engine"`
	Debug  Debug         `yaml:"debug" toml:"debug"`
	Server *ServerConfig `yaml:"server,omitempty" toml:"server,omitempty"`
}
