package insts

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the global processor description applied to layout and
// emission. It is read-only to every pipeline stage.
type Config struct {
	// ProcessorName is the name of the target processor.
	ProcessorName string `json:"processor_name"`

	// ProcessorFamily is the name of the target processor's family.
	ProcessorFamily string `json:"processor_family"`

	// Endian is the processor byte order, "big" or "little".
	Endian string `json:"endian"`

	// Alignment is the instruction alignment in bytes.
	Alignment uint `json:"alignment"`

	// Bitness is the default instruction width in bits. Instructions whose
	// parsed encoding is wider or narrower keep their own width.
	Bitness uint `json:"bitness"`

	// OmitOpcodes suppresses encoding comments in the emitted module.
	OmitOpcodes bool `json:"omit_opcodes"`

	// OmitExampleInstructions suppresses example-instruction comments in
	// the emitted module.
	OmitExampleInstructions bool `json:"omit_example_instructions"`
}

// DefaultConfig returns a Config with the stock defaults.
func DefaultConfig() *Config {
	return &Config{
		ProcessorName:   "MyProc",
		ProcessorFamily: "MyProcFamily",
		Endian:          "big",
		Alignment:       1,
		Bitness:         32,
	}
}

// LoadConfig loads a Config from a JSON file. Missing keys keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the Config for usable values.
func (c *Config) Validate() error {
	if c.ProcessorName == "" {
		return fmt.Errorf("processor_name must not be empty")
	}
	if c.Endian != "big" && c.Endian != "little" {
		return fmt.Errorf("endian must be either big or little, got %q", c.Endian)
	}
	if c.Alignment == 0 {
		return fmt.Errorf("alignment must be > 0")
	}
	if c.Bitness == 0 {
		return fmt.Errorf("bitness must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	dup := *c
	return &dup
}
