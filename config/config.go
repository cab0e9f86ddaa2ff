// Package config describes a delay-line memory system in YAML.
//
// A description can be adjusted with environment variables, which may come
// from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the loaded description.
const (
	EnvStallLimit    = "DELAYMEM_STALL_LIMIT"
	EnvMemoryLatency = "DELAYMEM_MEMORY_LATENCY"
	EnvRandomSeed    = "DELAYMEM_RANDOM_SEED"
)

// Storage kinds of a delay line.
const (
	StoragePSRAM = "psram"
	StorageLocal = "local"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the description of a complete system.
type Config struct {
	// StallLimit is the number of cycles a beat may wait for its
	// acknowledgment. 0 disables the watchdog.
	StallLimit uint64 `yaml:"stall_limit"`

	Memory     MemoryConfig      `yaml:"memory"`
	DelayLines []DelayLineConfig `yaml:"delay_lines"`
}

// MemoryConfig describes the shared backing store.
type MemoryConfig struct {
	Latency      int `yaml:"latency"`
	AddressWidth int `yaml:"address_width"`
	DataWidth    int `yaml:"data_width"`
	BurstLen     int `yaml:"burst_len"`

	// RandomSeed fills the store with pseudo-random contents. 0 means the
	// store starts zeroed.
	RandomSeed int64 `yaml:"random_seed"`
}

// DelayLineConfig describes one delay line.
type DelayLineConfig struct {
	Name        string `yaml:"name"`
	Length      uint64 `yaml:"length"`
	SampleWidth int    `yaml:"sample_width"`
	Storage     string `yaml:"storage"`

	// BaseAddress is the first backing store word of a PSRAM line.
	BaseAddress uint64 `yaml:"base_address"`
	CacheLines  int    `yaml:"cache_lines"`

	// ZeroFill overrides whether the line clears its buffer at start.
	ZeroFill *bool `yaml:"zero_fill,omitempty"`

	WriteTriggersTaps bool        `yaml:"write_triggers_taps"`
	Taps              []TapConfig `yaml:"taps"`
}

// TapConfig describes one tap.
type TapConfig struct {
	Dynamic bool   `yaml:"dynamic"`
	Delay   uint64 `yaml:"delay"`
}

// Default returns a system with two PSRAM-backed delay lines sharing one
// memory.
func Default() *Config {
	return &Config{
		StallLimit: 10000,
		Memory: MemoryConfig{
			Latency:      4,
			AddressWidth: 24,
			DataWidth:    32,
			BurstLen:     8,
			RandomSeed:   1,
		},
		DelayLines: []DelayLineConfig{
			{
				Name:              "Echo",
				Length:            4096,
				SampleWidth:       16,
				Storage:           StoragePSRAM,
				BaseAddress:       0,
				CacheLines:        64,
				WriteTriggersTaps: true,
				Taps: []TapConfig{
					{Delay: 1000},
					{Delay: 2500},
				},
			},
			{
				Name:        "Chorus",
				Length:      1024,
				SampleWidth: 16,
				Storage:     StoragePSRAM,
				BaseAddress: 0x800,
				CacheLines:  16,
				Taps: []TapConfig{
					{Dynamic: true},
					{Dynamic: true},
				},
			},
		},
	}
}

// Load reads a description from a YAML file. Fields missing from the file
// keep their values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML description.
func Parse(data []byte) (*Config, error) {
	c := Default()

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes the description to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the environment.
// Variables already set are kept. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides the description with the DELAYMEM_* environment
// variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvStallLimit); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStallLimit, err)
		}

		c.StallLimit = n
	}

	if v, ok := os.LookupEnv(EnvMemoryLatency); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMemoryLatency, err)
		}

		c.Memory.Latency = n
	}

	if v, ok := os.LookupEnv(EnvRandomSeed); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRandomSeed, err)
		}

		c.Memory.RandomSeed = n
	}

	return nil
}
