// Package config loads the YAML configuration used by the CLI and the watcher
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"procsig/growbuf"
	"procsig/hijack"
	"procsig/process"

	"gopkg.in/yaml.v3"
)

const (
	EnvProcess    = "PROCSIG_PROCESS"
	EnvPublishURL = "PROCSIG_PUBLISH_URL"

	DefaultPublishURL = "ws://127.0.0.1:22006/procsig"
)

type Config struct {
	Process    string      `yaml:"process"`
	Access     Access      `yaml:"access"`
	Signatures []Signature `yaml:"signatures"`
	Publish    Publish     `yaml:"publish"`
}

// Access holds the handle acquisition settings. The handle table values are
// OS internals and may need changing between Windows builds.
type Access struct {
	Hijack          bool   `yaml:"hijack"`
	HandleTable     string `yaml:"handle_table"`
	ProcessTypeCode uint16 `yaml:"process_type_code"`
	ProbeTypeCode   bool   `yaml:"probe_type_code"`
	RequiredAccess  uint32 `yaml:"required_access"`
	InitialBuffer   int    `yaml:"initial_buffer"`
	MaxBuffer       int    `yaml:"max_buffer"`
}

// Relative describes a RIP-relative operand inside a matched instruction
type Relative struct {
	Displacement int64 `yaml:"displacement"`
	Length       int64 `yaml:"length"`
}

// Signature locates one value: the pattern is found in module, optionally
// followed through a relative operand, then offset is added and size bytes
// are read there on every tick.
type Signature struct {
	Name     string    `yaml:"name"`
	Module   string    `yaml:"module"`
	Pattern  string    `yaml:"pattern"`
	Relative *Relative `yaml:"relative,omitempty"`
	Offset   int64     `yaml:"offset"`
	Size     uint      `yaml:"size"`
}

type Publish struct {
	URL            string        `yaml:"url"`
	Interval       time.Duration `yaml:"interval"`
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectDelay   time.Duration `yaml:"connect_delay"`
}

func Default() *Config {
	return &Config{
		Access: Access{
			Hijack:          true,
			HandleTable:     hijack.LayoutExtended.String(),
			ProcessTypeCode: hijack.DefaultProcessTypeCode,
			ProbeTypeCode:   true,
			InitialBuffer:   growbuf.DefaultInitial,
			MaxBuffer:       growbuf.DefaultLimit,
		},
		Publish: Publish{
			URL:            DefaultPublishURL,
			Interval:       100 * time.Millisecond,
			ConnectRetries: 5,
			ConnectDelay:   2 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config from %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config from %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProcess); v != "" {
		c.Process = v
	}
	if v := os.Getenv(EnvPublishURL); v != "" {
		c.Publish.URL = v
	}
}

func (c *Config) Validate() error {
	if _, err := hijack.ParseLayout(c.Access.HandleTable); err != nil {
		return fmt.Errorf("access.handle_table: %w", err)
	}
	if c.Access.InitialBuffer <= 0 {
		return fmt.Errorf("access.initial_buffer must be positive")
	}
	if c.Access.MaxBuffer < c.Access.InitialBuffer {
		return fmt.Errorf("access.max_buffer %d is below initial_buffer %d", c.Access.MaxBuffer, c.Access.InitialBuffer)
	}

	seen := make(map[string]bool)
	var errs []error
	for i, s := range c.Signatures {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("signatures[%d]: %w", i, err))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("signatures[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if c.Publish.Interval <= 0 {
		return fmt.Errorf("publish.interval must be positive")
	}
	if c.Publish.ConnectRetries < 0 {
		return fmt.Errorf("publish.connect_retries must not be negative")
	}

	return nil
}

func (s Signature) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Module == "" {
		return fmt.Errorf("%s: module is required", s.Name)
	}
	if process.ParseAOB(s.Pattern).Len() == 0 {
		return fmt.Errorf("%s: %w", s.Name, process.ErrEmptyPattern)
	}
	if s.Size == 0 {
		return fmt.Errorf("%s: size is required", s.Name)
	}
	return nil
}

// HijackConfig converts the access section for hijack.New
func (c *Config) HijackConfig() (hijack.Config, error) {
	layout, err := hijack.ParseLayout(c.Access.HandleTable)
	if err != nil {
		return hijack.Config{}, err
	}

	hc := hijack.DefaultConfig()
	hc.Layout = layout
	hc.ProcessTypeCode = c.Access.ProcessTypeCode
	hc.ProbeTypeCode = c.Access.ProbeTypeCode
	hc.RequiredAccess = c.Access.RequiredAccess
	hc.InitialBuffer = c.Access.InitialBuffer
	hc.MaxBuffer = c.Access.MaxBuffer
	return hc, nil
}
