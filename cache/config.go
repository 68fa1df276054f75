package cache

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reoring/formstate/codec"
)

// Eviction fractions applied to the hot tier under memory pressure.
type Eviction struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Config sizes the tiers. Zero values are replaced by DefaultConfig values
// in New.
type Config struct {
	// HotCapacity bounds the hot tier in entries.
	HotCapacity int `yaml:"hot_capacity"`
	// WarmMaxBytes and ColdMaxBytes are the tier quotas.
	WarmMaxBytes int64 `yaml:"warm_max_bytes"`
	ColdMaxBytes int64 `yaml:"cold_max_bytes"`
	// Payloads smaller than WarmThreshold go to Warm, smaller than
	// ColdThreshold to Warm and Cold, everything else to Archive only.
	WarmThreshold int           `yaml:"warm_threshold"`
	ColdThreshold int           `yaml:"cold_threshold"`
	TTL           time.Duration `yaml:"ttl"`
	// Dir holds the cold and archive tiers. Empty disables both.
	Dir      string   `yaml:"dir"`
	Eviction Eviction `yaml:"eviction"`
	// Encoding names the payload format for lower tiers ("msgpack" or "json").
	Encoding string `yaml:"encoding"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HotCapacity:   128,
		WarmMaxBytes:  5 << 20,
		ColdMaxBytes:  50 << 20,
		WarmThreshold: 10 << 10,
		ColdThreshold: 100 << 10,
		TTL:           7 * 24 * time.Hour,
		Eviction:      Eviction{Medium: 0.25, High: 0.5},
		Encoding:      codec.FormatMsgpack,
	}
}

// LoadConfig reads a YAML document over DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("cache: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HotCapacity == 0 {
		c.HotCapacity = d.HotCapacity
	}
	if c.WarmMaxBytes == 0 {
		c.WarmMaxBytes = d.WarmMaxBytes
	}
	if c.ColdMaxBytes == 0 {
		c.ColdMaxBytes = d.ColdMaxBytes
	}
	if c.WarmThreshold == 0 {
		c.WarmThreshold = d.WarmThreshold
	}
	if c.ColdThreshold == 0 {
		c.ColdThreshold = d.ColdThreshold
	}
	if c.TTL == 0 {
		c.TTL = d.TTL
	}
	if c.Eviction.Medium == 0 {
		c.Eviction.Medium = d.Eviction.Medium
	}
	if c.Eviction.High == 0 {
		c.Eviction.High = d.Eviction.High
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	return c
}

// Validate reports inconsistent settings.
func (c Config) Validate() error {
	switch {
	case c.HotCapacity < 1:
		return fmt.Errorf("cache: hot_capacity must be positive, got %d", c.HotCapacity)
	case c.WarmThreshold < 0 || c.ColdThreshold < c.WarmThreshold:
		return fmt.Errorf("cache: thresholds must satisfy 0 <= warm (%d) <= cold (%d)", c.WarmThreshold, c.ColdThreshold)
	case c.TTL < 0:
		return fmt.Errorf("cache: ttl must not be negative")
	case c.Eviction.Medium < 0 || c.Eviction.Medium > 1 || c.Eviction.High < 0 || c.Eviction.High > 1:
		return fmt.Errorf("cache: eviction fractions must be within [0,1]")
	}
	if _, err := codec.ByName(c.Encoding); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
