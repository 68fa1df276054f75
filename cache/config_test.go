package cache_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formstate/cache"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := cache.LoadConfig(strings.NewReader(`
hot_capacity: 16
ttl: 36h
dir: /var/lib/forms
eviction:
  medium: 0.3
encoding: json
`))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.HotCapacity)
	assert.Equal(t, 36*time.Hour, cfg.TTL)
	assert.Equal(t, "/var/lib/forms", cfg.Dir)
	assert.InDelta(t, 0.3, cfg.Eviction.Medium, 1e-9)
	assert.InDelta(t, 0.5, cfg.Eviction.High, 1e-9)
	assert.Equal(t, 10<<10, cfg.WarmThreshold)
	assert.Equal(t, "json", cfg.Encoding)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := cache.LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, cache.DefaultConfig(), cfg)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL)
}

func TestLoadConfig_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key": "hot_size: 3\n",
		"thresholds":  "warm_threshold: 200\ncold_threshold: 100\n",
		"fraction":    "eviction:\n  high: 1.5\n",
		"encoding":    "encoding: xml\n",
		"capacity":    "hot_capacity: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cache.LoadConfig(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseLevelAndTier(t *testing.T) {
	l, err := cache.ParseLevel("High")
	require.NoError(t, err)
	assert.Equal(t, cache.PressureHigh, l)
	_, err = cache.ParseLevel("extreme")
	assert.Error(t, err)

	tier, err := cache.ParseTier("archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", tier.String())
}
