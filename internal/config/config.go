// Package config reads the SH_* environment variables listed in spec.md §6
// into a single Config value, the way _examples/xyproto-vibe67 reads its own
// environment configuration through github.com/xyproto/env/v2.
package config

import (
	"strconv"
	"strings"

	env "github.com/xyproto/env/v2"
)

// OnlineStrategy selects the placement engine's cost model (spec.md §4.7).
type OnlineStrategy string

const (
	StrategySki  OnlineStrategy = "ski"
	StrategyOrig OnlineStrategy = "orig"
)

// Config holds every SH_* environment key from spec.md §6.
type Config struct {
	DefaultDevice int

	UpperDevice int
	LowerDevice int

	ProfilePebsEvents []string
	ProfileBwEvents   []string

	SampleFreq     int
	MaxSamplePages int
	ProfileInterval int // milliseconds

	OnlineStrategy          OnlineStrategy
	OnlineHotIntervals      int
	OnlineReconfWeightRatio float64
	OnlineGraceAccesses     float64
	OnlineNoBind            bool
	OnlineDebugFile         string

	UpperCapacityBytes uint64

	GraphFile string
}

// Load reads the environment into a Config, applying the defaults spec.md
// implies when a key is unset.
func Load() Config {
	c := Config{
		DefaultDevice:           env.Int("SH_DEFAULT_DEVICE", 0),
		UpperDevice:             env.Int("SH_UPPER_DEVICE", 0),
		LowerDevice:             env.Int("SH_LOWER_DEVICE", 1),
		ProfilePebsEvents:       splitCSV(env.Str("SH_PROFILE_PEBS_EVENTS")),
		ProfileBwEvents:         splitCSV(env.Str("SH_PROFILE_BW_EVENTS")),
		SampleFreq:              env.Int("SH_SAMPLE_FREQ", 2000),
		MaxSamplePages:          env.Int("SH_MAX_SAMPLE_PAGES", 8),
		ProfileInterval:         env.Int("SH_PROFILE_INTERVAL_MS", 1000),
		OnlineStrategy:          OnlineStrategy(envOr("SH_PROFILE_ONLINE_STRAT", "ski")),
		OnlineHotIntervals:      env.Int("SH_PROFILE_ONLINE_HOT_INTERVALS", 3),
		OnlineReconfWeightRatio: env.Float64("SH_PROFILE_ONLINE_RECONF_WEIGHT_RATIO", 1.0),
		OnlineGraceAccesses:     env.Float64("SH_PROFILE_ONLINE_GRACE_ACCESSES", 0),
		OnlineNoBind:            env.Bool("SH_PROFILE_ONLINE_NOBIND"),
		OnlineDebugFile:         env.Str("SH_PROFILE_ONLINE_DEBUG_FILE"),
		UpperCapacityBytes:      envUint64("SH_UPPER_CAPACITY_BYTES", 1<<30), // 1 GiB default upper-tier budget
		GraphFile:               firstNonEmpty(env.Str("SH_GRAPH_FILE"), env.Str("SICM_LAYOUT_FILE")),
	}
	return c
}

func envUint64(key string, fallback uint64) uint64 {
	v := env.Str(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := env.Str(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
